package clock

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/backclock/errs"
	"github.com/coachpo/backclock/internal/observability"
	"github.com/coachpo/backclock/pkg/timeevent"
)

const component = "clock"

// SimulatedClock stores virtual time that only moves when explicitly advanced.
//
// Timers fire in ascending trigger-time order; timers due at the same instant
// fire in registration order. SimulatedClock is not safe for concurrent use.
type SimulatedClock struct {
	name            string
	now             timeevent.UnixNanos
	timers          []*Timer
	defaultCallback timeevent.Callback
	callbacks       map[string]timeevent.Callback
	logger          observability.Logger

	pending eventHeap
	seq     uint64
}

// Option configures a SimulatedClock.
type Option func(*SimulatedClock)

// WithName labels the clock in logs and errors.
func WithName(name string) Option {
	return func(c *SimulatedClock) {
		c.name = strings.TrimSpace(name)
	}
}

// WithStartTime initialises the clock at the provided timestamp.
func WithStartTime(start timeevent.UnixNanos) Option {
	return func(c *SimulatedClock) {
		c.now = start
	}
}

// WithDefaultHandler registers the fallback callback for timers without their own.
func WithDefaultHandler(callback timeevent.Callback) Option {
	return func(c *SimulatedClock) {
		c.defaultCallback = callback
	}
}

// WithLogger overrides the global logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *SimulatedClock) {
		c.logger = logger
	}
}

// NewSimulatedClock creates a clock at time zero unless configured otherwise.
func NewSimulatedClock(opts ...Option) *SimulatedClock {
	c := &SimulatedClock{
		name:            "",
		now:             0,
		timers:          nil,
		defaultCallback: nil,
		callbacks:       make(map[string]timeevent.Callback),
		logger:          nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Name returns the clock label.
func (c *SimulatedClock) Name() string { return c.name }

// UTCNow returns the current simulated time.
func (c *SimulatedClock) UTCNow() time.Time { return c.now.Time() }

// TimestampNs returns the current simulated time in nanoseconds.
func (c *SimulatedClock) TimestampNs() timeevent.UnixNanos { return c.now }

// TimestampUs returns the current simulated time in microseconds.
func (c *SimulatedClock) TimestampUs() uint64 { return c.now.Micros() }

// TimestampMs returns the current simulated time in milliseconds.
func (c *SimulatedClock) TimestampMs() uint64 { return c.now.Millis() }

// Timestamp returns the current simulated time in seconds.
func (c *SimulatedClock) Timestamp() decimal.Decimal { return c.now.Seconds() }

// SetTime moves the clock to ts without firing timers. Moving backwards is rejected.
func (c *SimulatedClock) SetTime(ts timeevent.UnixNanos) error {
	if ts < c.now {
		return c.invalidAdvance(ts)
	}
	c.now = ts
	return nil
}

// Timers returns the active timers in registration order.
func (c *SimulatedClock) Timers() []*Timer {
	return slices.Clone(c.timers)
}

// TimerNames returns the names of active timers in registration order.
func (c *SimulatedClock) TimerNames() []string {
	names := make([]string, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.IsExpired() {
			names = append(names, t.Name())
		}
	}
	return names
}

// TimerCount returns the number of active timers.
func (c *SimulatedClock) TimerCount() int {
	count := 0
	for _, t := range c.timers {
		if !t.IsExpired() {
			count++
		}
	}
	return count
}

// NextTimeNs returns the next fire time of the named timer.
func (c *SimulatedClock) NextTimeNs(name string) (timeevent.UnixNanos, bool) {
	t := c.find(name)
	if t == nil {
		return 0, false
	}
	return t.NextTimeNs(), true
}

// RegisterDefaultHandler sets the fallback callback.
func (c *SimulatedClock) RegisterDefaultHandler(callback timeevent.Callback) {
	c.defaultCallback = callback
}

// Handler binds event to its timer callback, falling back to the default handler.
func (c *SimulatedClock) Handler(event timeevent.TimeEvent) (timeevent.Handler, error) {
	if cb, ok := c.callbacks[event.Name]; ok && cb != nil {
		return timeevent.NewHandler(event, cb), nil
	}
	if c.defaultCallback != nil {
		return timeevent.NewHandler(event, c.defaultCallback), nil
	}
	return timeevent.Handler{}, errs.New(component, errs.CodeNoHandler,
		errs.WithMessage("event has no associated handler"),
		errs.WithField("clock", c.name),
		errs.WithField("timer", event.Name),
		errs.WithRemediation("register a default handler or a timer callback"),
	)
}

// MatchHandlers binds each event to its callback, preserving order.
func (c *SimulatedClock) MatchHandlers(events []timeevent.TimeEvent) ([]timeevent.Handler, error) {
	handlers := make([]timeevent.Handler, 0, len(events))
	for _, event := range events {
		h, err := c.Handler(event)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

// AdvanceTime fires every timer due at or before to and returns the events in firing order.
// The current time moves to to only when setTime is true. Targets earlier than the current
// time are rejected without touching any timer.
func (c *SimulatedClock) AdvanceTime(to timeevent.UnixNanos, setTime bool) ([]timeevent.TimeEvent, error) {
	if to < c.now {
		return nil, c.invalidAdvance(to)
	}
	if setTime {
		c.now = to
	}

	events := c.fire(to)
	// Stable: equal trigger times keep registration order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TSEvent < events[j].TSEvent
	})
	return events, nil
}

// fire advances every timer to to in registration order and drops expired timers.
// Events are grouped per timer, not sorted.
func (c *SimulatedClock) fire(to timeevent.UnixNanos) []timeevent.TimeEvent {
	var events []timeevent.TimeEvent
	alive := c.timers[:0]
	for _, t := range c.timers {
		events = append(events, t.Advance(to)...)
		if !t.IsExpired() {
			alive = append(alive, t)
		}
	}
	clear(c.timers[len(alive):])
	c.timers = alive
	return events
}

// SetTimeAlertNs registers a one-shot timer firing at alertTime, replacing any timer of the same name.
func (c *SimulatedClock) SetTimeAlertNs(name string, alertTime timeevent.UnixNanos, opts ...TimerOption) error {
	settings := applyTimerOptions(opts)
	name = strings.TrimSpace(name)
	if err := c.validateRegistration(name, settings.callback); err != nil {
		return err
	}

	if alertTime < c.now {
		if !settings.allowPast {
			return invalidTimer(name, "alert time "+alertTime.String()+" was in the past (current time is "+c.now.String()+")")
		}
		observability.Or(c.logger).Info("timer alert time was in the past, adjusted to current time",
			observability.F("clock", c.name),
			observability.F("timer", name),
			observability.F("alert_time", alertTime.String()),
			observability.F("adjusted_to", c.now.String()),
		)
		alertTime = c.now
	}

	c.bindCallback(name, settings.callback)
	c.CancelTimer(name)
	c.timers = append(c.timers, NewAlert(name, c.now, alertTime))
	return nil
}

// SetTimerNs registers a repeating timer, replacing any timer of the same name.
// A zero start means the current time.
func (c *SimulatedClock) SetTimerNs(name string, interval time.Duration, start timeevent.UnixNanos, opts ...TimerOption) error {
	settings := applyTimerOptions(opts)
	name = strings.TrimSpace(name)
	if err := c.validateRegistration(name, settings.callback); err != nil {
		return err
	}
	if interval <= 0 {
		return invalidTimer(name, "interval must be positive, was "+interval.String())
	}

	if start == 0 {
		start = c.now
	} else if start < c.now && !settings.allowPast {
		return invalidTimer(name, "start time "+start.String()+" was in the past (current time is "+c.now.String()+")")
	}
	if settings.stop != nil && *settings.stop <= start {
		return invalidTimer(name, "stop time "+settings.stop.String()+" must be after start time "+start.String())
	}
	if _, ok := start.CheckedAdd(interval); !ok {
		return invalidTimer(name, "first fire time overflows: start "+strconv.FormatUint(uint64(start), 10)+" + interval "+interval.String())
	}

	c.bindCallback(name, settings.callback)
	c.CancelTimer(name)
	c.timers = append(c.timers, NewTimer(name, interval, start, settings.stop))
	return nil
}

// CancelTimer removes the named timer. Unknown names are ignored.
func (c *SimulatedClock) CancelTimer(name string) {
	idx := slices.IndexFunc(c.timers, func(t *Timer) bool { return t.Name() == name })
	if idx < 0 {
		return
	}
	c.timers[idx].Cancel()
	c.timers = slices.Delete(c.timers, idx, idx+1)
}

// CancelTimers removes every timer.
func (c *SimulatedClock) CancelTimers() {
	for _, t := range c.timers {
		t.Cancel()
	}
	c.timers = nil
}

// Reset returns the clock to time zero and drops timers and timer callbacks.
// The default handler is kept.
func (c *SimulatedClock) Reset() {
	c.now = 0
	c.CancelTimers()
	c.callbacks = make(map[string]timeevent.Callback)
	c.pending = nil
	c.seq = 0
}

func (c *SimulatedClock) find(name string) *Timer {
	for _, t := range c.timers {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (c *SimulatedClock) bindCallback(name string, callback timeevent.Callback) {
	if callback != nil {
		c.callbacks[name] = callback
	}
}

func (c *SimulatedClock) validateRegistration(name string, callback timeevent.Callback) error {
	if name == "" {
		return invalidTimer(name, "timer name must not be empty")
	}
	if callback == nil && c.callbacks[name] == nil && c.defaultCallback == nil {
		return invalidTimer(name, "no callbacks provided")
	}
	return nil
}

func (c *SimulatedClock) invalidAdvance(to timeevent.UnixNanos) error {
	return errs.New(component, errs.CodeInvalidAdvance,
		errs.WithMessage("target time is before the current clock time"),
		errs.WithField("clock", c.name),
		errs.WithField("to_time_ns", strconv.FormatUint(uint64(to), 10)),
		errs.WithField("current_ns", strconv.FormatUint(uint64(c.now), 10)),
		errs.WithRemediation("advance clocks with non-decreasing targets"),
	)
}

func invalidTimer(name, message string) error {
	return errs.New(component, errs.CodeInvalidTimer,
		errs.WithMessage(message),
		errs.WithField("timer", name),
	)
}

func applyTimerOptions(opts []TimerOption) timerSettings {
	settings := defaultTimerSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	return settings
}

var _ Clock = (*SimulatedClock)(nil)
