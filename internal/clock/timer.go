package clock

import (
	"time"

	"github.com/coachpo/backclock/pkg/timeevent"
)

// Timer is a deterministic timer advanced explicitly by a SimulatedClock.
type Timer struct {
	name     string
	interval time.Duration
	start    timeevent.UnixNanos
	stop     *timeevent.UnixNanos
	next     timeevent.UnixNanos
	expired  bool
}

// NewTimer creates a repeating timer firing at start+interval, start+2*interval, and so on.
// A non-nil stop expires the timer once the next fire time would pass it.
func NewTimer(name string, interval time.Duration, start timeevent.UnixNanos, stop *timeevent.UnixNanos) *Timer {
	if interval < 1 {
		interval = 1
	}
	t := &Timer{
		name:     name,
		interval: interval,
		start:    start,
		stop:     nil,
		next:     start.Add(interval),
		expired:  false,
	}
	if stop != nil {
		value := *stop
		t.stop = &value
	}
	return t
}

// NewAlert creates a one-shot timer firing exactly at alertTime.
func NewAlert(name string, start, alertTime timeevent.UnixNanos) *Timer {
	stop := alertTime
	return &Timer{
		name:     name,
		interval: 0,
		start:    start,
		stop:     &stop,
		next:     alertTime,
		expired:  false,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string { return t.name }

// Interval returns the repeat interval. One-shot alerts report zero.
func (t *Timer) Interval() time.Duration { return t.interval }

// StartTimeNs returns the time the timer was armed from.
func (t *Timer) StartTimeNs() timeevent.UnixNanos { return t.start }

// StopTimeNs returns the stop time, if any.
func (t *Timer) StopTimeNs() (timeevent.UnixNanos, bool) {
	if t.stop == nil {
		return 0, false
	}
	return *t.stop, true
}

// NextTimeNs returns the next scheduled fire time.
func (t *Timer) NextTimeNs() timeevent.UnixNanos { return t.next }

// IsExpired reports whether the timer will never fire again.
func (t *Timer) IsExpired() bool { return t.expired }

// OneShot reports whether the timer fires at most once.
func (t *Timer) OneShot() bool { return t.interval == 0 }

// Advance fires every occurrence due at or before to, in ascending time order.
// Each event is stamped with to as its init time.
func (t *Timer) Advance(to timeevent.UnixNanos) []timeevent.TimeEvent {
	var events []timeevent.TimeEvent
	for !t.expired && t.next <= to {
		events = append(events, timeevent.Fire(t.name, t.next, to))
		t.rearm()
	}
	return events
}

// Cancel expires the timer immediately.
func (t *Timer) Cancel() {
	t.expired = true
}

func (t *Timer) rearm() {
	if t.interval == 0 {
		t.expired = true
		return
	}
	next, ok := t.next.CheckedAdd(t.interval)
	if !ok || (t.stop != nil && next > *t.stop) {
		t.expired = true
		return
	}
	t.next = next
}
