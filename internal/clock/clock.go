// Package clock implements the simulated clocks driven by the backtest loop.
package clock

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/backclock/pkg/timeevent"
)

// Clock provides a controllable notion of time plus named timers.
//
// An active timer is one which has not expired.
type Clock interface {
	UTCNow() time.Time
	TimestampNs() timeevent.UnixNanos
	TimestampUs() uint64
	TimestampMs() uint64
	Timestamp() decimal.Decimal

	TimerNames() []string
	TimerCount() int
	NextTimeNs(name string) (timeevent.UnixNanos, bool)

	RegisterDefaultHandler(callback timeevent.Callback)
	Handler(event timeevent.TimeEvent) (timeevent.Handler, error)

	SetTimeAlertNs(name string, alertTime timeevent.UnixNanos, opts ...TimerOption) error
	SetTimerNs(name string, interval time.Duration, start timeevent.UnixNanos, opts ...TimerOption) error
	CancelTimer(name string)
	CancelTimers()
	Reset()
}

// TimerOption customises a timer registration.
type TimerOption func(*timerSettings)

type timerSettings struct {
	callback  timeevent.Callback
	allowPast bool
	stop      *timeevent.UnixNanos
}

func defaultTimerSettings() timerSettings {
	return timerSettings{
		callback:  nil,
		allowPast: true,
		stop:      nil,
	}
}

// WithCallback binds a callback to the timer name, overriding the default handler.
func WithCallback(callback timeevent.Callback) TimerOption {
	return func(s *timerSettings) {
		s.callback = callback
	}
}

// WithAllowPast controls whether times before the current clock time are accepted.
// Past alerts are moved to the current time; past repeating starts catch up on the next advance.
func WithAllowPast(allow bool) TimerOption {
	return func(s *timerSettings) {
		s.allowPast = allow
	}
}

// WithStopTime sets the inclusive time after which a repeating timer expires.
func WithStopTime(stop timeevent.UnixNanos) TimerOption {
	return func(s *timerSettings) {
		value := stop
		s.stop = &value
	}
}
