package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/backclock/errs"
	"github.com/coachpo/backclock/pkg/timeevent"
)

func newTestClock(t *testing.T, opts ...Option) *SimulatedClock {
	t.Helper()
	opts = append([]Option{WithDefaultHandler(func(timeevent.TimeEvent) {})}, opts...)
	return NewSimulatedClock(opts...)
}

func names(events []timeevent.TimeEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Name
	}
	return out
}

func TestTimeMonotonicity(t *testing.T) {
	clk := newTestClock(t)
	initial := clk.TimestampNs()

	_, err := clk.AdvanceTime(initial+1_000, true)
	require.NoError(t, err)
	require.Greater(t, clk.TimestampNs(), initial)
}

func TestAdvanceBackwardsIsRejected(t *testing.T) {
	clk := newTestClock(t, WithName("venue-a"), WithStartTime(2_000))
	require.NoError(t, clk.SetTimeAlertNs("alert", 2_500))

	events, err := clk.AdvanceTime(1_000, true)
	require.Error(t, err)
	require.Nil(t, events)
	require.True(t, errs.HasCode(err, errs.CodeInvalidAdvance))
	require.Contains(t, err.Error(), `clock="venue-a"`)

	require.Equal(t, timeevent.UnixNanos(2_000), clk.TimestampNs())
	next, ok := clk.NextTimeNs("alert")
	require.True(t, ok)
	require.Equal(t, timeevent.UnixNanos(2_500), next)
}

func TestSetTimeRejectsBackwards(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTime(100))
	require.True(t, errs.HasCode(clk.SetTime(50), errs.CodeInvalidAdvance))
	require.Equal(t, timeevent.UnixNanos(100), clk.TimestampNs())
}

func TestTimerRegistration(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimeAlertNs("test_timer", clk.TimestampNs()+1_000))
	require.Equal(t, 1, clk.TimerCount())
	require.Equal(t, []string{"test_timer"}, clk.TimerNames())
}

func TestTimerExpiration(t *testing.T) {
	clk := newTestClock(t)
	alert := clk.TimestampNs() + 1_000
	require.NoError(t, clk.SetTimeAlertNs("test_timer", alert))

	events, err := clk.AdvanceTime(alert, true)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "test_timer", events[0].Name)
	require.Equal(t, alert, events[0].TSEvent)
	require.Equal(t, alert, events[0].TSInit)
	require.Equal(t, 0, clk.TimerCount())
}

func TestTimerCancellation(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimeAlertNs("test_timer", clk.TimestampNs()+1_000))
	require.Equal(t, 1, clk.TimerCount())

	clk.CancelTimer("test_timer")
	clk.CancelTimer("unknown")
	require.Equal(t, 0, clk.TimerCount())

	events, err := clk.AdvanceTime(10_000, true)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestTimeAdvancementFiresEachInterval(t *testing.T) {
	clk := newTestClock(t)
	start := clk.TimestampNs()
	require.NoError(t, clk.SetTimerNs("test_timer", time.Microsecond, start))

	events, err := clk.AdvanceTime(start+2_500, true)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, start+1_000, events[0].TSEvent)
	require.Equal(t, start+2_000, events[1].TSEvent)
	for _, ev := range events {
		require.Equal(t, start+2_500, ev.TSInit)
	}
}

func TestMultipleTimersOrderedByTriggerTime(t *testing.T) {
	clk := newTestClock(t)
	start := clk.TimestampNs()
	require.NoError(t, clk.SetTimerNs("timer1", time.Microsecond, start))
	require.NoError(t, clk.SetTimerNs("timer2", 2*time.Microsecond, start))

	events, err := clk.AdvanceTime(start+2_000, true)
	require.NoError(t, err)
	require.Equal(t, []string{"timer1", "timer1", "timer2"}, names(events))
	require.Equal(t, start+1_000, events[0].TSEvent)
	require.Equal(t, start+2_000, events[1].TSEvent)
	require.Equal(t, start+2_000, events[2].TSEvent)
}

func TestOrderPreservationAcrossTimers(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimeAlertNs("t3", 300))
	require.NoError(t, clk.SetTimeAlertNs("t1", 100))
	require.NoError(t, clk.SetTimeAlertNs("t2", 200))

	events, err := clk.AdvanceTime(300, true)
	require.NoError(t, err)
	require.Equal(t, []string{"t1", "t2", "t3"}, names(events))
}

func TestTieBreakUsesRegistrationOrder(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimeAlertNs("zeta", 500))
	require.NoError(t, clk.SetTimeAlertNs("alpha", 500))

	events, err := clk.AdvanceTime(500, true)
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "alpha"}, names(events))
}

func TestReplacingTimerMovesItToEndOfRegistrationOrder(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimeAlertNs("a", 500))
	require.NoError(t, clk.SetTimeAlertNs("b", 500))
	require.NoError(t, clk.SetTimeAlertNs("a", 500))

	require.Equal(t, []string{"b", "a"}, clk.TimerNames())
	events, err := clk.AdvanceTime(500, false)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, names(events))
}

func TestSetTimeSemantics(t *testing.T) {
	t.Run("set_time true moves clock without events", func(t *testing.T) {
		clk := newTestClock(t)
		events, err := clk.AdvanceTime(5_000, true)
		require.NoError(t, err)
		require.Empty(t, events)
		require.Equal(t, timeevent.UnixNanos(5_000), clk.TimestampNs())
	})
	t.Run("set_time false keeps clock even when events fire", func(t *testing.T) {
		clk := newTestClock(t)
		require.NoError(t, clk.SetTimeAlertNs("alert", 1_000))
		events, err := clk.AdvanceTime(5_000, false)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, timeevent.UnixNanos(0), clk.TimestampNs())
	})
}

func TestRepeatingTimerRearms(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimerNs("bar", 100*time.Nanosecond, 0))

	events, err := clk.AdvanceTime(100, true)
	require.NoError(t, err)
	require.Len(t, events, 1)
	next, ok := clk.NextTimeNs("bar")
	require.True(t, ok)
	require.Equal(t, timeevent.UnixNanos(200), next)

	events, err = clk.AdvanceTime(200, true)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, timeevent.UnixNanos(200), events[0].TSEvent)
}

func TestOneShotDoesNotRefire(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimeAlertNs("once", 100))

	events, err := clk.AdvanceTime(100, true)
	require.NoError(t, err)
	require.Len(t, events, 1)

	for _, to := range []timeevent.UnixNanos{100, 200, 1_000_000} {
		events, err = clk.AdvanceTime(to, true)
		require.NoError(t, err)
		require.Empty(t, events)
	}
	_, ok := clk.NextTimeNs("once")
	require.False(t, ok)
}

func TestStopTimeIsInclusive(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimerNs("bounded", 100*time.Nanosecond, 0, WithStopTime(300)))

	events, err := clk.AdvanceTime(1_000, true)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, timeevent.UnixNanos(300), events[2].TSEvent)
	require.Equal(t, 0, clk.TimerCount())
}

func TestAllowPastAdjustsAlertToNow(t *testing.T) {
	clk := newTestClock(t, WithStartTime(2_000))

	require.NoError(t, clk.SetTimeAlertNs("past_timer", 1_000, WithAllowPast(true)))
	require.Equal(t, []string{"past_timer"}, clk.TimerNames())
	next, ok := clk.NextTimeNs("past_timer")
	require.True(t, ok)
	require.GreaterOrEqual(t, next, clk.TimestampNs())
}

func TestDisallowPastRejectsAlert(t *testing.T) {
	clk := newTestClock(t, WithStartTime(2_000))

	err := clk.SetTimeAlertNs("past_timer", 1_000, WithAllowPast(false))
	require.Error(t, err)
	require.True(t, errs.HasCode(err, errs.CodeInvalidTimer))
	require.Contains(t, err.Error(), "was in the past")
	require.Equal(t, 0, clk.TimerCount())
}

func TestDisallowPastRejectsTimerStart(t *testing.T) {
	clk := newTestClock(t, WithStartTime(2_000))

	err := clk.SetTimerNs("past_timer", time.Microsecond, 1_000, WithAllowPast(false))
	require.True(t, errs.HasCode(err, errs.CodeInvalidTimer))
	require.Equal(t, 0, clk.TimerCount())
}

func TestPastTimerStartCatchesUp(t *testing.T) {
	clk := newTestClock(t, WithStartTime(2_000))
	require.NoError(t, clk.SetTimerNs("catch_up", 500*time.Nanosecond, 1_000))

	events, err := clk.AdvanceTime(2_000, true)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, timeevent.UnixNanos(1_500), events[0].TSEvent)
	require.Equal(t, timeevent.UnixNanos(2_000), events[1].TSEvent)
}

func TestInvalidTimerRegistrations(t *testing.T) {
	tests := []struct {
		name     string
		register func(c *SimulatedClock) error
		contains string
	}{
		{
			name: "stop before start",
			register: func(c *SimulatedClock) error {
				return c.SetTimerNs("invalid_timer", 100, 3_000, WithStopTime(2_500))
			},
			contains: "must be after start time",
		},
		{
			name: "zero interval",
			register: func(c *SimulatedClock) error {
				return c.SetTimerNs("invalid_timer", 0, 0)
			},
			contains: "interval must be positive",
		},
		{
			name: "first fire time overflows",
			register: func(c *SimulatedClock) error {
				return c.SetTimerNs("far", time.Second, timeevent.MaxUnixNanos-10)
			},
			contains: "first fire time overflows",
		},
		{
			name: "blank name",
			register: func(c *SimulatedClock) error {
				return c.SetTimeAlertNs("   ", 3_000)
			},
			contains: "name must not be empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newTestClock(t, WithStartTime(2_000))
			err := tt.register(clk)
			require.True(t, errs.HasCode(err, errs.CodeInvalidTimer))
			require.Contains(t, err.Error(), tt.contains)
			require.Equal(t, 0, clk.TimerCount())
		})
	}
}

func TestTimerNearEndOfTimeExpiresInsteadOfWrapping(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimerNs("edge", 10, timeevent.MaxUnixNanos-20))

	events, err := clk.AdvanceTime(5_000_000_000, true)
	require.NoError(t, err)
	require.Empty(t, events)

	events, err = clk.AdvanceTime(timeevent.MaxUnixNanos, true)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, timeevent.MaxUnixNanos-10, events[0].TSEvent)
	require.Equal(t, timeevent.MaxUnixNanos, events[1].TSEvent)
	next, ok := clk.NextTimeNs("edge")
	require.False(t, ok, "expired timer reported next time %d", next)
}

func TestRegistrationRequiresSomeCallback(t *testing.T) {
	clk := NewSimulatedClock()

	err := clk.SetTimeAlertNs("alert", 100)
	require.True(t, errs.HasCode(err, errs.CodeInvalidTimer))
	require.Contains(t, err.Error(), "no callbacks provided")

	require.NoError(t, clk.SetTimeAlertNs("alert", 100, WithCallback(func(timeevent.TimeEvent) {})))
	// The callback stays bound to the name for later re-registration.
	require.NoError(t, clk.SetTimeAlertNs("alert", 200))
}

func TestDefaultAndCustomCallbacks(t *testing.T) {
	var defaultCalled, customCalled bool
	clk := NewSimulatedClock()
	clk.RegisterDefaultHandler(func(timeevent.TimeEvent) { defaultCalled = true })

	require.NoError(t, clk.SetTimeAlertNs("default_timer", 1_000))
	require.NoError(t, clk.SetTimeAlertNs("custom_timer", 1_000, WithCallback(func(timeevent.TimeEvent) { customCalled = true })))

	events, err := clk.AdvanceTime(1_000, true)
	require.NoError(t, err)
	handlers, err := clk.MatchHandlers(events)
	require.NoError(t, err)
	for _, h := range handlers {
		h.Handle()
	}

	require.True(t, defaultCalled)
	require.True(t, customCalled)
}

func TestMatchHandlersWithoutHandlerFails(t *testing.T) {
	clk := NewSimulatedClock(WithName("bare"))
	_, err := clk.MatchHandlers([]timeevent.TimeEvent{timeevent.Fire("orphan", 1, 1)})
	require.True(t, errs.HasCode(err, errs.CodeNoHandler))
}

func TestTimestampAccessors(t *testing.T) {
	clk := newTestClock(t, WithStartTime(1_500_000_250))

	require.Equal(t, uint64(1_500_000), clk.TimestampUs())
	require.Equal(t, uint64(1_500), clk.TimestampMs())
	require.Equal(t, "1.50000025", clk.Timestamp().String())
	require.Equal(t, time.Unix(1, 500_000_250).UTC(), clk.UTCNow())
}

func TestResetClearsTimersAndTime(t *testing.T) {
	clk := newTestClock(t)
	require.NoError(t, clk.SetTimerNs("t", time.Microsecond, 0))
	_, err := clk.AdvanceTime(5_000, true)
	require.NoError(t, err)

	clk.Reset()

	require.Equal(t, timeevent.UnixNanos(0), clk.TimestampNs())
	require.Equal(t, 0, clk.TimerCount())
	// Default handler survives reset.
	require.NoError(t, clk.SetTimeAlertNs("after_reset", 10))
}
