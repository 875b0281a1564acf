package backtest

import (
	"strconv"

	"github.com/coachpo/backclock/errs"
	"github.com/coachpo/backclock/internal/observability"
	"github.com/coachpo/backclock/pkg/recycler"
	"github.com/coachpo/backclock/pkg/timeevent"
)

const accumulatorComponent = "accumulator"

// AdvancingClock is the clock contract the accumulator drives.
type AdvancingClock interface {
	TimestampNs() timeevent.UnixNanos
	AdvanceTime(to timeevent.UnixNanos, setTime bool) ([]timeevent.TimeEvent, error)
	MatchHandlers(events []timeevent.TimeEvent) ([]timeevent.Handler, error)
}

// MetricsRecorder receives accumulator activity.
type MetricsRecorder interface {
	RecordAdvance(clock string, fired int)
	RecordDrain(size int)
}

type noopRecorder struct{}

func (noopRecorder) RecordAdvance(string, int) {}
func (noopRecorder) RecordDrain(int)           {}

// AccumulatorOption configures an Accumulator.
type AccumulatorOption func(*Accumulator)

// WithRecycler overrides the buffer recycler. Defaults to recycler.Global().
func WithRecycler(r recycler.Recycler) AccumulatorOption {
	return func(a *Accumulator) {
		if r != nil {
			a.recycler = r
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) AccumulatorOption {
	return func(a *Accumulator) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithAccumulatorLogger overrides the global logger.
func WithAccumulatorLogger(logger observability.Logger) AccumulatorOption {
	return func(a *Accumulator) {
		a.logger = logger
	}
}

// Accumulator buffers time event handlers across clock advances and hands them
// out as batches.
//
// The buffer is a flat log: handlers from successive Advance calls are appended
// in call order, each call's handlers contiguous and in the clock's firing
// order. No merge across clocks happens. Accumulator is not safe for concurrent use.
type Accumulator struct {
	buffer   *recycler.Buffer
	recycler recycler.Recycler
	metrics  MetricsRecorder
	logger   observability.Logger
}

// NewAccumulator returns an accumulator with an empty buffer.
func NewAccumulator(opts ...AccumulatorOption) *Accumulator {
	a := &Accumulator{
		buffer:   nil,
		recycler: nil,
		metrics:  noopRecorder{},
		logger:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.recycler == nil {
		a.recycler = recycler.Global()
	}
	return a
}

// Advance fires every timer of clk due at or before to and appends the matched
// handlers to the buffer. When setTime is true the clock's current time moves to to.
//
// A target earlier than the clock's current time is rejected before the clock
// is touched.
func (a *Accumulator) Advance(clk AdvancingClock, to timeevent.UnixNanos, setTime bool) error {
	if clk == nil {
		return errs.New(accumulatorComponent, errs.CodeInvalidAdvance, errs.WithMessage("clock is nil"))
	}
	name := clockName(clk)
	if now := clk.TimestampNs(); to < now {
		return errs.New(accumulatorComponent, errs.CodeInvalidAdvance,
			errs.WithMessage("target time is before the current clock time"),
			errs.WithField("clock", name),
			errs.WithField("to_time_ns", strconv.FormatUint(uint64(to), 10)),
			errs.WithField("current_ns", strconv.FormatUint(uint64(now), 10)),
		)
	}

	events, err := clk.AdvanceTime(to, setTime)
	if err != nil {
		return err
	}
	handlers, err := clk.MatchHandlers(events)
	if err != nil {
		return err
	}

	if len(handlers) > 0 {
		if a.buffer == nil {
			a.buffer = a.recycler.Checkout()
		}
		a.buffer.Append(handlers...)
	}
	a.metrics.RecordAdvance(name, len(handlers))
	observability.Or(a.logger).Debug("clock advanced",
		observability.F("clock", name),
		observability.F("to_time_ns", uint64(to)),
		observability.F("set_time", setTime),
		observability.F("fired", len(handlers)),
		observability.F("buffered", a.Len()),
	)
	return nil
}

// Drain takes every buffered handler as one batch and leaves the buffer empty.
// The caller owns the batch and must Release it.
func (a *Accumulator) Drain() *Batch {
	buf := a.buffer
	a.buffer = nil
	size := buf.Len()
	a.metrics.RecordDrain(size)
	if size == 0 {
		if buf != nil {
			a.recycler.Recycle(buf)
		}
		return newBatch(nil, a.recycler)
	}
	observability.Or(a.logger).Debug("accumulator drained", observability.F("size", size))
	return newBatch(buf, a.recycler)
}

// Len returns the number of buffered handlers.
func (a *Accumulator) Len() int {
	return a.buffer.Len()
}

// IsEmpty reports whether a drain would return an empty batch.
func (a *Accumulator) IsEmpty() bool {
	return a.Len() == 0
}

func clockName(clk AdvancingClock) string {
	if named, ok := clk.(interface{ Name() string }); ok {
		return named.Name()
	}
	return ""
}
