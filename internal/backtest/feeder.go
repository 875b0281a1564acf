package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/coachpo/backclock/pkg/timeevent"
)

// StepFeeder yields the simulation step timestamps in order. It returns io.EOF when exhausted.
type StepFeeder interface {
	Next() (timeevent.UnixNanos, error)
}

// RangeFeeder steps from Start to End inclusive in fixed increments.
type RangeFeeder struct {
	next timeevent.UnixNanos
	end  timeevent.UnixNanos
	step time.Duration
	done bool
}

// NewRangeFeeder creates a feeder over [start, end] with the given step.
func NewRangeFeeder(start, end timeevent.UnixNanos, step time.Duration) (*RangeFeeder, error) {
	if step <= 0 {
		return nil, fmt.Errorf("range feeder: step must be positive, was %s", step)
	}
	if end < start {
		return nil, fmt.Errorf("range feeder: end %s before start %s", end, start)
	}
	return &RangeFeeder{next: start, end: end, step: step}, nil
}

// Next implements StepFeeder.
func (f *RangeFeeder) Next() (timeevent.UnixNanos, error) {
	if f.done || f.next > f.end {
		return 0, io.EOF
	}
	ts := f.next
	if f.end-ts < timeevent.UnixNanos(f.step) {
		f.done = true
	} else {
		f.next = ts.Add(f.step)
	}
	return ts, nil
}

// SliceFeeder replays a fixed list of steps.
type SliceFeeder struct {
	steps []timeevent.UnixNanos
	pos   int
}

// NewSliceFeeder creates a feeder over steps.
func NewSliceFeeder(steps ...timeevent.UnixNanos) *SliceFeeder {
	return &SliceFeeder{steps: steps}
}

// Next implements StepFeeder.
func (f *SliceFeeder) Next() (timeevent.UnixNanos, error) {
	if f.pos >= len(f.steps) {
		return 0, io.EOF
	}
	ts := f.steps[f.pos]
	f.pos++
	return ts, nil
}
