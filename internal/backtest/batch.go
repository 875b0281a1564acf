package backtest

import (
	"iter"
	"strconv"

	"github.com/coachpo/backclock/errs"
	"github.com/coachpo/backclock/pkg/recycler"
	"github.com/coachpo/backclock/pkg/timeevent"
)

const (
	releasedBatchPanic = "backtest: use of released batch"
	recycledBatchPanic = "backtest: batch buffer recycled while batch is live"
)

// noCopy lets go vet flag accidental copies of a Batch.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Batch is an ordered, caller-owned sequence of time event handlers produced by
// Accumulator.Drain. It must be released exactly once; every accessor panics
// after release.
type Batch struct {
	noCopy noCopy

	buf      *recycler.Buffer
	recycler recycler.Recycler
	released bool
}

func newBatch(buf *recycler.Buffer, r recycler.Recycler) *Batch {
	return &Batch{buf: buf, recycler: r}
}

// Len returns the number of handlers.
func (b *Batch) Len() int {
	b.mustLive()
	return b.buf.Len()
}

// IsEmpty reports whether the batch has no handlers.
func (b *Batch) IsEmpty() bool {
	return b.Len() == 0
}

// At returns the i-th handler.
func (b *Batch) At(i int) timeevent.Handler {
	b.mustLive()
	return b.buf.Handlers[i]
}

// All iterates handlers in order.
func (b *Batch) All() iter.Seq2[int, timeevent.Handler] {
	b.mustLive()
	return func(yield func(int, timeevent.Handler) bool) {
		for i := 0; i < b.Len(); i++ {
			if !yield(i, b.buf.Handlers[i]) {
				return
			}
		}
	}
}

// Handlers returns a copy of the handlers that stays valid after release.
func (b *Batch) Handlers() []timeevent.Handler {
	b.mustLive()
	out := make([]timeevent.Handler, b.buf.Len())
	if b.buf != nil {
		copy(out, b.buf.Handlers)
	}
	return out
}

// Events returns a copy of the batch's events in order.
func (b *Batch) Events() []timeevent.TimeEvent {
	b.mustLive()
	out := make([]timeevent.TimeEvent, 0, b.buf.Len())
	if b.buf != nil {
		for _, h := range b.buf.Handlers {
			out = append(out, h.Event)
		}
	}
	return out
}

// Dispatch invokes every handler in order and returns how many ran.
func (b *Batch) Dispatch() int {
	b.mustLive()
	n := b.buf.Len()
	for i := 0; i < n; i++ {
		b.buf.Handlers[i].Handle()
	}
	return n
}

// Release returns the batch's storage. A second call reports a released error.
func (b *Batch) Release() error {
	if b.released {
		return errs.New("batch", errs.CodeReleased,
			errs.WithMessage("batch already released"),
		)
	}
	b.released = true
	if b.buf != nil && b.recycler != nil {
		b.recycler.Recycle(b.buf)
	}
	b.buf = nil
	return nil
}

// Released reports whether Release has been called.
func (b *Batch) Released() bool {
	return b.released
}

func (b *Batch) String() string {
	if b.released {
		return "Batch(released)"
	}
	return "Batch(len=" + strconv.Itoa(b.buf.Len()) + ")"
}

func (b *Batch) mustLive() {
	if b.released {
		panic(releasedBatchPanic)
	}
	// Only set in recycler debug mode.
	if b.buf.Poisoned() {
		panic(recycledBatchPanic)
	}
}
