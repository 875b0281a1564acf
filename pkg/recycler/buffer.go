package recycler

import "github.com/coachpo/backclock/pkg/timeevent"

const defaultBufferCapacity = 64

// PoisonedAppendPanic is the panic value of Append on a recycled buffer.
const PoisonedAppendPanic = "recycler: append to recycled buffer"

// Buffer is a reusable backing store for accumulated time event handlers.
type Buffer struct {
	poison   uint64
	Handlers []timeevent.Handler
}

// NewBuffer allocates a buffer with the provided initial capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{Handlers: make([]timeevent.Handler, 0, capacity)}
}

// Len reports the number of buffered handlers.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Handlers)
}

// Append adds handlers to the end of the buffer. Appending to a buffer recycled in
// debug mode panics.
func (b *Buffer) Append(handlers ...timeevent.Handler) {
	if b.Poisoned() {
		panic(PoisonedAppendPanic)
	}
	b.Handlers = append(b.Handlers, handlers...)
}

// Reset clears the buffer for reuse while keeping its capacity.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	clear(b.Handlers)
	b.Handlers = b.Handlers[:0]
	b.poison = 0
}

// Poisoned reports whether the buffer was recycled in debug mode and not checked out since.
func (b *Buffer) Poisoned() bool {
	return b != nil && b.poison == poisonPattern
}
