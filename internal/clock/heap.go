package clock

import (
	"container/heap"

	"github.com/coachpo/backclock/pkg/timeevent"
)

type pendingEvent struct {
	event timeevent.TimeEvent
	seq   uint64
}

// eventHeap is a min-heap on (TSEvent, seq). seq grows with every push, so events
// due at the same instant pop in the order their timers fired them.
type eventHeap []pendingEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].event.TSEvent != h[j].event.TSEvent {
		return h[i].event.TSEvent < h[j].event.TSEvent
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(pendingEvent)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = pendingEvent{}
	*h = old[:n-1]
	return item
}

// AdvanceToTimeOnHeap moves the clock to to and queues every event fired on the way
// in the clock's pending heap instead of returning them. Consume the queue with
// NextHandler. Targets earlier than the current time are rejected without side effects.
func (c *SimulatedClock) AdvanceToTimeOnHeap(to timeevent.UnixNanos) error {
	if to < c.now {
		return c.invalidAdvance(to)
	}
	c.now = to
	for _, event := range c.fire(to) {
		heap.Push(&c.pending, pendingEvent{event: event, seq: c.seq})
		c.seq++
	}
	return nil
}

// PendingLen returns the number of queued events.
func (c *SimulatedClock) PendingLen() int { return c.pending.Len() }

// NextHandler pops the earliest queued event bound to its handler. ok is false once
// the queue is empty. When the event has no handler it stays queued and the
// no_handler error is returned.
func (c *SimulatedClock) NextHandler() (h timeevent.Handler, ok bool, err error) {
	if c.pending.Len() == 0 {
		return timeevent.Handler{}, false, nil
	}
	h, err = c.Handler(c.pending[0].event)
	if err != nil {
		return timeevent.Handler{}, false, err
	}
	heap.Pop(&c.pending)
	return h, true, nil
}
