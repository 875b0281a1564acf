package dispatcher

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/coachpo/backclock/pkg/timeevent"
)

type eventLine struct {
	Run  string              `json:"run,omitempty"`
	Step timeevent.UnixNanos `json:"step"`
	timeevent.TimeEvent
}

// JSONLinesSink writes every delivered event as one JSON object per line.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   int
}

// NewJSONLinesSink writes to w. The caller owns w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

// Subscriber returns a fan-out subscriber that tags every line with run.
// One sink may serve several concurrent runs; each step is written contiguously.
func (s *JSONLinesSink) Subscriber(run string) Subscriber {
	return Subscriber{
		ID: "jsonl:" + run,
		Deliver: func(_ context.Context, ts timeevent.UnixNanos, events []timeevent.TimeEvent) error {
			return s.write(run, ts, events)
		},
	}
}

// Deliver implements DeliveryFunc without a run tag.
func (s *JSONLinesSink) Deliver(_ context.Context, ts timeevent.UnixNanos, events []timeevent.TimeEvent) error {
	return s.write("", ts, events)
}

func (s *JSONLinesSink) write(run string, ts timeevent.UnixNanos, events []timeevent.TimeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if err := s.enc.Encode(eventLine{Run: run, Step: ts, TimeEvent: ev}); err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		s.n++
	}
	return nil
}

// Written returns how many events were written.
func (s *JSONLinesSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
