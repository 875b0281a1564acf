package backtest

import (
	"maps"

	"github.com/shopspring/decimal"

	"github.com/coachpo/backclock/pkg/timeevent"
)

// RunStats captures cumulative statistics for a backtest run.
type RunStats struct {
	Steps         int                 `json:"steps"`
	Advances      int                 `json:"advances"`
	Events        int                 `json:"events"`
	Batches       int                 `json:"batches"`
	MaxBatch      int                 `json:"max_batch"`
	EventsByTimer map[string]int      `json:"events_by_timer"`
	FirstStep     timeevent.UnixNanos `json:"first_step_ns"`
	LastStep      timeevent.UnixNanos `json:"last_step_ns"`
	FirstEvent    timeevent.UnixNanos `json:"first_event_ns,omitempty"`
	LastEvent     timeevent.UnixNanos `json:"last_event_ns,omitempty"`
	SpanSeconds   decimal.Decimal     `json:"span_seconds"`
}

func newRunStats() *RunStats {
	return &RunStats{
		EventsByTimer: make(map[string]int),
		SpanSeconds:   decimal.Zero,
	}
}

func (s *RunStats) recordStep(ts timeevent.UnixNanos, advances int) {
	if s.Steps == 0 {
		s.FirstStep = ts
	}
	s.Steps++
	s.Advances += advances
	s.LastStep = ts
	s.SpanSeconds = s.LastStep.Seconds().Sub(s.FirstStep.Seconds())
}

func (s *RunStats) recordBatch(events []timeevent.TimeEvent) {
	if len(events) == 0 {
		return
	}
	s.Batches++
	if len(events) > s.MaxBatch {
		s.MaxBatch = len(events)
	}
	for _, ev := range events {
		if s.Events == 0 || ev.TSEvent < s.FirstEvent {
			s.FirstEvent = ev.TSEvent
		}
		if ev.TSEvent > s.LastEvent {
			s.LastEvent = ev.TSEvent
		}
		s.Events++
		s.EventsByTimer[ev.Name]++
	}
}

func (s *RunStats) clone() RunStats {
	snapshot := *s
	snapshot.EventsByTimer = maps.Clone(s.EventsByTimer)
	if snapshot.EventsByTimer == nil {
		snapshot.EventsByTimer = make(map[string]int)
	}
	return snapshot
}
