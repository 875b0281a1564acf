// Package timeevent defines the time event records produced by simulated clocks.
package timeevent

import (
	"fmt"

	"github.com/google/uuid"
)

// TimeEvent represents one fired timer occurrence.
type TimeEvent struct {
	// Name is the timer name. It is not required to be unique across timers.
	Name string `json:"name"`
	// ID uniquely identifies this occurrence.
	ID uuid.UUID `json:"event_id"`
	// TSEvent is the scheduled trigger time.
	TSEvent UnixNanos `json:"ts_event"`
	// TSInit is the advance target that produced the event.
	TSInit UnixNanos `json:"ts_init"`
}

// New constructs a TimeEvent.
func New(name string, id uuid.UUID, tsEvent, tsInit UnixNanos) TimeEvent {
	return TimeEvent{
		Name:    name,
		ID:      id,
		TSEvent: tsEvent,
		TSInit:  tsInit,
	}
}

// Fire constructs a TimeEvent with a fresh random identifier.
func Fire(name string, tsEvent, tsInit UnixNanos) TimeEvent {
	return New(name, uuid.New(), tsEvent, tsInit)
}

func (e TimeEvent) String() string {
	return fmt.Sprintf("TimeEvent(name=%s, event_id=%s, ts_event=%d, ts_init=%d)", e.Name, e.ID, e.TSEvent, e.TSInit)
}
