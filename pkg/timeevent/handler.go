package timeevent

// Callback consumes a fired TimeEvent.
type Callback func(TimeEvent)

// Handler pairs a fired event with the callback that should process it.
type Handler struct {
	Event    TimeEvent
	Callback Callback
}

// NewHandler binds an event to its callback.
func NewHandler(event TimeEvent, callback Callback) Handler {
	return Handler{Event: event, Callback: callback}
}

// Handle invokes the callback with the event. A nil callback is a no-op.
func (h Handler) Handle() {
	if h.Callback == nil {
		return
	}
	h.Callback(h.Event)
}
