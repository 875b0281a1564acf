package js

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/coachpo/backclock/errs"
	"github.com/coachpo/backclock/internal/observability"
	"github.com/coachpo/backclock/pkg/timeevent"
)

// Script is an isolated runtime for one Module. It is safe for concurrent use, but calls
// are serialised since a goja runtime is single threaded.
type Script struct {
	module *Module
	logger observability.Logger

	mu    sync.Mutex
	rt    *goja.Runtime
	entry goja.Callable
	calls int
	errs  []error
}

// NewScript instantiates module in a fresh runtime. The script's log helper writes to logger.
func NewScript(module *Module, logger observability.Logger) (*Script, error) {
	if module == nil || module.Program == nil {
		return nil, errs.New(component, errs.CodeScript, errs.WithMessage("compiled module required"))
	}
	s := &Script{module: module, logger: logger, rt: goja.New()}
	entry, err := instantiate(s.rt, module.Program, s.log, module.Name)
	if err != nil {
		return nil, err
	}
	s.entry = entry
	return s, nil
}

// Name returns the module name.
func (s *Script) Name() string { return s.module.Name }

// Call invokes onTimeEvent with event. Timestamps are passed as integer nanoseconds.
func (s *Script) Call(event timeevent.TimeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	arg := s.rt.ToValue(map[string]any{
		"name":     event.Name,
		"event_id": event.ID.String(),
		"ts_event": int64(event.TSEvent),
		"ts_init":  int64(event.TSInit),
	})
	if _, err := s.entry(goja.Undefined(), arg); err != nil {
		return errs.New(component, errs.CodeScript,
			errs.WithMessage(EntryPoint+" failed"),
			errs.WithField("script", s.module.Name),
			errs.WithField("timer", event.Name),
			errs.WithField("event_id", event.ID.String()),
			errs.WithCause(err),
		)
	}
	return nil
}

// Callback adapts the script to a clock callback. Failures are logged and kept for Err.
func (s *Script) Callback() timeevent.Callback {
	return func(event timeevent.TimeEvent) {
		if err := s.Call(event); err != nil {
			observability.Or(s.logger).Error("script callback failed",
				observability.F("script", s.module.Name),
				observability.F("error", err),
			)
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
		}
	}
}

// Calls returns how many events the script has received.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Err joins every failure collected through Callback.
func (s *Script) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

func (s *Script) log(call goja.FunctionCall) goja.Value {
	parts := make([]any, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		parts = append(parts, arg.Export())
	}
	msg := fmt.Sprint(parts...)
	if len(parts) > 1 {
		msg = fmt.Sprintln(parts...)
		msg = msg[:len(msg)-1]
	}
	observability.Or(s.logger).Info("script log",
		observability.F("script", s.module.Name),
		observability.F("message", msg),
	)
	return goja.Undefined()
}
