// Package scenario assembles simulated clocks, timers and an engine from a run config.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/coachpo/backclock/config"
	"github.com/coachpo/backclock/internal/backtest"
	"github.com/coachpo/backclock/internal/clock"
	"github.com/coachpo/backclock/internal/handler/js"
	"github.com/coachpo/backclock/internal/observability"
	"github.com/coachpo/backclock/pkg/dispatcher"
	"github.com/coachpo/backclock/pkg/recycler"
	"github.com/coachpo/backclock/pkg/timeevent"
)

type options struct {
	logger        observability.Logger
	metrics       backtest.MetricsRecorder
	recycler      recycler.Recycler
	dispatcher    backtest.Dispatcher
	subscribers   []dispatcher.Subscriber
	fanoutMetrics *dispatcher.FanoutMetrics
}

// Option configures Build.
type Option func(*options)

// WithLogger sets the logger shared by clocks, scripts and the engine.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics attaches an accumulator metrics recorder.
func WithMetrics(m backtest.MetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithRecycler overrides the batch buffer recycler.
func WithRecycler(r recycler.Recycler) Option {
	return func(o *options) { o.recycler = r }
}

// WithDispatcher overrides how drained batches are consumed.
func WithDispatcher(d backtest.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithSubscribers fans every non-empty batch out to subscribers after its handlers ran.
// Ignored when WithDispatcher is set.
func WithSubscribers(metrics *dispatcher.FanoutMetrics, subs ...dispatcher.Subscriber) Option {
	return func(o *options) {
		o.fanoutMetrics = metrics
		o.subscribers = append(o.subscribers, subs...)
	}
}

// Scenario is a ready-to-run backtest built from one run config.
type Scenario struct {
	Name    string
	Engine  *backtest.Engine
	Clocks  []*clock.SimulatedClock
	Scripts []*js.Script

	closer io.Closer
}

// Build creates the clocks and timers declared by cfg and wires them into an engine.
// Scripts are compiled once per file; every timer naming the same file shares one runtime.
func Build(cfg config.RunConfig, opts ...Option) (*Scenario, error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger := observability.Or(o.logger)

	s := &Scenario{Name: cfg.Name}
	scripts := make(map[string]*js.Script)
	for _, cc := range cfg.Clocks {
		clk := clock.NewSimulatedClock(
			clock.WithName(cc.Name),
			clock.WithStartTime(cc.Start.Nanos()),
			clock.WithLogger(logger),
			clock.WithDefaultHandler(defaultHandler(logger, cc.Name)),
		)
		for _, tc := range cc.Timers {
			timerOpts := []clock.TimerOption{clock.WithAllowPast(tc.PastAllowed())}
			if tc.Script != "" {
				script, err := s.script(scripts, cfg.Resolve(tc.Script), logger)
				if err != nil {
					return nil, fmt.Errorf("clock %s timer %s: %w", cc.Name, tc.Name, err)
				}
				timerOpts = append(timerOpts, clock.WithCallback(script.Callback()))
			}
			if err := register(clk, tc, timerOpts); err != nil {
				return nil, fmt.Errorf("clock %s timer %s: %w", cc.Name, tc.Name, err)
			}
		}
		s.Clocks = append(s.Clocks, clk)
	}

	feeder, err := s.feeder(cfg)
	if err != nil {
		return nil, err
	}

	acc := backtest.NewAccumulator(
		backtest.WithRecycler(o.recycler),
		backtest.WithMetrics(o.metrics),
		backtest.WithAccumulatorLogger(o.logger),
	)
	clocks := make([]backtest.AdvancingClock, 0, len(s.Clocks))
	for _, clk := range s.Clocks {
		clocks = append(clocks, clk)
	}
	s.Engine = backtest.NewEngine(feeder, clocks,
		backtest.WithAccumulator(acc),
		backtest.WithSetTime(cfg.SetsTime()),
		backtest.WithDispatcher(o.batchDispatcher()),
		backtest.WithLogger(o.logger),
	)
	return s, nil
}

// Run executes the engine and closes the step feeder. Script failures collected during
// the run are joined into the returned error.
func (s *Scenario) Run(ctx context.Context) error {
	runErr := s.Engine.Run(ctx)
	return errors.Join(runErr, s.Err(), s.Close())
}

// Stats returns the engine statistics.
func (s *Scenario) Stats() backtest.RunStats { return s.Engine.Stats() }

// Err joins the failures reported by every script callback.
func (s *Scenario) Err() error {
	var failures []error
	for _, script := range s.Scripts {
		failures = append(failures, script.Err())
	}
	return errors.Join(failures...)
}

// Close releases the step feeder, if it holds a file.
func (s *Scenario) Close() error {
	if s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer.Close()
}

func (s *Scenario) script(cache map[string]*js.Script, path string, logger observability.Logger) (*js.Script, error) {
	if script, ok := cache[path]; ok {
		return script, nil
	}
	module, err := js.Compile(path)
	if err != nil {
		return nil, err
	}
	script, err := js.NewScript(module, logger)
	if err != nil {
		return nil, err
	}
	cache[path] = script
	s.Scripts = append(s.Scripts, script)
	return script, nil
}

func (s *Scenario) feeder(cfg config.RunConfig) (backtest.StepFeeder, error) {
	if cfg.Data != "" {
		feeder, err := backtest.NewCSVFeeder(cfg.Resolve(cfg.Data))
		if err != nil {
			return nil, err
		}
		s.closer = feeder
		return feeder, nil
	}
	return backtest.NewRangeFeeder(cfg.Start.Nanos(), cfg.End.Nanos(), cfg.Step)
}

func (o options) batchDispatcher() backtest.Dispatcher {
	if o.dispatcher != nil || len(o.subscribers) == 0 {
		return o.dispatcher
	}
	fanout := dispatcher.NewFanout(o.fanoutMetrics, 0, o.subscribers...)
	return func(ctx context.Context, ts timeevent.UnixNanos, batch *backtest.Batch) error {
		batch.Dispatch()
		return fanout.Dispatch(ctx, ts, batch.Events())
	}
}

func register(clk *clock.SimulatedClock, tc config.TimerConfig, opts []clock.TimerOption) error {
	if tc.IsAlert() {
		return clk.SetTimeAlertNs(tc.Name, tc.AlertAt.Nanos(), opts...)
	}
	if tc.Stop != nil {
		opts = append(opts, clock.WithStopTime(tc.Stop.Nanos()))
	}
	return clk.SetTimerNs(tc.Name, tc.Interval, tc.Start.Nanos(), opts...)
}

func defaultHandler(logger observability.Logger, clockName string) timeevent.Callback {
	return func(event timeevent.TimeEvent) {
		logger.Debug("time event",
			observability.F("clock", clockName),
			observability.F("timer", event.Name),
			observability.F("event_id", event.ID.String()),
			observability.F("ts_event", uint64(event.TSEvent)),
			observability.F("ts_init", uint64(event.TSInit)),
		)
	}
}
