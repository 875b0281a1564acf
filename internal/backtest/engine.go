// Package backtest drives simulated clocks through a backtest run and batches the time
// events they fire.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/coachpo/backclock/internal/observability"
	"github.com/coachpo/backclock/pkg/timeevent"
)

type engineConfig struct {
	Accumulator *Accumulator
	SetTime     bool
	Dispatcher  Dispatcher
	Logger      observability.Logger
}

// Dispatcher consumes a drained batch. The engine releases the batch afterwards.
type Dispatcher func(ctx context.Context, ts timeevent.UnixNanos, batch *Batch) error

// EngineOption configures optional engine behaviour.
type EngineOption func(*engineConfig)

// WithAccumulator overrides the default accumulator.
func WithAccumulator(acc *Accumulator) EngineOption {
	return func(cfg *engineConfig) {
		cfg.Accumulator = acc
	}
}

// WithSetTime controls whether clocks are moved to each step time. Defaults to true.
func WithSetTime(setTime bool) EngineOption {
	return func(cfg *engineConfig) {
		cfg.SetTime = setTime
	}
}

// WithDispatcher replaces the default dispatcher, which runs every handler in order.
func WithDispatcher(d Dispatcher) EngineOption {
	return func(cfg *engineConfig) {
		cfg.Dispatcher = d
	}
}

// WithLogger overrides the global logger.
func WithLogger(logger observability.Logger) EngineOption {
	return func(cfg *engineConfig) {
		cfg.Logger = logger
	}
}

// DispatchAll runs every handler of the batch in order.
func DispatchAll(_ context.Context, _ timeevent.UnixNanos, batch *Batch) error {
	batch.Dispatch()
	return nil
}

// Engine orchestrates a backtest run: at each step it advances every clock,
// drains the accumulator once and dispatches the batch.
type Engine struct {
	feeder     StepFeeder
	clocks     []AdvancingClock
	acc        *Accumulator
	setTime    bool
	dispatcher Dispatcher
	logger     observability.Logger

	stats   *RunStats
	statsMu sync.Mutex
}

// NewEngine creates a new backtest engine over the given clocks.
func NewEngine(feeder StepFeeder, clocks []AdvancingClock, opts ...EngineOption) *Engine {
	cfg := engineConfig{
		Accumulator: nil,
		SetTime:     true,
		Dispatcher:  DispatchAll,
		Logger:      nil,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Accumulator == nil {
		cfg.Accumulator = NewAccumulator(WithAccumulatorLogger(cfg.Logger))
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = DispatchAll
	}

	return &Engine{
		feeder:     feeder,
		clocks:     append([]AdvancingClock(nil), clocks...),
		acc:        cfg.Accumulator,
		setTime:    cfg.SetTime,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
		stats:      newRunStats(),
	}
}

// Run replays every step from the feeder. Cancelling ctx ends the run without error.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		ts, err := e.feeder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				stats := e.Stats()
				observability.Or(e.logger).Info("backtest finished",
					observability.F("steps", stats.Steps),
					observability.F("events", stats.Events),
				)
				return nil
			}
			return err
		}

		if err := e.Step(ctx, ts); err != nil {
			return err
		}
	}
}

// Step advances every clock to ts, drains once and dispatches the resulting batch.
func (e *Engine) Step(ctx context.Context, ts timeevent.UnixNanos) error {
	for i, clk := range e.clocks {
		if err := e.acc.Advance(clk, ts, e.setTime); err != nil {
			e.discard(ts)
			return fmt.Errorf("step %d: advance clock %d (%s): %w", uint64(ts), i, clockName(clk), err)
		}
	}

	batch := e.acc.Drain()
	defer func() {
		if err := batch.Release(); err != nil {
			observability.Or(e.logger).Error("release batch", observability.F("error", err))
		}
	}()

	e.statsMu.Lock()
	e.stats.recordStep(ts, len(e.clocks))
	e.stats.recordBatch(batch.Events())
	e.statsMu.Unlock()

	if batch.IsEmpty() {
		return nil
	}
	if err := e.dispatcher(ctx, ts, batch); err != nil {
		return fmt.Errorf("step %d: dispatch: %w", uint64(ts), err)
	}
	return nil
}

// discard drops events buffered by clocks that advanced before a failed one, so a
// failed step never leaks into the next drain.
func (e *Engine) discard(ts timeevent.UnixNanos) {
	batch := e.acc.Drain()
	if n := batch.Len(); n > 0 {
		observability.Or(e.logger).Debug("discarded events of failed step",
			observability.F("step", uint64(ts)),
			observability.F("events", n),
		)
	}
	if err := batch.Release(); err != nil {
		observability.Or(e.logger).Error("release batch", observability.F("error", err))
	}
}

// Stats returns a snapshot of the run statistics.
func (e *Engine) Stats() RunStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats.clone()
}
