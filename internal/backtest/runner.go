package backtest

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/backclock/internal/observability"
)

// Runner is anything that executes a backtest and reports its statistics. *Engine is a Runner.
type Runner interface {
	Run(ctx context.Context) error
	Stats() RunStats
}

// Run names an independent runner. Runners must not share clocks or accumulators.
type Run struct {
	Name   string
	Engine Runner
}

// Result reports the outcome of one Run.
type Result struct {
	Name  string   `json:"name"`
	Stats RunStats `json:"stats"`
	Err   error    `json:"-"`
}

// RunAll executes independent runs concurrently with at most maxWorkers in flight.
// Results keep the order of runs. The returned error aggregates every failed run.
func RunAll(ctx context.Context, runs []Run, maxWorkers int) ([]Result, error) {
	if maxWorkers <= 0 || maxWorkers > len(runs) {
		maxWorkers = max(len(runs), 1)
	}
	results := make([]Result, len(runs))
	p := pool.New().WithMaxGoroutines(maxWorkers).WithContext(ctx)
	for i, run := range runs {
		p.Go(func(ctx context.Context) error {
			result := Result{Name: run.Name}
			if run.Engine == nil {
				result.Err = fmt.Errorf("run %q: engine required", run.Name)
			} else {
				result.Err = run.Engine.Run(ctx)
				result.Stats = run.Engine.Stats()
			}
			if result.Err != nil {
				result.Err = fmt.Errorf("run %q: %w", run.Name, result.Err)
			}
			results[i] = result
			return nil
		})
	}
	_ = p.Wait()

	outcomes := make([]observability.Outcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, observability.Outcome{Name: r.Name, Err: r.Err})
	}
	return results, observability.JoinFailures(nil, "backtest runs", outcomes,
		observability.F("runs", len(runs)),
		observability.F("workers", maxWorkers),
	)
}
