package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/coachpo/backclock/config"
	"github.com/coachpo/backclock/internal/backtest"
	"github.com/coachpo/backclock/internal/observability"
	"github.com/coachpo/backclock/internal/scenario"
	"github.com/coachpo/backclock/internal/telemetry"
	"github.com/coachpo/backclock/pkg/dispatcher"
	"github.com/coachpo/backclock/pkg/recycler"
)

const meterName = "github.com/coachpo/backclock/backtest"

// RunOptions holds flags of the run command.
type RunOptions struct {
	Configs []string
	Data    string
	Workers int
	Events  string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run --config run.yaml [--config other.yaml]",
		Short: "Execute one or more backtest runs and print a report",
		Long: `Execute every run file concurrently. Each run owns its clocks and
accumulator. The report lists per-run statistics; the command fails if
any run failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBacktests(cmd.Context(), rootOpts, opts, cmd)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.Configs, "config", "c", nil, "run config file (repeatable)")
	cmd.Flags().StringVar(&opts.Data, "data", "", "CSV of step timestamps, overrides every run's window")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "runs executed concurrently, overrides BACKCLOCK_WORKERS")
	cmd.Flags().StringVar(&opts.Events, "events", "", "write every fired event as JSON lines to this file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runBacktests(ctx context.Context, rootOpts *RootOptions, opts *RunOptions, cmd *cobra.Command) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	settings := config.Apply(rootOpts.settings, config.WithWorkers(opts.Workers))
	logger := rootOpts.logger

	cfgs := make([]config.RunConfig, 0, len(opts.Configs))
	for _, path := range opts.Configs {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if opts.Data != "" {
			data, err := filepath.Abs(opts.Data)
			if err != nil {
				return fmt.Errorf("resolve data path: %w", err)
			}
			cfg.Data = data
		}
		if cfg.Telemetry.Enabled {
			settings.Telemetry.Enabled = true
			if cfg.Telemetry.Endpoint != "" {
				settings.Telemetry.Endpoint = cfg.Telemetry.Endpoint
			}
			settings.Telemetry.Insecure = settings.Telemetry.Insecure || cfg.Telemetry.Insecure
		}
		cfgs = append(cfgs, cfg)
	}

	provider, err := telemetry.NewProvider(ctx, telemetryConfig(settings))
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			observability.Or(logger).Error("telemetry shutdown", observability.F("error", err))
		}
	}()
	meter := provider.Meter(meterName)

	registry := prometheus.NewRegistry()
	pool := recycler.NewRecycler(nil, recycler.NewRecyclerMetrics(registry))
	if settings.Debug {
		pool.EnableDebugMode()
	}

	var sink *dispatcher.JSONLinesSink
	if opts.Events != "" {
		f, createErr := os.Create(opts.Events)
		if createErr != nil {
			return fmt.Errorf("open events file: %w", createErr)
		}
		defer closeInto(&err, "events file", f)
		sink = dispatcher.NewJSONLinesSink(f)
	}
	fanoutMetrics := dispatcher.NewFanoutMetrics(registry)

	runs, err := buildRuns(cfgs, func(cfg config.RunConfig) (backtest.Runner, error) {
		env := string(settings.Environment)
		if cfg.Environment != "" {
			env = string(cfg.Environment)
		}
		metrics, err := telemetry.NewAccumulatorMetrics(meter, telemetry.RunAttributes(env, cfg.Name)...)
		if err != nil {
			return nil, err
		}
		buildOpts := []scenario.Option{
			scenario.WithLogger(logger),
			scenario.WithMetrics(metrics),
			scenario.WithRecycler(pool),
		}
		if sink != nil {
			buildOpts = append(buildOpts, scenario.WithSubscribers(fanoutMetrics, sink.Subscriber(cfg.Name)))
		}
		sc, err := scenario.Build(cfg, buildOpts...)
		if err != nil {
			return nil, err
		}
		return sc, nil
	})
	if err != nil {
		return err
	}

	results, runErr := backtest.RunAll(ctx, runs, settings.Workers)
	if err := writeReport(cmd, settings.Format, results); err != nil {
		return err
	}
	return runErr
}

func writeReport(cmd *cobra.Command, format string, results []backtest.Result) error {
	if format == config.FormatJSON {
		return backtest.WriteJSONReport(cmd.OutOrStdout(), results)
	}
	return backtest.WriteTextReport(cmd.OutOrStdout(), results)
}

func telemetryConfig(settings config.Settings) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = settings.Telemetry.Enabled
	cfg.OTLPEndpoint = settings.Telemetry.Endpoint
	cfg.OTLPInsecure = settings.Telemetry.Insecure
	cfg.Environment = string(settings.Environment)
	return cfg
}

// buildRuns builds one run per config. On failure every run built so far is closed.
func buildRuns(cfgs []config.RunConfig, build func(config.RunConfig) (backtest.Runner, error)) ([]backtest.Run, error) {
	runs := make([]backtest.Run, 0, len(cfgs))
	for _, cfg := range cfgs {
		engine, err := build(cfg)
		if err != nil {
			closeAll(runs)
			return nil, fmt.Errorf("build run %q: %w", cfg.Name, err)
		}
		runs = append(runs, backtest.Run{Name: cfg.Name, Engine: engine})
	}
	return runs, nil
}

func closeAll(runs []backtest.Run) {
	for _, run := range runs {
		if c, ok := run.Engine.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// closeInto closes c and joins a close failure into *err.
func closeInto(err *error, what string, c io.Closer) {
	if cerr := c.Close(); cerr != nil {
		*err = errors.Join(*err, fmt.Errorf("close %s: %w", what, cerr))
	}
}
