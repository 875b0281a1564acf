// Package cli implements the backtest command line.
package cli

import (
	"fmt"
	"log"
	"slices"

	"github.com/spf13/cobra"

	"github.com/coachpo/backclock/config"
	"github.com/coachpo/backclock/internal/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string
	EnvFile []string

	settings config.Settings
	logger   observability.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{config.FormatText, config.FormatJSON}

// NewRootCommand creates the root command for the backtest CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Drive simulated clocks through a backtest",
		Long: `Replay simulated clocks over a run window, fire their timers and
dispatch the resulting time events in batches, one batch per step.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "", "output format (json|text), overrides BACKCLOCK_FORMAT")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFile, "env-file", []string{".env"}, "dotenv files loaded before reading BACKCLOCK_* variables")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

func (o *RootOptions) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(o.EnvFile...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	settings := config.Apply(config.FromEnv(), config.WithFormat(o.Format))
	if cmd.Flags().Changed("verbose") {
		settings = config.Apply(settings, config.WithDebug(o.Verbose))
	}
	if !slices.Contains(ValidFormats, settings.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", settings.Format, ValidFormats)
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	o.settings = settings
	o.logger = observability.NewStdLogger(log.New(cmd.ErrOrStderr(), "", log.LstdFlags), settings.Debug)
	observability.SetLogger(o.logger)
	return nil
}
