package cli

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/coachpo/backclock/config"
	"github.com/coachpo/backclock/internal/scenario"
)

// ValidationResult reports whether one run file is usable.
type ValidationResult struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var configs []string
	cmd := &cobra.Command{
		Use:   "validate --config run.yaml",
		Short: "Check run files without executing them",
		Long: `Load every run file, register its timers on fresh clocks and
compile its scripts, without advancing any clock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(rootOpts, configs, cmd)
		},
	}
	cmd.Flags().StringSliceVarP(&configs, "config", "c", nil, "run config file (repeatable)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runValidate(rootOpts *RootOptions, paths []string, cmd *cobra.Command) error {
	results := make([]ValidationResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		result := ValidationResult{Path: path, Valid: true}
		if err := validateOne(path, &result); err != nil {
			result.Valid = false
			result.Error = err.Error()
			failed++
		}
		results = append(results, result)
	}

	out := cmd.OutOrStdout()
	if rootOpts.settings.Format == config.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encode validation results: %w", err)
		}
	} else {
		var b strings.Builder
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(&b, "ok   %s (%s)\n", r.Path, r.Name)
				continue
			}
			fmt.Fprintf(&b, "FAIL %s: %s\n", r.Path, r.Error)
		}
		if _, err := fmt.Fprint(out, b.String()); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d run files invalid", failed, len(paths))
	}
	return nil
}

func validateOne(path string, result *ValidationResult) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	result.Name = cfg.Name
	sc, err := scenario.Build(cfg)
	if err != nil {
		return err
	}
	return sc.Close()
}
