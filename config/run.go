package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/backclock/errs"
	"github.com/coachpo/backclock/pkg/timeevent"
)

const component = "config"

// Timestamp is a UNIX nanosecond instant that decodes from either an integer or an RFC 3339 string.
type Timestamp timeevent.UnixNanos

// Nanos returns the timestamp as UnixNanos.
func (t Timestamp) Nanos() timeevent.UnixNanos { return timeevent.UnixNanos(t) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Timestamp) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp must be a scalar", node.Line)
	}
	raw := strings.TrimSpace(node.Value)
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		*t = Timestamp(n)
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("line %d: timestamp %q is neither integer nanoseconds nor RFC 3339", node.Line, raw)
	}
	if parsed.Before(time.Unix(0, 0)) {
		return fmt.Errorf("line %d: timestamp %q is before the UNIX epoch", node.Line, raw)
	}
	*t = Timestamp(timeevent.FromTime(parsed))
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Timestamp) MarshalYAML() (any, error) {
	return uint64(t), nil
}

// TimerConfig declares one timer. Exactly one of Interval or AlertAt must be set.
type TimerConfig struct {
	Name      string        `yaml:"name"`
	Interval  time.Duration `yaml:"interval,omitempty"`
	Start     Timestamp     `yaml:"start,omitempty"`
	Stop      *Timestamp    `yaml:"stop,omitempty"`
	AlertAt   *Timestamp    `yaml:"alert_at,omitempty"`
	AllowPast *bool         `yaml:"allow_past,omitempty"`
	Script    string        `yaml:"script,omitempty"`
}

// IsAlert reports whether the timer is a one-shot alert.
func (t TimerConfig) IsAlert() bool { return t.AlertAt != nil }

// PastAllowed defaults to true.
func (t TimerConfig) PastAllowed() bool { return t.AllowPast == nil || *t.AllowPast }

// ClockConfig declares a simulated clock and its timers.
type ClockConfig struct {
	Name   string        `yaml:"name"`
	Start  Timestamp     `yaml:"start,omitempty"`
	Timers []TimerConfig `yaml:"timers"`
}

// RunConfig is one backtest run file.
type RunConfig struct {
	Name        string            `yaml:"name"`
	Environment Environment       `yaml:"environment,omitempty"`
	Start       Timestamp         `yaml:"start"`
	End         Timestamp         `yaml:"end"`
	Step        time.Duration     `yaml:"step"`
	SetTime     *bool             `yaml:"set_time,omitempty"`
	Data        string            `yaml:"data,omitempty"`
	Clocks      []ClockConfig     `yaml:"clocks"`
	Telemetry   TelemetrySettings `yaml:"telemetry"`

	// Dir is the directory of the file the run was loaded from. Relative script and data
	// paths resolve against it.
	Dir string `yaml:"-"`
}

// SetsTime defaults to true.
func (r RunConfig) SetsTime() bool { return r.SetTime == nil || *r.SetTime }

// Resolve returns path relative to the run file's directory unless it is absolute.
func (r RunConfig) Resolve(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || r.Dir == "" {
		return path
	}
	return filepath.Join(r.Dir, path)
}

// Load reads and validates a run file.
func Load(path string) (RunConfig, error) {
	clean := filepath.Clean(strings.TrimSpace(path))
	// #nosec G304 -- configuration paths are controlled by operators.
	raw, err := os.ReadFile(clean)
	if err != nil {
		return RunConfig{}, errs.New(component, errs.CodeInvalidConfig,
			errs.WithMessage("read run config"),
			errs.WithField("path", clean),
			errs.WithCause(err),
		)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return RunConfig{}, err
	}
	cfg.Dir = filepath.Dir(clean)
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(clean), filepath.Ext(clean))
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Parse decodes a run document without validating it.
func Parse(raw []byte) (RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RunConfig{}, errs.New(component, errs.CodeInvalidConfig,
			errs.WithMessage("decode run config"),
			errs.WithCause(err),
		)
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Environment = Environment(strings.ToLower(strings.TrimSpace(string(cfg.Environment))))
	return cfg, nil
}

// Validate checks the run window, clocks and timers.
func (r RunConfig) Validate() error {
	if r.Name == "" {
		return invalid("name", "required")
	}
	if r.Data == "" {
		if r.Step <= 0 {
			return invalid("step", "must be positive when no data file is given")
		}
		if r.End < r.Start {
			return invalid("end", "must not be before start")
		}
	}
	if len(r.Clocks) == 0 {
		return invalid("clocks", "at least one clock required")
	}

	clocks := make(map[string]struct{}, len(r.Clocks))
	for i, clk := range r.Clocks {
		field := fmt.Sprintf("clocks[%d]", i)
		name := strings.TrimSpace(clk.Name)
		if name == "" {
			return invalid(field+".name", "required")
		}
		if _, dup := clocks[name]; dup {
			return invalid(field+".name", "duplicate clock "+strconv.Quote(name))
		}
		clocks[name] = struct{}{}
		if r.Data == "" && clk.Start > r.Start {
			return invalid(field+".start", "must not be after the run start")
		}

		timers := make(map[string]struct{}, len(clk.Timers))
		for j, timer := range clk.Timers {
			tfield := fmt.Sprintf("%s.timers[%d]", field, j)
			if err := timer.validate(tfield); err != nil {
				return err
			}
			tname := strings.TrimSpace(timer.Name)
			if _, dup := timers[tname]; dup {
				return invalid(tfield+".name", "duplicate timer "+strconv.Quote(tname))
			}
			timers[tname] = struct{}{}
		}
	}
	return nil
}

func (t TimerConfig) validate(field string) error {
	if strings.TrimSpace(t.Name) == "" {
		return invalid(field+".name", "required")
	}
	switch {
	case t.IsAlert() && t.Interval != 0:
		return invalid(field, "set either interval or alert_at, not both")
	case t.IsAlert():
		if t.Stop != nil {
			return invalid(field+".stop", "not allowed on alerts")
		}
	case t.Interval <= 0:
		return invalid(field+".interval", "must be positive")
	case t.Stop != nil && *t.Stop <= t.Start && t.Start != 0:
		return invalid(field+".stop", "must be after start time")
	}
	if !t.IsAlert() {
		if _, ok := t.Start.Nanos().CheckedAdd(t.Interval); !ok {
			return invalid(field+".start", "start plus interval overflows")
		}
	}
	return nil
}

func invalid(field, message string) error {
	return errs.New(component, errs.CodeInvalidConfig,
		errs.WithMessage(field+": "+message),
		errs.WithField("field", field),
	)
}
