package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/backclock/config"
	"github.com/coachpo/backclock/internal/backtest"
)

const runYAML = `
name: demo
start: 0
end: 30
step: 10ns
clocks:
  - name: venue
    timers:
      - name: bar
        interval: 10ns
      - name: close
        alert_at: 25
`

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"BACKCLOCK_ENV", "BACKCLOCK_FORMAT", "BACKCLOCK_WORKERS", "BACKCLOCK_DEBUG", "BACKCLOCK_TELEMETRY_ENABLED"} {
		t.Setenv(key, "")
	}
}

func writeRun(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "backtest", cmd.Use)

	for _, name := range []string{"run", "validate"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
}

func TestRunPrintsTextReport(t *testing.T) {
	isolateEnv(t)
	path := writeRun(t, runYAML)

	out, _, err := execute(t, "run", "--config", path)
	require.NoError(t, err)
	assert.Equal(t,
		"run demo: steps=4 advances=4 events=4 batches=3 max_batch=2 span=0.00000003s\n"+
			"  bar: 3\n"+
			"  close: 1\n",
		out)
}

func TestRunPrintsJSONReport(t *testing.T) {
	isolateEnv(t)
	path := writeRun(t, runYAML)

	out, _, err := execute(t, "--format", "json", "run", "-c", path, "-c", path, "--workers", "2")
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	for _, entry := range decoded {
		assert.Equal(t, "demo", entry["name"])
		stats := entry["stats"].(map[string]any)
		assert.EqualValues(t, 4, stats["events"])
	}
}

func TestRunWithDataOverride(t *testing.T) {
	isolateEnv(t)
	path := writeRun(t, runYAML)
	data := filepath.Join(t.TempDir(), "steps.csv")
	require.NoError(t, os.WriteFile(data, []byte("ts_ns\n100\n"), 0o600))

	out, _, err := execute(t, "run", "--config", path, "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "steps=1 advances=1 events=11")
}

func TestRunWritesEventsFile(t *testing.T) {
	isolateEnv(t)
	path := writeRun(t, runYAML)
	events := filepath.Join(t.TempDir(), "events.jsonl")

	_, _, err := execute(t, "run", "--config", path, "--events", events)
	require.NoError(t, err)

	raw, err := os.ReadFile(events)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 4)

	var names []string
	for _, line := range lines {
		var ev struct {
			Run  string `json:"run"`
			Step int64  `json:"step"`
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		require.Equal(t, "demo", ev.Run)
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"bar", "bar", "close", "bar"}, names)
}

func TestRunReportsFailures(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fail.js"),
		[]byte(`exports.onTimeEvent = function () { throw new Error("nope"); };`), 0o600))
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: failing
end: 10
step: 10ns
clocks:
  - name: venue
    timers:
      - name: tick
        interval: 10ns
        script: fail.js
`), 0o600))

	out, stderr, err := execute(t, "run", "--config", path)
	require.Error(t, err)
	assert.Contains(t, out, "run failing:")
	assert.Contains(t, out, "error:")
	assert.Contains(t, stderr, "script callback failed")
}

func TestRunRejectsInvalidFormat(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "--format", "xml", "run", "--config", writeRun(t, runYAML))
	require.ErrorContains(t, err, "invalid format")
}

func TestRunRequiresConfig(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "run")
	require.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	isolateEnv(t)
	good := writeRun(t, runYAML)
	bad := writeRun(t, "name: broken\nstep: 0s\nclocks: []\n")

	out, _, err := execute(t, "validate", "--config", good)
	require.NoError(t, err)
	assert.Equal(t, "ok   "+good+" (demo)\n", out)

	out, _, err = execute(t, "--format", "json", "validate", "-c", good, "-c", bad)
	require.ErrorContains(t, err, "1 of 2 run files invalid")
	var results []ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid)
	assert.False(t, results[1].Valid)
	assert.Contains(t, results[1].Error, "invalid_config")
}

type closingRunner struct {
	closed int
}

func (c *closingRunner) Run(context.Context) error { return nil }
func (c *closingRunner) Stats() backtest.RunStats  { return backtest.RunStats{} }
func (c *closingRunner) Close() error {
	c.closed++
	return nil
}

func TestBuildRunsClosesBuiltRunsOnFailure(t *testing.T) {
	built := []*closingRunner{}
	cfgs := []config.RunConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	runs, err := buildRuns(cfgs, func(cfg config.RunConfig) (backtest.Runner, error) {
		if cfg.Name == "b" {
			return nil, errors.New("metrics unavailable")
		}
		r := &closingRunner{}
		built = append(built, r)
		return r, nil
	})
	require.Nil(t, runs)
	require.EqualError(t, err, `build run "b": metrics unavailable`)
	require.Len(t, built, 1)
	require.Equal(t, 1, built[0].closed)
}

type failingCloser struct{ err error }

func (f failingCloser) Close() error { return f.err }

func TestCloseIntoJoinsCloseError(t *testing.T) {
	diskFull := errors.New("disk full")
	var err error
	closeInto(&err, "events file", failingCloser{err: diskFull})
	require.ErrorIs(t, err, diskFull)
	require.EqualError(t, err, "close events file: disk full")

	runErr := errors.New("run failed")
	err = runErr
	closeInto(&err, "events file", failingCloser{err: diskFull})
	require.ErrorIs(t, err, runErr)
	require.ErrorIs(t, err, diskFull)

	err = nil
	closeInto(&err, "events file", failingCloser{})
	require.NoError(t, err)
}
