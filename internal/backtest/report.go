package backtest

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

type reportEntry struct {
	Name  string   `json:"name"`
	Stats RunStats `json:"stats"`
	Error string   `json:"error,omitempty"`
}

// WriteJSONReport encodes results as an indented JSON array.
func WriteJSONReport(w io.Writer, results []Result) error {
	entries := make([]reportEntry, 0, len(results))
	for _, r := range results {
		entry := reportEntry{Name: r.Name, Stats: r.Stats}
		if r.Err != nil {
			entry.Error = r.Err.Error()
		}
		entries = append(entries, entry)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteTextReport renders results as human-readable lines.
func WriteTextReport(w io.Writer, results []Result) error {
	var b strings.Builder
	for _, r := range results {
		s := r.Stats
		fmt.Fprintf(&b, "run %s: steps=%d advances=%d events=%d batches=%d max_batch=%d span=%ss\n",
			r.Name, s.Steps, s.Advances, s.Events, s.Batches, s.MaxBatch, s.SpanSeconds.String())
		timers := make([]string, 0, len(s.EventsByTimer))
		for name := range s.EventsByTimer {
			timers = append(timers, name)
		}
		sort.Strings(timers)
		for _, name := range timers {
			fmt.Fprintf(&b, "  %s: %d\n", name, s.EventsByTimer[name])
		}
		if r.Err != nil {
			fmt.Fprintf(&b, "  error: %v\n", r.Err)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
