package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesMetadataAndCause(t *testing.T) {
	err := New(
		"clock",
		CodeInvalidAdvance,
		WithMessage("target before current time"),
		WithMetadata(map[string]string{
			"to_time_ns":  "1000",
			"current_ns": "2000",
		}),
		WithField("clock", "venue-a"),
		WithRemediation("advance clocks with non-decreasing targets"),
		WithCause(errors.New("monotonic check failed")),
	)

	out := err.Error()
	if !strings.Contains(out, "component=clock") {
		t.Fatalf("expected component marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=invalid_advance") {
		t.Fatalf("expected code in error string: %s", out)
	}
	expectedMeta := "meta=clock=\"venue-a\",current_ns=\"2000\",to_time_ns=\"1000\""
	if !strings.Contains(out, expectedMeta) {
		t.Fatalf("expected metadata %q in error string: %s", expectedMeta, out)
	}
	if !strings.Contains(out, "remediation=\"advance clocks with non-decreasing targets\"") {
		t.Fatalf("expected remediation guidance in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"monotonic check failed\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestEmptyComponentAndCodeRenderUnknown(t *testing.T) {
	err := New("  ", "")
	if got := err.Error(); got != "component=unknown code=unknown" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}

func TestWithMetadataMerge(t *testing.T) {
	err := New(
		"batch",
		CodeReleased,
		WithMetadata(map[string]string{"len": "1"}),
		WithMetadata(map[string]string{"len": "2", " ": "skipped"}),
	)

	if got := err.Metadata["len"]; got != "2" {
		t.Fatalf("expected latest metadata to win, got %q", got)
	}
	if len(err.Metadata) != 1 {
		t.Fatalf("expected blank keys to be dropped, got %v", err.Metadata)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("advance venue-a: %w", New("clock", CodeInvalidAdvance))

	if !errors.Is(err, New("", CodeInvalidAdvance)) {
		t.Fatalf("expected errors.Is to match on code")
	}
	if errors.Is(err, New("", CodeNoHandler)) {
		t.Fatalf("expected errors.Is to reject a different code")
	}
	if !HasCode(err, CodeInvalidAdvance) {
		t.Fatalf("expected HasCode to find wrapped envelope")
	}
	if HasCode(errors.New("plain"), CodeInvalidAdvance) {
		t.Fatalf("expected HasCode to reject plain errors")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := New("script", CodeScript, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}
