package observability

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Outcome is the result of one named unit of work. A nil Err means it succeeded.
type Outcome struct {
	Name string
	Err  error
}

// JoinFailures logs which outcomes failed and returns their errors joined under a
// "<operation>: <n> of <total> failed (<names>)" prefix. It returns nil when every
// outcome succeeded.
func JoinFailures(logger Logger, operation string, outcomes []Outcome, fields ...Field) error {
	var names []string
	var failures []error
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		names = append(names, o.Name)
		failures = append(failures, o.Err)
	}
	if len(failures) == 0 {
		return nil
	}
	failed := strings.Join(names, ", ")
	Or(logger).Error(operation+" failed", append(slices.Clone(fields),
		F("failed", failed),
		F("failed_count", len(failures)),
		F("total", len(outcomes)),
	)...)
	return fmt.Errorf("%s: %d of %d failed (%s): %w", operation, len(failures), len(outcomes), failed, errors.Join(failures...))
}
