package refgraph

import (
	"fmt"
	"strings"
)

// StepOutcome records a single cascade step. Rows is meaningful only when
// Err is nil.
type StepOutcome struct {
	Step Step
	Rows int64
	Err  error
}

// Report aggregates the outcome of one cascade run over the full graph.
type Report struct {
	Steps []StepOutcome
}

// OK reports whether every step completed.
func (r Report) OK() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the steps that did not complete.
func (r Report) Failed() []StepOutcome {
	var failed []StepOutcome
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Rows sums the rows touched by the successful steps.
func (r Report) Rows() int64 {
	var n int64
	for _, s := range r.Steps {
		if s.Err == nil {
			n += s.Rows
		}
	}
	return n
}

// Err returns nil when the run completed, otherwise a *PartialCascadeError
// naming every unfinished step.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &PartialCascadeError{Failed: failed}
}

// PartialCascadeError reports that one or more cascade steps did not
// complete. The run is retryable: every step is idempotent, so redelivery
// converges the graph.
type PartialCascadeError struct {
	Failed []StepOutcome
}

func (e *PartialCascadeError) Error() string {
	names := make([]string, len(e.Failed))
	for i, s := range e.Failed {
		names[i] = s.Step.String()
	}
	return fmt.Sprintf("cascade incomplete: %d step(s) failed: %s",
		len(e.Failed), strings.Join(names, ", "))
}
