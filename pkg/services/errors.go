package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Violation describes one unresolved reference, missing required field, or
// broken invariant, attributed to the staged field that caused it.
type Violation struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Value != "" {
		return fmt.Sprintf("%s=%q: %s", v.Field, v.Value, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// PreflightError aggregates every violation found before any write. The batch
// was rejected read-only; correcting the staged records and resubmitting is
// safe.
type PreflightError struct {
	BatchID    uuid.UUID
	Violations []Violation
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("batch %s rejected in preflight: %s", e.BatchID, joinViolations(e.Violations))
}

// AssertionError aggregates post-load invariant violations. Every write made
// by the batch has been rolled back; the store is unchanged. Unlike a
// preflight failure, this signals the source data needs re-examination, not a
// blind retry.
type AssertionError struct {
	BatchID    uuid.UUID
	Violations []Violation
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("batch %s failed post-load assertions (rolled back): %s", e.BatchID, joinViolations(e.Violations))
}

func joinViolations(violations []Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}
