package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchReport is returned to the caller after a successful commit: the batch
// id plus the number of rows present per entity kind after the run. Counts
// are post-commit totals for the project, not per-batch deltas, so pre-existing
// rows from earlier batches are included.
type BatchReport struct {
	BatchID     uuid.UUID      `json:"batch_id"`
	Source      string         `json:"source"`
	ProjectID   uuid.UUID      `json:"project_id"`
	CommittedAt time.Time      `json:"committed_at"`
	RowCounts   map[string]int `json:"row_counts"`
	Warnings    []string       `json:"warnings,omitempty"`
}
