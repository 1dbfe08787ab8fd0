// Package store keeps a ledger of extraction runs: their counts, the rows
// and fragments they dropped, and the records they emitted.
package store

import (
	"context"

	"github.com/sells-group/mre-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// CreateRun records the start of a run and assigns its ID.
	CreateRun(ctx context.Context, outputPath string) (*model.RunSummary, error)
	// FinishRun stores the final summary with its skips and records.
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}
