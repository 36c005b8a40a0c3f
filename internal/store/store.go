// Package store persists extraction batches produced by scenario runs. Two
// backends are provided: an embedded SQLite database for the default
// single-binary setup and a PostgreSQL implementation for shared deployments.
package store

import (
	"context"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
)

// Store is the persistence surface the scenario runner writes through.
type Store interface {
	// SaveBatch writes the run row and every record in one transaction.
	SaveBatch(ctx context.Context, batch *schemas.ExtractionBatch) error

	// RecordsByRun returns a run's records ordered by observation time.
	RecordsByRun(ctx context.Context, runID string) ([]schemas.ExtractionRecord, error)

	// Close releases resources the store owns. Backends whose connection
	// lifecycle belongs to the caller return nil.
	Close() error
}
