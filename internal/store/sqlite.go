package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
)

// SQLiteStore persists extraction batches into an embedded SQLite database.
// It is the default backend: no server, one file, safe for a single writer.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) the database at path and migrates the schema.
func NewSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database '%s': %w", path, err)
	}

	s := &SQLiteStore{db: db, log: logger.Named("store")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return s, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        scenario TEXT NOT NULL,
        started_at TEXT NOT NULL,
        finished_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS extractions (
        id TEXT PRIMARY KEY,
        run_id TEXT NOT NULL,
        page_url TEXT NOT NULL,
        field TEXT NOT NULL,
        value TEXT NOT NULL,
        observed_at TEXT NOT NULL,
        FOREIGN KEY (run_id) REFERENCES runs(id)
    );

    CREATE INDEX IF NOT EXISTS idx_extractions_run ON extractions(run_id);
    `
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveBatch writes the run row and its records in one transaction.
func (s *SQLiteStore) SaveBatch(ctx context.Context, batch *schemas.ExtractionBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs (id, scenario, started_at, finished_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET finished_at = excluded.finished_at;`,
		batch.RunID, batch.Scenario,
		batch.StartedAt.UTC().Format(time.RFC3339Nano),
		batch.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", batch.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO extractions (id, run_id, page_url, field, value, observed_at)
        VALUES (?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch.Records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, batch.RunID, r.PageURL, r.Field, r.Value,
			r.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to insert extraction %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Persisted extraction batch",
		zap.String("run_id", batch.RunID), zap.Int("records", len(batch.Records)))
	return nil
}

// RecordsByRun returns a run's extraction records ordered by observation time.
func (s *SQLiteStore) RecordsByRun(ctx context.Context, runID string) ([]schemas.ExtractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, page_url, field, value, observed_at
        FROM extractions
        WHERE run_id = ?
        ORDER BY observed_at ASC;`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions: %w", err)
	}
	defer rows.Close()

	var records []schemas.ExtractionRecord
	for rows.Next() {
		var (
			r          schemas.ExtractionRecord
			observedAt string
		)
		if err := rows.Scan(&r.ID, &r.PageURL, &r.Field, &r.Value, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan extraction row: %w", err)
		}
		r.Timestamp, err = time.Parse(time.RFC3339Nano, observedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse observation time '%s': %w", observedAt, err)
		}
		r.RunID = runID
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
