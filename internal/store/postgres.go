package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresStore persists extraction batches into PostgreSQL, using COPY for
// the record rows.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a new store instance and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the runs and extractions tables when they are absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            scenario TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS extractions (
            id TEXT PRIMARY KEY,
            run_id TEXT NOT NULL REFERENCES runs(id),
            page_url TEXT NOT NULL,
            field TEXT NOT NULL,
            value TEXT NOT NULL,
            observed_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_run ON extractions(run_id);`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// SaveBatch handles the database transaction for inserting a run and all of
// its extraction records.
func (s *PostgresStore) SaveBatch(ctx context.Context, batch *schemas.ExtractionBatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && rollbackErr != pgx.ErrTxClosed {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.persistRun(ctx, tx, batch); err != nil {
		return err
	}
	if len(batch.Records) > 0 {
		if err := s.persistRecords(ctx, tx, batch); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Persisted extraction batch",
		zap.String("run_id", batch.RunID), zap.Int("records", len(batch.Records)))
	return nil
}

func (s *PostgresStore) persistRun(ctx context.Context, tx pgx.Tx, batch *schemas.ExtractionBatch) error {
	sql := `
        INSERT INTO runs (id, scenario, started_at, finished_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            finished_at = EXCLUDED.finished_at;
    `
	if _, err := tx.Exec(ctx, sql, batch.RunID, batch.Scenario, batch.StartedAt, batch.FinishedAt); err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", batch.RunID, err)
	}
	return nil
}

func (s *PostgresStore) persistRecords(ctx context.Context, tx pgx.Tx, batch *schemas.ExtractionBatch) error {
	rows := make([][]interface{}, len(batch.Records))
	for i, r := range batch.Records {
		rows[i] = []interface{}{
			r.ID, batch.RunID, r.PageURL, r.Field, r.Value, r.Timestamp,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"extractions"},
		[]string{"id", "run_id", "page_url", "field", "value", "observed_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy extractions: %w", err)
	}
	if int(copyCount) != len(batch.Records) {
		return fmt.Errorf("mismatch in copied extraction count: expected %d, got %d", len(batch.Records), copyCount)
	}
	return nil
}

// RecordsByRun returns a run's extraction records ordered by observation time.
func (s *PostgresStore) RecordsByRun(ctx context.Context, runID string) ([]schemas.ExtractionRecord, error) {
	query := `
        SELECT id, page_url, field, value, observed_at
        FROM extractions
        WHERE run_id = $1
        ORDER BY observed_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions: %w", err)
	}
	defer rows.Close()

	var records []schemas.ExtractionRecord
	for rows.Next() {
		var r schemas.ExtractionRecord
		if err := rows.Scan(&r.ID, &r.PageURL, &r.Field, &r.Value, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan extraction row: %w", err)
		}
		r.RunID = runID
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Close is a no-op; the pgx pool's lifecycle belongs to whoever built it.
func (s *PostgresStore) Close() error { return nil }
