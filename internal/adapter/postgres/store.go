// Package postgres stores export tables in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS tall_rows (
    dataset     TEXT NOT NULL,
    variable    TEXT NOT NULL,
    region_id   TEXT NOT NULL,
    date_key    TEXT NOT NULL,
    value       DOUBLE PRECISION NOT NULL,
    run_id      UUID NOT NULL,
    exported_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (dataset, variable, region_id, date_key)
);
CREATE TABLE IF NOT EXISTS wide_cells (
    dataset     TEXT NOT NULL,
    variable    TEXT NOT NULL,
    region_id   TEXT NOT NULL,
    column_key  TEXT NOT NULL,
    value       DOUBLE PRECISION,
    run_id      UUID NOT NULL,
    exported_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (dataset, variable, region_id, column_key)
);`

const (
	upsertTall = `INSERT INTO tall_rows (dataset, variable, region_id, date_key, value, run_id, exported_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (dataset, variable, region_id, date_key) DO UPDATE
SET value = EXCLUDED.value,
    run_id = EXCLUDED.run_id,
    exported_at = EXCLUDED.exported_at`

	upsertWide = `INSERT INTO wide_cells (dataset, variable, region_id, column_key, value, run_id, exported_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (dataset, variable, region_id, column_key) DO UPDATE
SET value = EXCLUDED.value,
    run_id = EXCLUDED.run_id,
    exported_at = EXCLUDED.exported_at`

	pruneTall = `DELETE FROM tall_rows WHERE dataset = $1 AND variable = $2 AND run_id <> $3`
	pruneWide = `DELETE FROM wide_cells WHERE dataset = $1 AND variable = $2 AND run_id <> $3`
)

// Store upserts exports into tall_rows and wide_cells.
// It implements pipeline.Loader.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Migrate creates the export tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Load replaces a variable's stored tables with the export in one
// transaction. Rows from earlier runs that the export no longer contains are
// removed.
func (s *Store) Load(ctx context.Context, exp domain.Export) error {
	batch := buildBatch(exp)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		res := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := res.Exec(); err != nil {
				_ = res.Close()
				return err
			}
		}
		return res.Close()
	})
	if err != nil {
		return fmt.Errorf("store %s export: %w", exp.Variable.Name, err)
	}
	s.logger.Debug("postgres export stored", "variable", exp.Variable.Name, "statements", batch.Len())
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

// buildBatch queues upserts for every tall row and wide cell, followed by the
// prune of stale rows.
func buildBatch(exp domain.Export) *pgx.Batch {
	batch := &pgx.Batch{}
	name := exp.Variable.Name
	for _, r := range exp.Tall {
		batch.Queue(upsertTall, exp.Dataset, name, r.RegionID, r.DateKey, r.Value, exp.RunID, exp.ExportedAt)
	}
	for _, r := range exp.Wide {
		for _, c := range exp.Columns {
			v, ok := r.Values[c]
			if !ok {
				continue
			}
			batch.Queue(upsertWide, exp.Dataset, name, r.RegionID, c, v, exp.RunID, exp.ExportedAt)
		}
	}
	batch.Queue(pruneTall, exp.Dataset, name, exp.RunID)
	batch.Queue(pruneWide, exp.Dataset, name, exp.RunID)
	return batch
}
