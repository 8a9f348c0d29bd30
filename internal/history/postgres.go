package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"order-lifecycle-reconciler/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS reconcile_runs (
	id                    BIGSERIAL PRIMARY KEY,
	trigger               TEXT        NOT NULL,
	started_at            TIMESTAMPTZ NOT NULL,
	finished_at           TIMESTAMPTZ NOT NULL,
	completed_count       INTEGER     NOT NULL DEFAULT 0,
	checked_count         INTEGER     NOT NULL DEFAULT 0,
	skipped_due_to_issues INTEGER     NOT NULL DEFAULT 0,
	repaired_count        INTEGER     NOT NULL DEFAULT 0,
	failed_count          INTEGER     NOT NULL DEFAULT 0,
	error                 TEXT        NOT NULL DEFAULT ''
)`

const selectRuns = `
	SELECT id, trigger, started_at, finished_at, completed_count, checked_count,
	       skipped_due_to_issues, repaired_count, failed_count, error
	FROM reconcile_runs
	ORDER BY id DESC
	LIMIT $1`

// Postgres stores runs in the reconcile_runs table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and makes sure the table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create reconcile_runs: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, rec model.RunRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO reconcile_runs (trigger, started_at, finished_at, completed_count, checked_count,
			skipped_due_to_issues, repaired_count, failed_count, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.Trigger, rec.StartedAt, rec.FinishedAt, rec.CompletedCount, rec.CheckedCount,
		rec.SkippedDueToIssues, rec.RepairedCount, rec.FailedCount, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (p *Postgres) Latest(ctx context.Context) (*model.RunRecord, error) {
	runs, err := p.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Recent returns up to n runs, newest first.
func (p *Postgres) Recent(ctx context.Context, n int) ([]model.RunRecord, error) {
	if n <= 0 {
		n = DefaultCapacity
	}
	rows, err := p.pool.Query(ctx, selectRuns, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RunRecord, error) {
		var r model.RunRecord
		err := row.Scan(&r.ID, &r.Trigger, &r.StartedAt, &r.FinishedAt, &r.CompletedCount, &r.CheckedCount,
			&r.SkippedDueToIssues, &r.RepairedCount, &r.FailedCount, &r.Error)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	return runs, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
