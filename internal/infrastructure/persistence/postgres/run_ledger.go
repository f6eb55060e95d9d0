package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertRunSQL = `
INSERT INTO erasure_runs (run_id, user_id, request_id, state, success, truncated, photo_ref, photo_deleted, steps, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (run_id) DO NOTHING`

	// latest run per user, kept only when it needs a follow-up
	listIncompleteSQL = `
SELECT run_id, user_id, request_id, photo_ref, photo_deleted, success, truncated, finished_at FROM (
	SELECT DISTINCT ON (user_id) run_id, user_id, request_id, photo_ref, photo_deleted, success, truncated, finished_at
	FROM erasure_runs
	ORDER BY user_id, finished_at DESC
) latest
WHERE (NOT success OR truncated) AND finished_at < $1
ORDER BY finished_at
LIMIT $2`

	latestRunSQL = `
SELECT run_id, user_id, request_id, photo_ref, photo_deleted, success, truncated, finished_at
FROM erasure_runs WHERE user_id = $1
ORDER BY finished_at DESC LIMIT 1`
)

// RunLedger implements ports.RunLedger on Postgres.
type RunLedger struct {
	pool *pgxpool.Pool
}

func NewRunLedger(pool *pgxpool.Pool) *RunLedger {
	return &RunLedger{pool: pool}
}

// EnsureSchema creates the ledger table if it does not exist.
func (l *RunLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure erasure_runs schema: %w", err)
	}
	return nil
}

// Ping checks connectivity for health probes.
func (l *RunLedger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func (l *RunLedger) Record(ctx context.Context, r domain.Report) error {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, insertRunSQL,
		r.RunID, r.UserID.String(), r.RequestID, string(r.State), r.Success, r.Truncated(),
		r.PhotoRef, r.PhotoDeleted, steps, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	return nil
}

func (l *RunLedger) ListIncomplete(ctx context.Context, finishedBefore time.Time, limit int) ([]domain.RunRef, error) {
	rows, err := l.pool.Query(ctx, listIncompleteSQL, finishedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list incomplete runs: %w", err)
	}
	refs, err := pgx.CollectRows(rows, scanRunRef)
	if err != nil {
		return nil, fmt.Errorf("list incomplete runs: %w", err)
	}
	return refs, nil
}

func (l *RunLedger) Latest(ctx context.Context, userID domain.UserID) (*domain.RunRef, error) {
	rows, err := l.pool.Query(ctx, latestRunSQL, userID.String())
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	ref, err := pgx.CollectExactlyOneRow(rows, scanRunRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return &ref, nil
}

func scanRunRef(row pgx.CollectableRow) (domain.RunRef, error) {
	var (
		ref domain.RunRef
		uid string
	)
	err := row.Scan(&ref.RunID, &uid, &ref.RequestID, &ref.PhotoRef, &ref.PhotoDeleted, &ref.Success, &ref.Truncated, &ref.FinishedAt)
	ref.UserID = domain.UserID(uid)
	return ref, err
}

var _ ports.RunLedger = (*RunLedger)(nil)
