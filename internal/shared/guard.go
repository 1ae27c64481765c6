package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunGuard is a unique in-flight marker backed by Postgres. Acquiring the
// same key twice fails on the primary key, which closes the race where two
// concurrent closures for one model+period both pass verification before
// either deletes.
type RunGuard struct {
	pool *pgxpool.Pool
}

// NewRunGuard constructs the guard.
func NewRunGuard(pool *pgxpool.Pool) *RunGuard {
	return &RunGuard{pool: pool}
}

// ArchiveRunKey builds the guard key for an archive-and-reset invocation.
func ArchiveRunKey(modelID uuid.UUID, periodDate time.Time, periodType PeriodType) string {
	return fmt.Sprintf("archive:%s:%s:%s", modelID, periodDate.Format("2006-01-02"), periodType)
}

// Acquire inserts the marker, returning ErrRunInFlight when it already exists.
func (g *RunGuard) Acquire(ctx context.Context, key string) error {
	if g == nil || g.pool == nil {
		return errors.New("shared: run guard not initialised")
	}
	if key == "" {
		return errors.New("shared: run guard key required")
	}
	_, err := g.pool.Exec(ctx, `INSERT INTO closure_run_guard (key, started_at) VALUES ($1, $2)`, key, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrRunInFlight
		}
		return err
	}
	return nil
}

// Release removes the marker once the run finishes, regardless of outcome.
func (g *RunGuard) Release(ctx context.Context, key string) error {
	if g == nil || g.pool == nil {
		return nil
	}
	_, err := g.pool.Exec(ctx, `DELETE FROM closure_run_guard WHERE key = $1`, key)
	return err
}

// Cleanup removes stale markers left behind by crashed workers and returns
// how many were dropped. Release only runs inside the owning process, so a
// hard crash mid-run leaves its marker behind and every retry of that
// model+period hits ErrRunInFlight until the marker ages out here.
func (g *RunGuard) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if g == nil || g.pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := g.pool.Exec(ctx, `DELETE FROM closure_run_guard WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
