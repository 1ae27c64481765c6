package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studioledger/studioledger/internal/shared"
)

// ErrSnapshotNotFound indicates no snapshot exists for the key.
var ErrSnapshotNotFound = fmt.Errorf("backup: snapshot %w", shared.ErrNotFound)

// SnapshotRepository persists point-in-time snapshots.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Upsert writes the snapshot, replacing any previous payload for the same
// logical period key.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap Snapshot) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("backup: snapshot repository not initialised")
	}
	const query = `
		INSERT INTO closure_snapshots (id, model_id, period_date, period_type, payload, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    checksum = EXCLUDED.checksum,
		    created_at = NOW()`
	_, err := r.pool.Exec(ctx, query,
		snap.ID, snap.ModelID, snap.PeriodDate, string(snap.PeriodType), snap.Payload, snap.Checksum)
	return err
}

// Get loads one snapshot by id.
func (r *SnapshotRepository) Get(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	if r == nil || r.pool == nil {
		return Snapshot{}, fmt.Errorf("backup: snapshot repository not initialised")
	}
	const query = `
		SELECT id, model_id, period_date, period_type, payload, checksum, created_at
		FROM closure_snapshots WHERE id = $1`
	var (
		snap       Snapshot
		periodType string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&snap.ID, &snap.ModelID, &snap.PeriodDate, &periodType, &snap.Payload, &snap.Checksum, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, err
	}
	snap.PeriodType = shared.PeriodType(periodType)
	return snap, nil
}

// ListForModel returns snapshot metadata (no payload) for a model, newest
// first.
func (r *SnapshotRepository) ListForModel(ctx context.Context, modelID uuid.UUID) ([]Snapshot, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("backup: snapshot repository not initialised")
	}
	const query = `
		SELECT id, model_id, period_date, period_type, checksum, created_at
		FROM closure_snapshots
		WHERE model_id = $1
		ORDER BY period_date DESC, period_type DESC`
	rows, err := r.pool.Query(ctx, query, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var (
			snap       Snapshot
			periodType string
		)
		if err := rows.Scan(&snap.ID, &snap.ModelID, &snap.PeriodDate, &periodType, &snap.Checksum, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snap.PeriodType = shared.PeriodType(periodType)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
