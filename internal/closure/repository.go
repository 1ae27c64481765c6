package closure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studioledger/studioledger/internal/shared"
)

// Repository persists closure status rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a closure repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("closure: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err = fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get fetches the status row for a period.
func (r *Repository) Get(ctx context.Context, periodDate time.Time, periodType shared.PeriodType) (StatusRecord, error) {
	if r == nil || r.pool == nil {
		return StatusRecord{}, fmt.Errorf("closure: repository not initialised")
	}
	const query = `
		SELECT period_date, period_type, status, metadata, updated_at
		FROM closure_status
		WHERE period_date = $1 AND period_type = $2`
	return scanStatus(r.pool.QueryRow(ctx, query, periodDate, string(periodType)))
}

// GetForUpdate locks the status row inside the transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, periodDate time.Time, periodType shared.PeriodType) (StatusRecord, error) {
	const query = `
		SELECT period_date, period_type, status, metadata, updated_at
		FROM closure_status
		WHERE period_date = $1 AND period_type = $2
		FOR UPDATE`
	return scanStatus(tx.QueryRow(ctx, query, periodDate, string(periodType)))
}

// Insert creates the status row for a period.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, rec StatusRecord) error {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO closure_status (period_date, period_type, status, metadata, updated_at)
		VALUES ($1, $2, $3, $4, NOW())`
	_, err = tx.Exec(ctx, query, rec.PeriodDate, string(rec.PeriodType), string(rec.Status), metaJSON)
	return err
}

// Update mutates status and metadata for an existing row.
func (r *Repository) Update(ctx context.Context, tx pgx.Tx, rec StatusRecord) error {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	const query = `
		UPDATE closure_status
		SET status = $3, metadata = $4, updated_at = NOW()
		WHERE period_date = $1 AND period_type = $2`
	tag, err := tx.Exec(ctx, query, rec.PeriodDate, string(rec.PeriodType), string(rec.Status), metaJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusNotFound
	}
	return nil
}

// InTx exposes the transactional store to the service layer.
func (r *Repository) InTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, txStore{repo: r, tx: tx})
	})
}

type txStore struct {
	repo *Repository
	tx   pgx.Tx
}

func (s txStore) GetForUpdate(ctx context.Context, periodDate time.Time, periodType shared.PeriodType) (StatusRecord, error) {
	return s.repo.GetForUpdate(ctx, s.tx, periodDate, periodType)
}

func (s txStore) Insert(ctx context.Context, rec StatusRecord) error {
	return s.repo.Insert(ctx, s.tx, rec)
}

func (s txStore) Update(ctx context.Context, rec StatusRecord) error {
	return s.repo.Update(ctx, s.tx, rec)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (StatusRecord, error) {
	var (
		rec        StatusRecord
		periodType string
		status     string
		metaJSON   []byte
	)
	err := row.Scan(&rec.PeriodDate, &periodType, &status, &metaJSON, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StatusRecord{}, ErrStatusNotFound
		}
		return StatusRecord{}, err
	}
	rec.PeriodType = shared.PeriodType(periodType)
	rec.Status = Status(status)
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &rec.Metadata)
	}
	return rec, nil
}
