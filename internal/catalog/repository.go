package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPlatformNotFound indicates the requested platform id is missing.
var ErrPlatformNotFound = errors.New("catalog: platform not found")

// Repository reads the platform catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns every active platform.
func (r *Repository) ListActive(ctx context.Context) ([]Platform, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("catalog: repository not initialised")
	}
	const query = `SELECT id, name, currency, active FROM platforms WHERE active = TRUE ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var platforms []Platform
	for rows.Next() {
		var p Platform
		if err := rows.Scan(&p.ID, &p.Name, &p.Currency, &p.Active); err != nil {
			return nil, err
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// ActiveIndex returns the active platforms keyed by id.
func (r *Repository) ActiveIndex(ctx context.Context) (Index, error) {
	platforms, err := r.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ix := make(Index, len(platforms))
	for _, p := range platforms {
		ix[p.ID] = p
	}
	return ix, nil
}

// Get returns one platform by id.
func (r *Repository) Get(ctx context.Context, id string) (Platform, error) {
	if r == nil || r.pool == nil {
		return Platform{}, fmt.Errorf("catalog: repository not initialised")
	}
	const query = `SELECT id, name, currency, active FROM platforms WHERE id = $1`
	var p Platform
	if err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Currency, &p.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Platform{}, ErrPlatformNotFound
		}
		return Platform{}, err
	}
	return p, nil
}
