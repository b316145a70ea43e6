package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)

// NewResolutionStore creates a new ResolutionStore backed by the given connection pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

// Insert records a finalized tally. A market resolves at most once.
func (s *ResolutionStore) Insert(ctx context.Context, r domain.Resolution) error {
	const query = `
		INSERT INTO resolutions (market_id, outcome, weight, total_weight, slots, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query, r.MarketID, int16(r.Outcome), r.Weight, r.TotalWeight, r.Slots, r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: resolution %s: %w", r.MarketID, domain.ErrState)
		}
		return fmt.Errorf("postgres: insert resolution %s: %w", r.MarketID, err)
	}
	return nil
}

// Get returns the resolution of a market.
func (s *ResolutionStore) Get(ctx context.Context, marketID string) (domain.Resolution, error) {
	var r domain.Resolution
	var outcome int16
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, outcome, weight, total_weight, slots, created_at FROM resolutions WHERE market_id = $1`,
		marketID,
	).Scan(&r.MarketID, &outcome, &r.Weight, &r.TotalWeight, &r.Slots, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Resolution{}, fmt.Errorf("postgres: resolution %s: %w", marketID, domain.ErrNotFound)
		}
		return domain.Resolution{}, fmt.Errorf("postgres: get resolution %s: %w", marketID, err)
	}
	r.Outcome = domain.Outcome(outcome)
	return r, nil
}
