package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Create registers a market, its version-0 status and any seeded ledger
// slots in one transaction.
func (s *MarketStore) Create(ctx context.Context, m domain.MarketRecord, initial domain.StatusVersion, slots []domain.LedgerSlot) error {
	registry, err := json.Marshal(m.Registry)
	if err != nil {
		return fmt.Errorf("postgres: marshal registry: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create market %s: %w", m.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertMarket = `
		INSERT INTO markets (id, metadata, registry, ledger_depth, hash_name, ladder_root, current_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.Exec(ctx, insertMarket,
		m.ID, m.Metadata, registry, m.LedgerDepth, m.HashName, m.LadderRoot[:], initial.Version, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: market %s exists: %w", m.ID, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}

	if err := insertStatus(ctx, tx, initial); err != nil {
		return err
	}
	if err := upsertSlots(ctx, tx, slots); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create market %s: %w", m.ID, err)
	}
	return nil
}

const marketCols = `id, metadata, registry, ledger_depth, hash_name, ladder_root, created_at`

func scanMarket(row pgx.Row) (domain.MarketRecord, error) {
	var m domain.MarketRecord
	var registry, root []byte
	if err := row.Scan(&m.ID, &m.Metadata, &registry, &m.LedgerDepth, &m.HashName, &root, &m.CreatedAt); err != nil {
		return domain.MarketRecord{}, err
	}
	if err := json.Unmarshal(registry, &m.Registry); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("unmarshal registry: %w", err)
	}
	copy(m.LadderRoot[:], root)
	return m, nil
}

// GetByID retrieves a market by its id.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.MarketRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketRecord{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.MarketRecord{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	query, args := withTimeRange(`SELECT `+marketCols+` FROM markets WHERE 1=1`, "created_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketRecord
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}

// withTimeRange appends the ListOpts filters, newest-first ordering and
// pagination to a query that already has a WHERE clause.
func withTimeRange(query, col string, opts domain.ListOpts, args ...any) (string, []any) {
	argIdx := len(args) + 1
	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", col, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", col, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY %s DESC", col)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
