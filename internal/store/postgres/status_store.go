package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
)

// StatusStore implements domain.StatusStore and domain.LedgerStore. Status
// rows store the raw blob; the decoded form is rebuilt on read.
type StatusStore struct {
	pool *pgxpool.Pool
}

var (
	_ domain.StatusStore = (*StatusStore)(nil)
	_ domain.LedgerStore = (*StatusStore)(nil)
)

// NewStatusStore creates a new StatusStore backed by the given connection pool.
func NewStatusStore(pool *pgxpool.Pool) *StatusStore {
	return &StatusStore{pool: pool}
}

const statusCols = `market_id, version, blob, kind, payment, transition_id, created_at`

func scanStatus(row pgx.Row) (domain.StatusVersion, error) {
	var v domain.StatusVersion
	var kind string
	if err := row.Scan(&v.MarketID, &v.Version, &v.Blob, &kind, &v.Payment, &v.TransitionID, &v.CreatedAt); err != nil {
		return domain.StatusVersion{}, err
	}
	status, err := codec.DecodeStatus(v.Blob)
	if err != nil {
		return domain.StatusVersion{}, fmt.Errorf("decode status %s@%d: %w", v.MarketID, v.Version, err)
	}
	v.Status = status
	v.Kind = domain.TransitionKind(kind)
	return v, nil
}

func insertStatus(ctx context.Context, tx pgx.Tx, v domain.StatusVersion) error {
	const query = `INSERT INTO market_status (` + statusCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.Exec(ctx, query, v.MarketID, v.Version, v.Blob, string(v.Kind), v.Payment, v.TransitionID, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: status %s@%d: %w", v.MarketID, v.Version, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: insert status %s@%d: %w", v.MarketID, v.Version, err)
	}
	return nil
}

// Current returns the latest status of a market.
func (s *StatusStore) Current(ctx context.Context, marketID string) (domain.StatusVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+statusCols+` FROM market_status WHERE market_id = $1 ORDER BY version DESC LIMIT 1`, marketID)
	v, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StatusVersion{}, fmt.Errorf("postgres: status of %s: %w", marketID, domain.ErrNotFound)
		}
		return domain.StatusVersion{}, fmt.Errorf("postgres: current status %s: %w", marketID, err)
	}
	return v, nil
}

// Append commits v as the next version and writes the changed ledger slots
// in the same transaction. The market row is locked so concurrent writers
// serialize; a writer that read a stale version gets ErrConflict.
func (s *StatusStore) Append(ctx context.Context, v domain.StatusVersion, slots []domain.LedgerSlot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin append %s: %w", v.MarketID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int64
	err = tx.QueryRow(ctx, `SELECT current_version FROM markets WHERE id = $1 FOR UPDATE`, v.MarketID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: market %s: %w", v.MarketID, domain.ErrNotFound)
		}
		return fmt.Errorf("postgres: lock market %s: %w", v.MarketID, err)
	}
	if v.Version != current+1 {
		return fmt.Errorf("postgres: append %s@%d over %d: %w", v.MarketID, v.Version, current, domain.ErrConflict)
	}

	if err := insertStatus(ctx, tx, v); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE markets SET current_version = $2 WHERE id = $1`, v.MarketID, v.Version); err != nil {
		return fmt.Errorf("postgres: bump version %s: %w", v.MarketID, err)
	}

	if err := upsertSlots(ctx, tx, slots); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit append %s@%d: %w", v.MarketID, v.Version, err)
	}
	return nil
}

func upsertSlots(ctx context.Context, tx pgx.Tx, slots []domain.LedgerSlot) error {
	if len(slots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const upsert = `
		INSERT INTO ledger_slots (market_id, slot, entry, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, slot) DO UPDATE SET
			entry      = EXCLUDED.entry,
			updated_at = EXCLUDED.updated_at`
	for _, sl := range slots {
		batch.Queue(upsert, sl.MarketID, sl.Slot, codec.EncodeEntry(sl.Entry), sl.UpdatedAt)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range slots {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: upsert ledger slot batch item %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close ledger batch: %w", err)
	}
	return nil
}

// History returns the versions of a market, newest first.
func (s *StatusStore) History(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.StatusVersion, error) {
	query, args := withTimeRange(`SELECT `+statusCols+` FROM market_status WHERE market_id = $1`, "created_at", opts, marketID)
	return s.query(ctx, "history", query, args...)
}

// ListBefore returns superseded versions created strictly before the cutoff.
func (s *StatusStore) ListBefore(ctx context.Context, before time.Time) ([]domain.StatusVersion, error) {
	const query = `
		SELECT s.market_id, s.version, s.blob, s.kind, s.payment, s.transition_id, s.created_at
		FROM market_status s
		JOIN markets m ON m.id = s.market_id
		WHERE s.created_at < $1 AND s.version < m.current_version
		ORDER BY s.market_id, s.version`
	return s.query(ctx, "list before", query, before)
}

// DeleteArchived removes the listed versions once they have been shipped to
// cold storage. The current version of a market is kept even if listed.
func (s *StatusStore) DeleteArchived(ctx context.Context, versions []domain.StatusVersion) (int64, error) {
	if len(versions) == 0 {
		return 0, nil
	}
	ids := make([]string, len(versions))
	nums := make([]int64, len(versions))
	for i, v := range versions {
		ids[i], nums[i] = v.MarketID, v.Version
	}
	const query = `
		DELETE FROM market_status s
		USING markets m, unnest($1::text[], $2::bigint[]) AS a(market_id, version)
		WHERE m.id = s.market_id
		  AND s.market_id = a.market_id AND s.version = a.version
		  AND s.version < m.current_version`
	tag, err := s.pool.Exec(ctx, query, ids, nums)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete archived status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *StatusStore) query(ctx context.Context, what, query string, args ...any) ([]domain.StatusVersion, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: status %s: %w", what, err)
	}
	defer rows.Close()

	var out []domain.StatusVersion
	for rows.Next() {
		v, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan status: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: status %s rows: %w", what, err)
	}
	return out, nil
}

// Slots returns the populated ledger slots of a market in slot order.
func (s *StatusStore) Slots(ctx context.Context, marketID string) ([]domain.LedgerSlot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, slot, entry, updated_at FROM ledger_slots WHERE market_id = $1 ORDER BY slot`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: ledger slots %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.LedgerSlot
	for rows.Next() {
		var sl domain.LedgerSlot
		var raw []byte
		if err := rows.Scan(&sl.MarketID, &sl.Slot, &raw, &sl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger slot: %w", err)
		}
		if sl.Entry, err = codec.DecodeEntry(raw); err != nil {
			return nil, fmt.Errorf("postgres: decode ledger slot %s/%d: %w", marketID, sl.Slot, err)
		}
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: ledger slots rows: %w", err)
	}
	return out, nil
}
