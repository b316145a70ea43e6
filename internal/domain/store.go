package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketRecord is the immutable registration of a market.
type MarketRecord struct {
	ID          string      `json:"id"`
	Metadata    []byte      `json:"metadata"`
	Registry    []OracleKey `json:"registry"`
	LedgerDepth int         `json:"ledger_depth"`
	HashName    string      `json:"hash"`
	LadderRoot  Digest      `json:"ladder_root"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TransitionKind labels what produced a status version.
type TransitionKind string

const (
	TransitionCreate  TransitionKind = "create"
	TransitionTrade   TransitionKind = "trade"
	TransitionRedeem  TransitionKind = "redeem"
	TransitionResolve TransitionKind = "resolve"
)

// StatusVersion is one committed MarketStatus in a market's history.
// Version 0 is the creation status; each accepted transition adds one.
type StatusVersion struct {
	MarketID     string         `json:"market_id"`
	Version      int64          `json:"version"`
	Status       MarketStatus   `json:"status"`
	Blob         []byte         `json:"blob"`
	Kind         TransitionKind `json:"kind"`
	Payment      int64          `json:"payment"`
	TransitionID string         `json:"transition_id"`
	CreatedAt    time.Time      `json:"created_at"`
}

// LedgerSlot is the off-chain projection of one balance-table leaf.
type LedgerSlot struct {
	MarketID  string      `json:"market_id"`
	Slot      int         `json:"slot"`
	Entry     LedgerEntry `json:"entry"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Resolution records a finalized oracle tally.
type Resolution struct {
	MarketID    string    `json:"market_id"`
	Outcome     Outcome   `json:"outcome"`
	Weight      int       `json:"weight"`
	TotalWeight int       `json:"total_weight"`
	Slots       []int     `json:"slots"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarketStore persists market registrations together with their creation
// status and seeded ledger slots.
type MarketStore interface {
	Create(ctx context.Context, market MarketRecord, initial StatusVersion, slots []LedgerSlot) error
	GetByID(ctx context.Context, id string) (MarketRecord, error)
	List(ctx context.Context, opts ListOpts) ([]MarketRecord, error)
}

// StatusStore persists the version history of market statuses. Append must
// fail with ErrConflict unless v.Version is exactly one past the current
// version, and must write the changed ledger slots in the same transaction.
type StatusStore interface {
	Current(ctx context.Context, marketID string) (StatusVersion, error)
	Append(ctx context.Context, v StatusVersion, slots []LedgerSlot) error
	History(ctx context.Context, marketID string, opts ListOpts) ([]StatusVersion, error)
	ListBefore(ctx context.Context, before time.Time) ([]StatusVersion, error)
	// DeleteArchived removes the given superseded versions. Current versions
	// are never removed.
	DeleteArchived(ctx context.Context, versions []StatusVersion) (int64, error)
}

// LedgerStore reads the off-chain balance-table projection.
type LedgerStore interface {
	Slots(ctx context.Context, marketID string) ([]LedgerSlot, error)
}

// ResolutionStore persists finalized oracle tallies.
type ResolutionStore interface {
	Insert(ctx context.Context, r Resolution) error
	Get(ctx context.Context, marketID string) (Resolution, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
