// Package market is the single-market state machine. Every operation is a
// pure function of the current committed status and its explicit inputs: it
// either returns the fully formed next status or rejects without effect.
//
// # Created ──propose──▶ Trading ──propose──▶ Trading ──finalize──▶ Resolved
//
// Resolved is terminal for trading; only redemptions follow it.
package market

import (
	"encoding/hex"
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/merkle"
)

// OwnerVerifier checks a participant's signature over a transition digest.
type OwnerVerifier interface {
	Verify(owner domain.OwnerKey, digest domain.Digest, sig []byte) bool
}

// Config describes the fixed parameters of a market.
type Config struct {
	Hasher      hasher.Hasher
	Engine      *lmsr.Engine
	LadderRoot  domain.Digest
	LedgerDepth int
	Owners      OwnerVerifier
}

// StateMachine validates transitions for markets sharing one Config.
type StateMachine struct {
	h          hasher.Hasher
	engine     *lmsr.Engine
	ladderRoot domain.Digest
	depth      int
	owners     OwnerVerifier
	emptyRoot  domain.Digest
}

// New creates a StateMachine.
func New(cfg Config) (*StateMachine, error) {
	if cfg.Hasher == nil || cfg.Engine == nil || cfg.Owners == nil {
		return nil, fmt.Errorf("market: hasher, engine and owner verifier are required")
	}
	if cfg.LedgerDepth < 1 {
		return nil, fmt.Errorf("market: ledger depth %d: %w", cfg.LedgerDepth, domain.ErrDomain)
	}
	return &StateMachine{
		h:          cfg.Hasher,
		engine:     cfg.Engine,
		ladderRoot: cfg.LadderRoot,
		depth:      cfg.LedgerDepth,
		owners:     cfg.Owners,
		emptyRoot:  merkle.EmptyRoot(cfg.Hasher, cfg.LedgerDepth),
	}, nil
}

// Hasher returns the commitment hasher.
func (m *StateMachine) Hasher() hasher.Hasher { return m.h }

// Engine returns the pricing engine.
func (m *StateMachine) Engine() *lmsr.Engine { return m.engine }

// LedgerDepth returns the balance-table depth.
func (m *StateMachine) LedgerDepth() int { return m.depth }

// Genesis returns the creation status: no shares and an empty table.
func (m *StateMachine) Genesis(metadata []byte) domain.MarketStatus {
	return domain.MarketStatus{
		Metadata:         append([]byte(nil), metadata...),
		BalanceTableRoot: m.emptyRoot,
	}
}

// Seed is a creation status funded by the creator's own entry. At depth 1
// the entry fills both halves of the table, giving the self-paired root
// H(H(e) || H(e)); deeper tables hold it in slot 0. The returned balance is
// what the creator must fund.
func (m *StateMachine) Seed(metadata []byte, e domain.LedgerEntry) (domain.MarketStatus, int64, error) {
	if e.IsSentinel() || e.Owner.IsZero() {
		return domain.MarketStatus{}, 0, fmt.Errorf("market: seed entry has no owner: %w", domain.ErrState)
	}
	if _, err := m.engine.LadderIndex(e.Shares); err != nil {
		return domain.MarketStatus{}, 0, fmt.Errorf("market: seed: %w", err)
	}
	balance, err := m.engine.Balance(e.Shares)
	if err != nil {
		return domain.MarketStatus{}, 0, fmt.Errorf("market: seed: %w", err)
	}
	entries := []domain.LedgerEntry{e}
	if m.depth == 1 {
		entries = append(entries, e)
	}
	table, err := merkle.NewTable(m.h, m.depth, entries)
	if err != nil {
		return domain.MarketStatus{}, 0, fmt.Errorf("market: seed: %w", err)
	}
	s := m.Genesis(metadata)
	s.Shares = e.Shares
	s.BalanceTableRoot = table.Root()
	return s, balance, nil
}

// Phase derives the lifecycle phase from a committed status.
func (m *StateMachine) Phase(s domain.MarketStatus) domain.Phase {
	switch {
	case s.Resolved:
		return domain.PhaseResolved
	case s.BalanceTableRoot == m.emptyRoot:
		return domain.PhaseCreated
	default:
		return domain.PhaseTrading
	}
}

// Metadata builds the market metadata that every status carries.
func Metadata(h hasher.Hasher, creator domain.OwnerKey, registryWire []byte, details string) []byte {
	return codec.EncodeMetadata(domain.MarketInfo{
		Creator:        creator,
		RegistryDigest: h.Sum(registryWire),
		Details:        details,
	})
}

// ID is the market identity: hex(H(metadata)).
func ID(h hasher.Hasher, metadata []byte) string {
	d := h.Sum(metadata)
	return hex.EncodeToString(d[:])
}

// Transition is an accepted state change, ready for the covenant verifier.
type Transition struct {
	Kind     domain.TransitionKind `json:"kind"`
	Prev     domain.MarketStatus   `json:"prev"`
	Next     domain.MarketStatus   `json:"next"`
	PrevBlob []byte                `json:"prev_blob"`
	NextBlob []byte                `json:"next_blob"`
	// Payment is the signed change in value the market must hold. Trades
	// pay in (or refund when negative); redemptions pay out.
	Payment     int64              `json:"payment"`
	PrevBalance int64              `json:"prev_balance"`
	NextBalance int64              `json:"next_balance"`
	Entry       domain.LedgerEntry `json:"entry"`
	Slot        int                `json:"slot"`
	Paired      bool               `json:"paired"`
}

func (m *StateMachine) transition(kind domain.TransitionKind, prev, next domain.MarketStatus) Transition {
	return Transition{
		Kind:     kind,
		Prev:     prev,
		Next:     next,
		PrevBlob: codec.EncodeStatus(prev),
		NextBlob: codec.EncodeStatus(next),
	}
}

// updateRoot applies one entry change to the committed root. A self-paired
// table holding before in both halves has both halves replaced.
func (m *StateMachine) updateRoot(root domain.Digest, before, after domain.LedgerEntry, proof merkle.Proof) (domain.Digest, bool, error) {
	if !before.IsSentinel() && merkle.IsPaired(m.h, root, before, proof) {
		next, err := merkle.UpdatePaired(m.h, root, before, after, proof)
		return next, true, err
	}
	if len(proof) != m.depth {
		return domain.Digest{}, false, fmt.Errorf("market: proof has %d steps, table depth is %d: %w", len(proof), m.depth, domain.ErrProofInvalid)
	}
	next, err := merkle.InsertOrUpdate(m.h, root, before, after, proof)
	return next, false, err
}
