package merkle

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
)

// Table is the full off-chain view of a balance table of 2^depth slots.
// Only the root is committed; the table exists to hand out proofs.
type Table struct {
	h       hasher.Hasher
	entries []domain.LedgerEntry
	tree    *Tree
}

// NewTable builds a table of depth levels. Slots beyond len(entries) hold
// the sentinel.
func NewTable(h hasher.Hasher, depth int, entries []domain.LedgerEntry) (*Table, error) {
	if depth < 1 || depth > 16 {
		return nil, fmt.Errorf("merkle: table depth %d: %w", depth, domain.ErrDomain)
	}
	size := 1 << depth
	if len(entries) > size {
		return nil, fmt.Errorf("merkle: %d entries exceed %d slots: %w", len(entries), size, domain.ErrDomain)
	}
	all := make([]domain.LedgerEntry, size)
	copy(all, entries)
	leaves := make([]domain.Digest, size)
	for i, e := range all {
		leaves[i] = LeafDigest(h, e)
	}
	tree, err := NewTree(h, size, leaves, LeafDigest(h, domain.SentinelEntry))
	if err != nil {
		return nil, err
	}
	return &Table{h: h, entries: all, tree: tree}, nil
}

// Root returns the table root.
func (t *Table) Root() domain.Digest { return t.tree.Root() }

// Size returns the number of slots.
func (t *Table) Size() int { return len(t.entries) }

// Entry returns the entry at slot i.
func (t *Table) Entry(i int) (domain.LedgerEntry, error) {
	if i < 0 || i >= len(t.entries) {
		return domain.LedgerEntry{}, fmt.Errorf("merkle: slot %d: %w", i, domain.ErrNotFound)
	}
	return t.entries[i], nil
}

// Entries returns a copy of every slot.
func (t *Table) Entries() []domain.LedgerEntry {
	return append([]domain.LedgerEntry(nil), t.entries...)
}

// Proof returns the inclusion proof for slot i.
func (t *Table) Proof(i int) (Proof, error) { return t.tree.Proof(i) }

// Set writes e into slot i.
func (t *Table) Set(i int, e domain.LedgerEntry) error {
	if err := t.tree.Set(i, LeafDigest(t.h, e)); err != nil {
		return err
	}
	t.entries[i] = e
	return nil
}

// Find returns the slot holding e, or -1.
func (t *Table) Find(e domain.LedgerEntry) int {
	for i, cur := range t.entries {
		if cur == e {
			return i
		}
	}
	return -1
}

// FindOwner returns the first slot owned by owner, or -1.
func (t *Table) FindOwner(owner domain.OwnerKey) int {
	for i, cur := range t.entries {
		if !cur.IsSentinel() && cur.Owner == owner {
			return i
		}
	}
	return -1
}

// FreeSlot returns the right-most sentinel slot, or -1 when the table is full.
func (t *Table) FreeSlot() int {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].IsSentinel() {
			return i
		}
	}
	return -1
}

// IsPaired reports whether the table is the two-slot self-paired shape.
func (t *Table) IsPaired() bool {
	return len(t.entries) == 2 && !t.entries[0].IsSentinel() && t.entries[0] == t.entries[1]
}
