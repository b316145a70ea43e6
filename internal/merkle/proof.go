// Package merkle implements the authenticated balance table: inclusion
// proofs, single-leaf root updates, the self-paired two-leaf shape and a
// fixed-capacity tree used for off-chain projections and the price ladder.
package merkle

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
)

// Step is one level of an inclusion proof. IsRight reports whether the node
// being proven is the right child, in which case the parent is
// H(Sibling || node); otherwise it is H(node || Sibling).
type Step struct {
	Sibling domain.Digest `json:"sibling"`
	IsRight bool          `json:"is_right"`
}

// Proof is the ordered path from a leaf up to the root.
type Proof []Step

// Position returns the leaf index the proof addresses: bit i is set when
// step i is a right child.
func (p Proof) Position() int {
	pos := 0
	for i, s := range p {
		if s.IsRight {
			pos |= 1 << i
		}
	}
	return pos
}

// LeafDigest returns the leaf digest of a ledger entry.
func LeafDigest(h hasher.Hasher, e domain.LedgerEntry) domain.Digest {
	return h.Sum(codec.EncodeEntry(e))
}

// RootFrom folds a proof over a leaf digest.
func RootFrom(h hasher.Hasher, leaf domain.Digest, proof Proof) domain.Digest {
	cur := leaf
	for _, s := range proof {
		if s.IsRight {
			cur = hasher.Node(h, s.Sibling, cur)
		} else {
			cur = hasher.Node(h, cur, s.Sibling)
		}
	}
	return cur
}

// Verify reports whether leaf and proof reproduce root exactly.
func Verify(h hasher.Hasher, root, leaf domain.Digest, proof Proof) bool {
	return RootFrom(h, leaf, proof) == root
}

// VerifyEntry is Verify over an entry's leaf digest.
func VerifyEntry(h hasher.Hasher, root domain.Digest, e domain.LedgerEntry, proof Proof) bool {
	return Verify(h, root, LeafDigest(h, e), proof)
}

// InsertOrUpdate verifies proof against before (the sentinel for a first
// insertion) and returns the root with after substituted at the same
// position.
func InsertOrUpdate(h hasher.Hasher, root domain.Digest, before, after domain.LedgerEntry, proof Proof) (domain.Digest, error) {
	if len(proof) == 0 {
		return domain.Digest{}, fmt.Errorf("merkle: empty proof: %w", domain.ErrProofInvalid)
	}
	if !VerifyEntry(h, root, before, proof) {
		return domain.Digest{}, fmt.Errorf("merkle: entry %s at position %d: %w", before.Shares, proof.Position(), domain.ErrProofInvalid)
	}
	return RootFrom(h, LeafDigest(h, after), proof), nil
}

// EmptyRoot is the root of a table of depth sentinel leaves. Depth 1 gives
// H(H(sentinel) || H(sentinel)).
func EmptyRoot(h hasher.Hasher, depth int) domain.Digest {
	cur := LeafDigest(h, domain.SentinelEntry)
	for i := 0; i < depth; i++ {
		cur = hasher.Node(h, cur, cur)
	}
	return cur
}

// BootstrapProof proves the right-most sentinel slot of an empty table. At
// depth 1 inserting e with it yields H(H(sentinel) || H(e)).
func BootstrapProof(h hasher.Hasher, depth int) Proof {
	proof := make(Proof, depth)
	sub := LeafDigest(h, domain.SentinelEntry)
	for i := 0; i < depth; i++ {
		proof[i] = Step{Sibling: sub, IsRight: true}
		sub = hasher.Node(h, sub, sub)
	}
	return proof
}
