package merkle

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
)

// PairedRoot is the self-paired root H(H(e) || H(e)) of a two-leaf table
// holding a single live entry in both halves.
func PairedRoot(h hasher.Hasher, e domain.LedgerEntry) domain.Digest {
	leaf := LeafDigest(h, e)
	return hasher.Node(h, leaf, leaf)
}

// PairedProof is the one-step proof of a self-paired entry.
func PairedProof(h hasher.Hasher, e domain.LedgerEntry) Proof {
	return Proof{{Sibling: LeafDigest(h, e), IsRight: true}}
}

// IsPaired reports whether root is the self-paired root of e and proof is
// the one-step proof whose sibling is e itself.
func IsPaired(h hasher.Hasher, root domain.Digest, e domain.LedgerEntry, proof Proof) bool {
	if len(proof) != 1 {
		return false
	}
	leaf := LeafDigest(h, e)
	return proof[0].Sibling == leaf && hasher.Node(h, leaf, leaf) == root
}

// UpdatePaired replaces both halves of a self-paired table, returning
// H(H(after) || H(after)). It differs from InsertOrUpdate, which would leave
// the sibling half untouched.
func UpdatePaired(h hasher.Hasher, root domain.Digest, before, after domain.LedgerEntry, proof Proof) (domain.Digest, error) {
	if !IsPaired(h, root, before, proof) {
		return domain.Digest{}, fmt.Errorf("merkle: root is not self-paired on entry %s: %w", before.Shares, domain.ErrProofInvalid)
	}
	return PairedRoot(h, after), nil
}
