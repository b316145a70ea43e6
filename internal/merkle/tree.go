package merkle

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
)

// Tree is a fixed-capacity binary Merkle tree over precomputed leaf
// digests. Capacity is rounded up to a power of two; missing leaves are
// filled with pad.
type Tree struct {
	h      hasher.Hasher
	levels [][]domain.Digest // levels[0] are leaves, last level is the root
}

// NewTree builds a tree of at least capacity leaves. leaves may be shorter
// than capacity.
func NewTree(h hasher.Hasher, capacity int, leaves []domain.Digest, pad domain.Digest) (*Tree, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("merkle: capacity %d: %w", capacity, domain.ErrDomain)
	}
	if len(leaves) > capacity {
		return nil, fmt.Errorf("merkle: %d leaves exceed capacity %d: %w", len(leaves), capacity, domain.ErrDomain)
	}
	width := 1
	for width < capacity {
		width <<= 1
	}
	if width == 1 {
		width = 2
	}
	base := make([]domain.Digest, width)
	copy(base, leaves)
	for i := len(leaves); i < width; i++ {
		base[i] = pad
	}

	t := &Tree{h: h, levels: [][]domain.Digest{base}}
	for cur := base; len(cur) > 1; {
		next := make([]domain.Digest, len(cur)/2)
		for i := range next {
			next[i] = hasher.Node(h, cur[2*i], cur[2*i+1])
		}
		t.levels = append(t.levels, next)
		cur = next
	}
	return t, nil
}

// Root returns the current root digest.
func (t *Tree) Root() domain.Digest {
	return t.levels[len(t.levels)-1][0]
}

// Depth returns the number of proof steps.
func (t *Tree) Depth() int { return len(t.levels) - 1 }

// Len returns the padded leaf count.
func (t *Tree) Len() int { return len(t.levels[0]) }

// Leaf returns the digest at index i.
func (t *Tree) Leaf(i int) domain.Digest { return t.levels[0][i] }

// Proof returns the inclusion proof for leaf i.
func (t *Tree) Proof(i int) (Proof, error) {
	if i < 0 || i >= t.Len() {
		return nil, fmt.Errorf("merkle: leaf %d out of range [0,%d): %w", i, t.Len(), domain.ErrDomain)
	}
	proof := make(Proof, 0, t.Depth())
	idx := i
	for lvl := 0; lvl < t.Depth(); lvl++ {
		proof = append(proof, Step{Sibling: t.levels[lvl][idx^1], IsRight: idx&1 == 1})
		idx >>= 1
	}
	return proof, nil
}

// Set replaces leaf i and recomputes the path to the root.
func (t *Tree) Set(i int, leaf domain.Digest) error {
	if i < 0 || i >= t.Len() {
		return fmt.Errorf("merkle: leaf %d out of range [0,%d): %w", i, t.Len(), domain.ErrDomain)
	}
	t.levels[0][i] = leaf
	idx := i
	for lvl := 1; lvl < len(t.levels); lvl++ {
		idx >>= 1
		t.levels[lvl][idx] = hasher.Node(t.h, t.levels[lvl-1][2*idx], t.levels[lvl-1][2*idx+1])
	}
	return nil
}
