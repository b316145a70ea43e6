package lmsr

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
	"github.com/alanyoungcy/predictledger/internal/merkle"
)

// PriceProof binds a claimed quantized balance to the committed ladder.
type PriceProof struct {
	Balance int64        `json:"balance"`
	Path    merkle.Proof `json:"path"`
}

// LadderEntry is one reachable ladder slot.
type LadderEntry struct {
	Index     int           `json:"index"`
	Shares    domain.Shares `json:"shares"`
	Quantized int64         `json:"quantized"`
	Digest    domain.Digest `json:"digest"`
}

// Ladder is the full precomputed price table and its Merkle tree.
type Ladder struct {
	engine  *Engine
	h       hasher.Hasher
	entries []LadderEntry
	tree    *merkle.Tree
}

// LadderLeaf is H([l][f][a][quantized:8]).
func LadderLeaf(h hasher.Hasher, s domain.Shares, quantized int64) domain.Digest {
	q, _ := codec.EncodeUint(uint64(quantized), 8)
	return h.Sum(codec.EncodeShares(s), q)
}

// BuildLadder evaluates every state within bounds. Unreachable states
// (shares without liquidity) are committed as zero digests.
func (e *Engine) BuildLadder(h hasher.Hasher) (*Ladder, error) {
	size := e.LadderSize()
	leaves := make([]domain.Digest, size)
	entries := make([]LadderEntry, 0, size)
	for i := 0; i < size; i++ {
		s, err := e.SharesAt(i)
		if err != nil {
			return nil, err
		}
		q, err := e.QuantizedCost(s)
		if err != nil {
			continue
		}
		leaves[i] = LadderLeaf(h, s, q)
		entries = append(entries, LadderEntry{Index: i, Shares: s, Quantized: q, Digest: leaves[i]})
	}
	tree, err := merkle.NewTree(h, size, leaves, domain.Digest{})
	if err != nil {
		return nil, fmt.Errorf("lmsr: build ladder: %w", err)
	}
	return &Ladder{engine: e, h: h, entries: entries, tree: tree}, nil
}

// Root is the ladder commitment.
func (l *Ladder) Root() domain.Digest { return l.tree.Root() }

// Entries returns the reachable slots in index order.
func (l *Ladder) Entries() []LadderEntry { return l.entries }

// Proof returns the price proof for state s.
func (l *Ladder) Proof(s domain.Shares) (PriceProof, error) {
	idx, err := l.engine.LadderIndex(s)
	if err != nil {
		return PriceProof{}, err
	}
	q, err := l.engine.QuantizedCost(s)
	if err != nil {
		return PriceProof{}, err
	}
	path, err := l.tree.Proof(idx)
	if err != nil {
		return PriceProof{}, err
	}
	return PriceProof{Balance: q, Path: path}, nil
}

// VerifyPrice checks that proof commits the ladder root to the quantized
// cost of s at s's ladder index, and returns that quantized cost.
func (e *Engine) VerifyPrice(h hasher.Hasher, root domain.Digest, s domain.Shares, proof PriceProof) (int64, error) {
	idx, err := e.LadderIndex(s)
	if err != nil {
		return 0, err
	}
	q, err := e.QuantizedCost(s)
	if err != nil {
		return 0, err
	}
	if proof.Balance != q {
		return 0, fmt.Errorf("lmsr: state %s claims balance %d, computed %d: %w", s, proof.Balance, q, domain.ErrProofInvalid)
	}
	if proof.Path.Position() != idx {
		return 0, fmt.Errorf("lmsr: state %s proof addresses index %d, want %d: %w", s, proof.Path.Position(), idx, domain.ErrProofInvalid)
	}
	if !merkle.Verify(h, root, LadderLeaf(h, s, q), proof.Path) {
		return 0, fmt.Errorf("lmsr: state %s not under ladder root %s: %w", s, root.Hex(), domain.ErrProofInvalid)
	}
	return q, nil
}
