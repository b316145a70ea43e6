// Package hasher provides the 256-bit digest used for every commitment in
// the market: ledger leaves, table roots, ladder leaves and market ids.
package hasher

import (
	"crypto/sha256"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// Hasher computes a digest over the concatenation of its arguments.
type Hasher interface {
	Name() string
	Sum(parts ...[]byte) domain.Digest
}

const (
	NameSHA256    = "sha256"
	NameKeccak256 = "keccak256"
)

// SHA256 is the default hasher.
type SHA256 struct{}

func (SHA256) Name() string { return NameSHA256 }

func (SHA256) Sum(parts ...[]byte) domain.Digest {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var d domain.Digest
	h.Sum(d[:0])
	return d
}

// Keccak256 hashes with the legacy Keccak padding used by Ethereum.
type Keccak256 struct{}

func (Keccak256) Name() string { return NameKeccak256 }

func (Keccak256) Sum(parts ...[]byte) domain.Digest {
	return domain.Digest(ethcrypto.Keccak256Hash(parts...))
}

// Default returns the SHA-256 hasher.
func Default() Hasher { return SHA256{} }

// ByName resolves a configured hasher name. The empty string selects the default.
func ByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameSHA256, "sha-256":
		return SHA256{}, nil
	case NameKeccak256, "keccak":
		return Keccak256{}, nil
	}
	return nil, fmt.Errorf("hasher: unknown algorithm %q", name)
}

// Node returns the interior node digest H(left || right).
func Node(h Hasher, left, right domain.Digest) domain.Digest {
	return h.Sum(left[:], right[:])
}
