// Package oracle turns a weighted quorum of oracle signatures into a
// binding market outcome. Signature checking is delegated to a
// SignatureVerifier so the number theory stays out of the tally.
package oracle

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
)

// MaxKeys is the number of slots a one-byte slot index can address.
const MaxKeys = 256

// SignatureVerifier checks one oracle signature.
type SignatureVerifier interface {
	Verify(publicKey, msg, sig []byte, padding uint8) bool
}

// Registry is the immutable, ordered oracle key set of a market.
type Registry struct {
	keys   []domain.OracleKey
	keyLen int
	total  int
}

// NewRegistry validates keys. Every key must be keyLen bytes and the total
// weight must be positive so that a strict majority is defined.
func NewRegistry(keys []domain.OracleKey, keyLen int) (*Registry, error) {
	if len(keys) == 0 || len(keys) > MaxKeys {
		return nil, fmt.Errorf("oracle: registry of %d keys: %w", len(keys), domain.ErrDomain)
	}
	total := 0
	own := make([]domain.OracleKey, len(keys))
	for i, k := range keys {
		if len(k.PublicKey) != keyLen {
			return nil, fmt.Errorf("oracle: key %d is %d bytes, want %d: %w", i, len(k.PublicKey), keyLen, domain.ErrMalformed)
		}
		own[i] = domain.OracleKey{PublicKey: append([]byte(nil), k.PublicKey...), Weight: k.Weight}
		total += int(k.Weight)
	}
	if total == 0 {
		return nil, fmt.Errorf("oracle: registry has no weight: %w", domain.ErrDomain)
	}
	return &Registry{keys: own, keyLen: keyLen, total: total}, nil
}

// DecodeRegistry parses the wire form [publicKey:keyLen][weight:1]...
func DecodeRegistry(b []byte, keyLen int) (*Registry, error) {
	keys, err := codec.DecodeRegistry(b, keyLen)
	if err != nil {
		return nil, err
	}
	return NewRegistry(keys, keyLen)
}

// Keys returns a copy of the registered keys in slot order.
func (r *Registry) Keys() []domain.OracleKey {
	return append([]domain.OracleKey(nil), r.keys...)
}

// Len is the number of slots.
func (r *Registry) Len() int { return len(r.keys) }

// KeyLen is the width of each public key and signature.
func (r *Registry) KeyLen() int { return r.keyLen }

// TotalWeight is the sum of all weights.
func (r *Registry) TotalWeight() int { return r.total }

// Quorum reports whether weight is a strict majority of the total.
func (r *Registry) Quorum(weight int) bool { return 2*weight > r.total }

// Encode returns the wire form.
func (r *Registry) Encode() []byte {
	b, _ := codec.EncodeRegistry(r.keys, r.keyLen)
	return b
}

// Digest commits the registry into market metadata.
func (r *Registry) Digest(h hasher.Hasher) domain.Digest {
	return h.Sum(r.Encode())
}
