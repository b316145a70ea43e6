package rabin

import (
	"encoding/json"
	"fmt"
	"math/big"
)

type storedKey struct {
	Size int    `json:"size"`
	P    string `json:"p"`
	Q    string `json:"q"`
}

// MarshalPrivateKey encodes the primes as JSON hex for sealing into a key file.
func MarshalPrivateKey(k *PrivateKey) ([]byte, error) {
	if k == nil || k.P == nil || k.Q == nil {
		return nil, fmt.Errorf("%w: incomplete key", ErrKeySize)
	}
	return json.Marshal(storedKey{Size: k.Size, P: k.P.Text(16), Q: k.Q.Text(16)})
}

// ParsePrivateKey reverses MarshalPrivateKey and checks that the modulus
// still fits the recorded size.
func ParsePrivateKey(b []byte) (*PrivateKey, error) {
	var s storedKey
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("rabin: parsing key: %w", err)
	}
	p, ok := new(big.Int).SetString(s.P, 16)
	if !ok {
		return nil, fmt.Errorf("rabin: parsing key: bad p")
	}
	q, ok := new(big.Int).SetString(s.Q, 16)
	if !ok {
		return nil, fmt.Errorf("rabin: parsing key: bad q")
	}
	n := new(big.Int).Mul(p, q)
	if s.Size <= 0 || (n.BitLen()+7)/8 > s.Size {
		return nil, fmt.Errorf("%w: modulus does not fit %d bytes", ErrKeySize, s.Size)
	}
	return &PrivateKey{P: p, Q: q, Size: s.Size}, nil
}
