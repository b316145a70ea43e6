// Package codec implements the byte-exact encodings shared with the covenant
// verifier: fixed-width counters, ledger entries, the market status blob,
// market metadata, the oracle registry and oracle vote sets.
//
// Integers are big-endian so that byte-wise comparison matches numeric
// order.
package codec

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// MaxWidth is the widest fixed-point field supported.
const MaxWidth = 8

// EncodeUint writes v as an unsigned big-endian integer of exactly width
// bytes. Values that do not fit fail with domain.ErrDomain.
func EncodeUint(v uint64, width int) ([]byte, error) {
	if width < 1 || width > MaxWidth {
		return nil, fmt.Errorf("codec: width %d: %w", width, domain.ErrMalformed)
	}
	if width < MaxWidth && v>>(8*uint(width)) != 0 {
		return nil, fmt.Errorf("codec: %d does not fit in %d byte(s): %w", v, width, domain.ErrDomain)
	}
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out, nil
}

// DecodeUint reads an unsigned big-endian integer of len(b) bytes.
func DecodeUint(b []byte) (uint64, error) {
	if len(b) < 1 || len(b) > MaxWidth {
		return 0, fmt.Errorf("codec: width %d: %w", len(b), domain.ErrMalformed)
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// mustUint encodes values the caller has already range-checked.
func mustUint(v uint64, width int) []byte {
	b, err := EncodeUint(v, width)
	if err != nil {
		panic(err)
	}
	return b
}
