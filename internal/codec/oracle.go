package codec

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// EncodeRegistry serializes oracle keys as [publicKey:keyLen][weight:1]
// repeated in registry order. Every key must be exactly keyLen bytes.
func EncodeRegistry(keys []domain.OracleKey, keyLen int) ([]byte, error) {
	out := make([]byte, 0, len(keys)*(keyLen+1))
	for i, k := range keys {
		if len(k.PublicKey) != keyLen {
			return nil, fmt.Errorf("codec: registry key %d: want %d bytes, got %d: %w", i, keyLen, len(k.PublicKey), domain.ErrMalformed)
		}
		out = append(out, k.PublicKey...)
		out = append(out, k.Weight)
	}
	return out, nil
}

// DecodeRegistry is the inverse of EncodeRegistry.
func DecodeRegistry(b []byte, keyLen int) ([]domain.OracleKey, error) {
	stride := keyLen + 1
	if keyLen < 1 || len(b)%stride != 0 {
		return nil, fmt.Errorf("codec: registry: %d bytes is not a multiple of %d: %w", len(b), stride, domain.ErrMalformed)
	}
	keys := make([]domain.OracleKey, 0, len(b)/stride)
	for off := 0; off < len(b); off += stride {
		keys = append(keys, domain.OracleKey{
			PublicKey: append([]byte(nil), b[off:off+keyLen]...),
			Weight:    b[off+keyLen],
		})
	}
	return keys, nil
}

// EncodeVotes serializes populated vote slots as
// [slotIndex:1][signature:sigLen][paddingByteCount:1] repeated.
// Unpopulated slots are simply absent.
func EncodeVotes(votes []domain.OracleVote, sigLen int) ([]byte, error) {
	out := make([]byte, 0, len(votes)*(sigLen+2))
	for _, v := range votes {
		if len(v.Signature) != sigLen {
			return nil, fmt.Errorf("codec: vote slot %d: signature want %d bytes, got %d: %w", v.Slot, sigLen, len(v.Signature), domain.ErrMalformed)
		}
		out = append(out, v.Slot)
		out = append(out, v.Signature...)
		out = append(out, v.PaddingByteCount)
	}
	return out, nil
}

// DecodeVotes parses a vote set against a registry of slotCount keys. Slot
// indices must be in range and may appear at most once.
func DecodeVotes(b []byte, sigLen, slotCount int) ([]domain.OracleVote, error) {
	stride := sigLen + 2
	if sigLen < 1 || len(b)%stride != 0 {
		return nil, fmt.Errorf("codec: votes: %d bytes is not a multiple of %d: %w", len(b), stride, domain.ErrMalformed)
	}
	seen := make(map[uint8]bool, len(b)/stride)
	votes := make([]domain.OracleVote, 0, len(b)/stride)
	for off := 0; off < len(b); off += stride {
		slot := b[off]
		if int(slot) >= slotCount {
			return nil, fmt.Errorf("codec: votes: slot %d outside registry of %d: %w", slot, slotCount, domain.ErrMalformed)
		}
		if seen[slot] {
			return nil, fmt.Errorf("codec: votes: slot %d repeated: %w", slot, domain.ErrMalformed)
		}
		seen[slot] = true
		votes = append(votes, domain.OracleVote{
			Slot:             slot,
			Signature:        append([]byte(nil), b[off+1:off+1+sigLen]...),
			PaddingByteCount: b[off+1+sigLen],
		})
	}
	return votes, nil
}
