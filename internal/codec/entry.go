package codec

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// EntrySize is the encoded width of a ledger entry:
// [owner:33][liquidity][sharesFor][sharesAgainst].
const EntrySize = domain.OwnerKeySize + 3*domain.FieldWidth

// SharesSize is the encoded width of a Shares triple.
const SharesSize = 3 * domain.FieldWidth

// EncodeShares writes [liquidity][sharesFor][sharesAgainst].
func EncodeShares(s domain.Shares) []byte {
	out := make([]byte, 0, SharesSize)
	out = append(out, mustUint(uint64(s.Liquidity), domain.FieldWidth)...)
	out = append(out, mustUint(uint64(s.SharesFor), domain.FieldWidth)...)
	out = append(out, mustUint(uint64(s.SharesAgainst), domain.FieldWidth)...)
	return out
}

// DecodeShares is the inverse of EncodeShares.
func DecodeShares(b []byte) (domain.Shares, error) {
	if len(b) != SharesSize {
		return domain.Shares{}, fmt.Errorf("codec: shares: want %d bytes, got %d: %w", SharesSize, len(b), domain.ErrMalformed)
	}
	var vals [3]uint8
	for i := range vals {
		v, err := DecodeUint(b[i*domain.FieldWidth : (i+1)*domain.FieldWidth])
		if err != nil {
			return domain.Shares{}, err
		}
		vals[i] = uint8(v)
	}
	return domain.Shares{Liquidity: vals[0], SharesFor: vals[1], SharesAgainst: vals[2]}, nil
}

// EncodeEntry returns the leaf preimage of e.
func EncodeEntry(e domain.LedgerEntry) []byte {
	out := make([]byte, 0, EntrySize)
	out = append(out, e.Owner[:]...)
	out = append(out, EncodeShares(e.Shares)...)
	return out
}

// DecodeEntry is the inverse of EncodeEntry.
func DecodeEntry(b []byte) (domain.LedgerEntry, error) {
	if len(b) != EntrySize {
		return domain.LedgerEntry{}, fmt.Errorf("codec: entry: want %d bytes, got %d: %w", EntrySize, len(b), domain.ErrMalformed)
	}
	var e domain.LedgerEntry
	copy(e.Owner[:], b[:domain.OwnerKeySize])
	s, err := DecodeShares(b[domain.OwnerKeySize:])
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Shares = s
	return e, nil
}
