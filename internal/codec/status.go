package codec

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// StatusTailSize is the fixed part of a status blob that follows the
// variable-length metadata: [outcome][resolved][shares:3][root:32].
const StatusTailSize = 2 + SharesSize + domain.DigestSize

// EncodeStatus serializes s as
// [metadata][outcome][resolved][liquidity][sharesFor][sharesAgainst][root:32].
func EncodeStatus(s domain.MarketStatus) []byte {
	out := make([]byte, 0, len(s.Metadata)+StatusTailSize)
	out = append(out, s.Metadata...)
	out = append(out, s.Outcome.Byte())
	if s.Resolved {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, EncodeShares(s.Shares)...)
	out = append(out, s.BalanceTableRoot[:]...)
	return out
}

// DecodeStatus parses a status blob. The metadata is everything before the
// fixed-size tail.
func DecodeStatus(b []byte) (domain.MarketStatus, error) {
	if len(b) < StatusTailSize {
		return domain.MarketStatus{}, fmt.Errorf("codec: status: %d bytes is shorter than tail: %w", len(b), domain.ErrMalformed)
	}
	split := len(b) - StatusTailSize
	tail := b[split:]

	var s domain.MarketStatus
	if split > 0 {
		s.Metadata = append([]byte(nil), b[:split]...)
	}

	outcomeByte, resolvedByte := tail[0], tail[1]
	switch resolvedByte {
	case 0:
		if outcomeByte != 0 {
			return domain.MarketStatus{}, fmt.Errorf("codec: status: outcome %d set on unresolved market: %w", outcomeByte, domain.ErrMalformed)
		}
		s.Outcome = domain.OutcomeUndecided
	case 1:
		s.Resolved = true
		switch outcomeByte {
		case 0:
			s.Outcome = domain.OutcomeAgainst
		case 1:
			s.Outcome = domain.OutcomeFor
		default:
			return domain.MarketStatus{}, fmt.Errorf("codec: status: outcome byte %d: %w", outcomeByte, domain.ErrMalformed)
		}
	default:
		return domain.MarketStatus{}, fmt.Errorf("codec: status: resolved byte %d: %w", resolvedByte, domain.ErrMalformed)
	}

	shares, err := DecodeShares(tail[2 : 2+SharesSize])
	if err != nil {
		return domain.MarketStatus{}, err
	}
	s.Shares = shares
	copy(s.BalanceTableRoot[:], tail[2+SharesSize:])
	return s, nil
}
