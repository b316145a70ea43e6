// Package domain defines the data model shared by the market core and the
// infrastructure around it: digests, ledger entries, the committed market
// status, oracle keys and votes, and the storage ports.
package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	// DigestSize is the width of every commitment digest.
	DigestSize = 32

	// OwnerKeySize is the width of a compressed secp256k1 public key.
	OwnerKeySize = 33

	// FieldWidth is the encoded width of every ledger counter.
	FieldWidth = 1

	// MaxField is the largest value a ledger counter can hold.
	MaxField = 1<<(8*FieldWidth) - 1
)

// Digest is a 256-bit hash value.
type Digest [DigestSize]byte

// Hex returns the lowercase hex form of d.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether every byte of d is zero.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText implements encoding.TextMarshaler so digests render as hex in JSON.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest decodes a 64-character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("digest: %w: %v", ErrMalformed, err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("digest: %w: want %d bytes, got %d", ErrMalformed, DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// OwnerKey is a participant's compressed public key.
type OwnerKey [OwnerKeySize]byte

// IsZero reports whether k is the all-zero sentinel key.
func (k OwnerKey) IsZero() bool {
	return k == OwnerKey{}
}

// Hex returns the lowercase hex form of k.
func (k OwnerKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k OwnerKey) MarshalText() ([]byte, error) {
	return []byte(k.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OwnerKey) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("owner key: %w: %v", ErrMalformed, err)
	}
	if len(b) != OwnerKeySize {
		return fmt.Errorf("owner key: %w: want %d bytes, got %d", ErrMalformed, OwnerKeySize, len(b))
	}
	copy(k[:], b)
	return nil
}

// Shares is the (liquidity, sharesFor, sharesAgainst) triple that both a
// ledger entry and the aggregate market state carry.
type Shares struct {
	Liquidity     uint8 `json:"liquidity"`
	SharesFor     uint8 `json:"shares_for"`
	SharesAgainst uint8 `json:"shares_against"`
}

func (s Shares) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.Liquidity, s.SharesFor, s.SharesAgainst)
}

// LedgerEntry is one participant's position in the balance table.
type LedgerEntry struct {
	Owner OwnerKey `json:"owner"`
	Shares
}

// SentinelEntry is the all-zero entry that fills unused table slots.
var SentinelEntry = LedgerEntry{}

// IsSentinel reports whether e is the empty-slot sentinel.
func (e LedgerEntry) IsSentinel() bool {
	return e == SentinelEntry
}

// Outcome is the binary market result.
type Outcome uint8

const (
	OutcomeUndecided Outcome = iota
	OutcomeFor
	OutcomeAgainst
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFor:
		return "for"
	case OutcomeAgainst:
		return "against"
	default:
		return "undecided"
	}
}

// Byte returns the on-chain outcome byte. Undecided shares the zero byte
// with Against; the resolved flag disambiguates.
func (o Outcome) Byte() byte {
	if o == OutcomeFor {
		return 1
	}
	return 0
}

// ParseOutcome maps a user-facing name to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "for", "1":
		return OutcomeFor, nil
	case "against", "0":
		return OutcomeAgainst, nil
	case "undecided", "":
		return OutcomeUndecided, nil
	}
	return OutcomeUndecided, fmt.Errorf("outcome %q: %w", s, ErrMalformed)
}

// Phase is the lifecycle position of a market.
type Phase string

const (
	PhaseCreated  Phase = "created"
	PhaseTrading  Phase = "trading"
	PhaseResolved Phase = "resolved"
)

// MarketStatus is the committed state of a market. Exactly one status is
// current at a time; every accepted transition replaces it wholesale.
type MarketStatus struct {
	Metadata         []byte  `json:"metadata"`
	Outcome          Outcome `json:"outcome"`
	Resolved         bool    `json:"resolved"`
	Shares                   // aggregate across all entries
	BalanceTableRoot Digest  `json:"balance_table_root"`
}

// Equal reports whether two statuses commit to the same state.
func (s MarketStatus) Equal(o MarketStatus) bool {
	return bytes.Equal(s.Metadata, o.Metadata) &&
		s.Outcome == o.Outcome &&
		s.Resolved == o.Resolved &&
		s.Shares == o.Shares &&
		s.BalanceTableRoot == o.BalanceTableRoot
}

// MarketInfo is the decoded form of MarketStatus.Metadata.
type MarketInfo struct {
	Creator        OwnerKey `json:"creator"`
	RegistryDigest Digest   `json:"registry_digest"`
	Details        string   `json:"details"`
}
