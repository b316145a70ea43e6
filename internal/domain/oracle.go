package domain

// OracleKey is one registered oracle: a blind-signature public key and the
// vote weight it carries.
type OracleKey struct {
	PublicKey []byte `json:"public_key"`
	Weight    uint8  `json:"weight"`
}

// OracleVote is a single populated vote slot. Slot is the position of the
// signing key in the registry.
type OracleVote struct {
	Slot             uint8  `json:"slot"`
	Signature        []byte `json:"signature"`
	PaddingByteCount uint8  `json:"padding_byte_count"`
}
