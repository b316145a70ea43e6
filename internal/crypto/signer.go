package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
)

// Domain tags prefixed to every signed preimage so a spend signature can
// never be replayed as a redeem signature or vice versa.
var (
	spendTag  = []byte("predictledger/spend")
	redeemTag = []byte("predictledger/redeem")
)

// SignatureSize is the r || s || v layout produced by Sign.
const SignatureSize = 65

// SpendDigest is the message an owner signs to update their entry:
// H("predictledger/spend" || prevStatus || nextStatus).
func SpendDigest(h hasher.Hasher, prevBlob, nextBlob []byte) domain.Digest {
	return h.Sum(spendTag, prevBlob, nextBlob)
}

// RedeemDigest is the message an owner signs to redeem their entry:
// H("predictledger/redeem" || prevStatus || entry).
func RedeemDigest(h hasher.Hasher, prevBlob, entry []byte) domain.Digest {
	return h.Sum(redeemTag, prevBlob, entry)
}

// Signer signs spend and redeem digests with a participant's secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	owner      domain.OwnerKey
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return newSigner(pk), nil
}

// GenerateSigner creates a Signer for a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generating key: %w", err)
	}
	return newSigner(pk), nil
}

func newSigner(pk *ecdsa.PrivateKey) *Signer {
	var owner domain.OwnerKey
	copy(owner[:], ethcrypto.CompressPubkey(&pk.PublicKey))
	return &Signer{privateKey: pk, owner: owner}
}

// Owner returns the compressed public key that identifies ledger entries.
func (s *Signer) Owner() domain.OwnerKey {
	return s.owner
}

// PrivateKeyHex returns the hex private key, for writing key files.
func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(ethcrypto.FromECDSA(s.privateKey))
}

// Sign signs a 32-byte digest and returns r || s || v with v in {0,1}.
func (s *Signer) Sign(digest domain.Digest) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest[:], s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	return sig, nil
}

// SignSpend signs SpendDigest(prevBlob, nextBlob).
func (s *Signer) SignSpend(h hasher.Hasher, prevBlob, nextBlob []byte) ([]byte, error) {
	return s.Sign(SpendDigest(h, prevBlob, nextBlob))
}

// SignRedeem signs RedeemDigest(prevBlob, entry).
func (s *Signer) SignRedeem(h hasher.Hasher, prevBlob, entry []byte) ([]byte, error) {
	return s.Sign(RedeemDigest(h, prevBlob, entry))
}

// OwnerVerifier checks owner signatures against compressed secp256k1 keys.
type OwnerVerifier struct{}

// Verify reports whether sig (64 or 65 bytes) is owner's signature over digest.
func (OwnerVerifier) Verify(owner domain.OwnerKey, digest domain.Digest, sig []byte) bool {
	if len(sig) != SignatureSize && len(sig) != SignatureSize-1 {
		return false
	}
	pub, err := ethcrypto.DecompressPubkey(owner[:])
	if err != nil {
		return false
	}
	return ethcrypto.VerifySignature(ethcrypto.FromECDSAPub(pub), digest[:], sig[:SignatureSize-1])
}
