// Package rabin implements the Rabin signature scheme the oracles vote
// with. A signature s over message m with p zero padding bytes is valid for
// modulus n when s² ≡ H(m ‖ 0x00×p) (mod n), where H expands SHA-256 to
// four chained blocks.
package rabin

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// DefaultKeySize is the modulus width in bytes used by the deployed covenant.
const DefaultKeySize = 126

// hashBlocks is the number of chained SHA-256 blocks in the expanded hash.
const hashBlocks = 4

// maxPadding bounds the search for a padding that makes the hash a square.
const maxPadding = 255

var (
	ErrNoSquareRoot = errors.New("rabin: no padding yields a quadratic residue")
	ErrKeySize      = errors.New("rabin: invalid key size")

	three = big.NewInt(3)
	four  = big.NewInt(4)
)

// PrivateKey holds the two Blum primes of a Rabin modulus.
type PrivateKey struct {
	P, Q *big.Int
	// Size is the encoded width of the modulus and of signatures.
	Size int
}

// PublicKey returns the big-endian modulus, Size bytes wide.
func (k *PrivateKey) PublicKey() []byte {
	n := new(big.Int).Mul(k.P, k.Q)
	return n.FillBytes(make([]byte, k.Size))
}

// GenerateKey creates a key whose modulus fits in size bytes. Both primes
// are congruent to 3 mod 4 so square roots are a single exponentiation.
func GenerateKey(random io.Reader, size int) (*PrivateKey, error) {
	if size < 16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeySize, size)
	}
	if random == nil {
		random = rand.Reader
	}
	bits := size * 8 / 2
	p, err := blumPrime(random, bits)
	if err != nil {
		return nil, err
	}
	var q *big.Int
	for {
		q, err = blumPrime(random, bits)
		if err != nil {
			return nil, err
		}
		if q.Cmp(p) != 0 {
			break
		}
	}
	return &PrivateKey{P: p, Q: q, Size: size}, nil
}

func blumPrime(random io.Reader, bits int) (*big.Int, error) {
	for {
		p, err := rand.Prime(random, bits)
		if err != nil {
			return nil, fmt.Errorf("rabin: generate prime: %w", err)
		}
		if new(big.Int).Mod(p, four).Cmp(three) == 0 {
			return p, nil
		}
	}
}

// ExpandedHash is SHA-256 chained over four blocks of m ‖ 0x00×padding,
// read as a big-endian integer.
func ExpandedHash(msg []byte, padding uint8) *big.Int {
	padded := make([]byte, len(msg)+int(padding))
	copy(padded, msg)
	out := make([]byte, 0, hashBlocks*sha256.Size)
	block := sha256.Sum256(padded)
	out = append(out, block[:]...)
	for i := 1; i < hashBlocks; i++ {
		block = sha256.Sum256(block[:])
		out = append(out, block[:]...)
	}
	return new(big.Int).SetBytes(out)
}

// Sign returns a signature over msg and the padding count that made the
// hash a quadratic residue.
func Sign(k *PrivateKey, msg []byte) ([]byte, uint8, error) {
	n := new(big.Int).Mul(k.P, k.Q)
	for pad := 0; pad <= maxPadding; pad++ {
		x := new(big.Int).Mod(ExpandedHash(msg, uint8(pad)), n)
		sp, ok := sqrtMod(x, k.P)
		if !ok {
			continue
		}
		sq, ok := sqrtMod(x, k.Q)
		if !ok {
			continue
		}
		s := crt(sp, sq, k.P, k.Q, n)
		return s.FillBytes(make([]byte, k.Size)), uint8(pad), nil
	}
	return nil, 0, ErrNoSquareRoot
}

// sqrtMod returns r with r² ≡ x (mod p) for a Blum prime p.
func sqrtMod(x, p *big.Int) (*big.Int, bool) {
	e := new(big.Int).Add(p, big.NewInt(1))
	e.Rsh(e, 2)
	r := new(big.Int).Exp(x, e, p)
	check := new(big.Int).Mul(r, r)
	check.Mod(check, p)
	return r, check.Cmp(new(big.Int).Mod(x, p)) == 0
}

func crt(rp, rq, p, q, n *big.Int) *big.Int {
	// s = rp + p·((rq − rp)·p⁻¹ mod q)
	pInv := new(big.Int).ModInverse(p, q)
	t := new(big.Int).Sub(rq, rp)
	t.Mul(t, pInv)
	t.Mod(t, q)
	s := new(big.Int).Mul(t, p)
	s.Add(s, rp)
	return s.Mod(s, n)
}

// Verify reports whether sig is a valid signature over msg under the
// big-endian modulus publicKey.
func Verify(publicKey, msg, sig []byte, padding uint8) bool {
	n := new(big.Int).SetBytes(publicKey)
	if n.Sign() == 0 || len(sig) == 0 {
		return false
	}
	s := new(big.Int).SetBytes(sig)
	if s.Cmp(n) >= 0 {
		return false
	}
	lhs := new(big.Int).Mul(s, s)
	lhs.Mod(lhs, n)
	rhs := new(big.Int).Mod(ExpandedHash(msg, padding), n)
	return lhs.Cmp(rhs) == 0
}

// Verifier adapts Verify to the oracle signature port.
type Verifier struct{}

// Verify implements oracle.SignatureVerifier.
func (Verifier) Verify(publicKey, msg, sig []byte, padding uint8) bool {
	return Verify(publicKey, msg, sig, padding)
}
