// Package rsapsi implements the RSA-blind-signature private set
// intersection protocol used to check freshness (does the verifier's
// element set still appear in the outsourced party's encrypted index?) and
// correctness (does a query response avoid leaking elements it should not
// contain, within the Cuckoo filter's expected false-positive rate?)
// without either party learning the other's raw elements.
package rsapsi

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// KeyBits is the RSA modulus size this scheme requires: two independently
// generated 512-bit primes multiplied together for a genuine 1024-bit N,
// not the narrower modulus a naive `bits/2`-per-prime implementation
// produces when it reuses the same bit length for the product.
const KeyBits = 1024

var publicExponent = big.NewInt(65537)

// PrivateKey holds the outsourced party's blind-signing key.
type PrivateKey struct {
	N *big.Int
	E *big.Int
	D *big.Int
}

// PublicKey is the portion every party needs to blind and unblind.
func (k *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{N: k.N, E: k.E}
}

// PublicKey holds the modulus and public exponent alone.
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// GenerateKeyPair produces a fresh RSA key with an N of exactly KeyBits
// bits, built from two independently sampled KeyBits/2-bit primes.
func GenerateKeyPair() (*PrivateKey, error) {
	primeBits := KeyBits / 2

	for attempt := 0; attempt < 32; attempt++ {
		p, err := rand.Prime(rand.Reader, primeBits)
		if err != nil {
			return nil, fmt.Errorf("rsapsi: generate p: %w", err)
		}
		q, err := rand.Prime(rand.Reader, primeBits)
		if err != nil {
			return nil, fmt.Errorf("rsapsi: generate q: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}

		n := new(big.Int).Mul(p, q)
		if n.BitLen() != KeyBits {
			continue
		}

		pMinus1 := new(big.Int).Sub(p, big.NewInt(1))
		qMinus1 := new(big.Int).Sub(q, big.NewInt(1))
		phi := new(big.Int).Mul(pMinus1, qMinus1)

		d := new(big.Int).ModInverse(publicExponent, phi)
		if d == nil {
			continue
		}

		return &PrivateKey{N: n, E: new(big.Int).Set(publicExponent), D: d}, nil
	}

	return nil, fmt.Errorf("rsapsi: failed to generate a %d-bit key after repeated attempts", KeyBits)
}

// sign applies the raw RSA transform m^D mod N.
func (k *PrivateKey) sign(m *big.Int) *big.Int {
	return new(big.Int).Exp(m, k.D, k.N)
}

// Encrypt deterministically transforms item into the same Z_N value the
// blind-signature protocol would eventually recover after a full
// blind/sign/unblind round trip: digest(item)^D mod N. The outsourced
// party uses this directly (it already holds D) to build its Cuckoo filter
// index; a third-party verifier instead goes through the blind protocol so
// it never reveals which items it is probing.
func (k *PrivateKey) Encrypt(item string) *big.Int {
	return k.sign(itemDigest(item, k.N))
}
