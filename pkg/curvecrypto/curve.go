// Package curvecrypto provides the BN-254 curve primitives shared by the
// AA-MHT's modular arithmetic and the homomorphic BLS signature scheme:
// scalar derivation from arbitrary data, a timestamp-to-point mapping, and
// the fixed base point used to embed an AA-MHT root into a signed message.
package curvecrypto

import (
	"crypto/sha256"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	initOnce sync.Once

	g1Gen bn254.G1Affine
	g2Gen bn254.G2Affine

	// basePoint is H = [5201314]*G1, the fixed point used to embed an
	// AA-MHT root into a signed message. The literal constant is carried
	// over unchanged from the reference implementation; it has no meaning
	// beyond being a fixed, reproducible non-generator point.
	basePoint bn254.G1Affine
)

// ScalarFieldOrder returns q, the BN-254 scalar field (Fr) modulus.
func ScalarFieldOrder() *big.Int {
	return fr.Modulus()
}

// Initialize sets up the curve generators and base point. Safe to call
// repeatedly; only runs once.
func Initialize() {
	initOnce.Do(func() {
		_, _, g1GenPoint, g2GenPoint := bn254.Generators()
		g1Gen = g1GenPoint
		g2Gen = g2GenPoint

		var scalar big.Int
		scalar.SetInt64(5201314)
		basePoint.ScalarMultiplication(&g1Gen, &scalar)
	})
}

// G1Generator returns G1.
func G1Generator() bn254.G1Affine {
	Initialize()
	return g1Gen
}

// G2Generator returns G2.
func G2Generator() bn254.G2Affine {
	Initialize()
	return g2Gen
}

// BasePoint returns H = [5201314]*G1.
func BasePoint() bn254.G1Affine {
	Initialize()
	return basePoint
}

// Scalar derives a field element from arbitrary data: SHA-256 of the data's
// byte representation, interpreted big-endian, reduced mod q. data is
// typically the canonical string form of a graph element or a timestamp.
func Scalar(data string) *big.Int {
	sum := sha256.Sum256([]byte(data))
	n := new(big.Int).SetBytes(sum[:])
	return n.Mod(n, ScalarFieldOrder())
}

// ScalarElement is Scalar, returned as an fr.Element for arithmetic that
// stays inside the gnark-crypto field type.
func ScalarElement(data string) fr.Element {
	var e fr.Element
	e.SetBigInt(Scalar(data))
	return e
}

// TSPoint maps a timestamp string to a G1 point: Scalar(ts) * G1.
func TSPoint(ts string) bn254.G1Affine {
	Initialize()
	var p bn254.G1Affine
	p.ScalarMultiplication(&g1Gen, Scalar(ts))
	return p
}

// ScaleBase returns r*H for a scalar r (taken mod q first).
func ScaleBase(r *big.Int) bn254.G1Affine {
	Initialize()
	reduced := new(big.Int).Mod(r, ScalarFieldOrder())
	var p bn254.G1Affine
	p.ScalarMultiplication(&basePoint, reduced)
	return p
}

// ModQ reduces an arbitrary integer mod q, always returning a non-negative
// representative (Go's big.Int.Mod already guarantees this for a positive
// modulus, but delta roots are computed as signed sums upstream, so callers
// rely on this helper rather than raw Mod to stay explicit about intent).
func ModQ(x *big.Int) *big.Int {
	q := ScalarFieldOrder()
	out := new(big.Int).Mod(x, q)
	return out
}
