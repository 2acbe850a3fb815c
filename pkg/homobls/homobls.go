// Package homobls implements the homomorphic BLS-style signature scheme
// bound to a timestamp and an AA-MHT root: a signer can emit a signature
// over the current (timestamp, root) pair, emit a "delta" signature over a
// timestamp/root transition, and aggregate deltas by point addition so the
// aggregate signature always verifies against the latest state without
// re-signing from scratch.
//
// The Go idiom here (struct-wrapping gnark point types, Bytes/Hex
// serialization, verification by comparing two pairings, Jacobian-coordinate
// aggregation) follows the teacher's BLS package; the message shape
// (M(ts, r) = ts_point(ts) + (r mod q)*H) is this scheme's own.
package homobls

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/certen/graphverify/pkg/curvecrypto"
)

// PrivateKeySize, PublicKeySize and SignatureSize are the serialized sizes
// of this scheme's key and signature material under gnark-crypto's bn254
// encoding.
const (
	PrivateKeySize = 32
	PublicKeySize  = 64 // compressed G2 affine
	SignatureSize  = 32 // compressed G1 affine
)

// PrivateKey is a scalar sk in [1, q).
type PrivateKey struct {
	scalar big.Int
}

// PublicKey is the G2 point pk = sk*G2.
type PublicKey struct {
	point bn254.G2Affine
}

// Signature is a G1 point.
type Signature struct {
	point bn254.G1Affine
}

// GenerateKey produces a fresh (sk, pk) pair using a CSPRNG.
func GenerateKey() (*PrivateKey, *PublicKey, error) {
	curvecrypto.Initialize()
	q := curvecrypto.ScalarFieldOrder()

	// sk uniform in [1, q)
	upper := new(big.Int).Sub(q, big.NewInt(1))
	k, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return nil, nil, fmt.Errorf("homobls: generate key: %w", err)
	}
	sk := new(big.Int).Add(k, big.NewInt(1))

	priv := &PrivateKey{scalar: *sk}
	pub := priv.PublicKey()
	return priv, pub, nil
}

// PublicKey derives pk = sk*G2.
func (sk *PrivateKey) PublicKey() *PublicKey {
	var pk bn254.G2Affine
	g2 := curvecrypto.G2Generator()
	pk.ScalarMultiplication(&g2, &sk.scalar)
	return &PublicKey{point: pk}
}

func (sk *PrivateKey) Bytes() []byte {
	b := sk.scalar.Bytes()
	out := make([]byte, PrivateKeySize)
	copy(out[PrivateKeySize-len(b):], b)
	return out
}

func (sk *PrivateKey) Hex() string { return hex.EncodeToString(sk.Bytes()) }

func (pk *PublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

func (pk *PublicKey) Hex() string { return hex.EncodeToString(pk.Bytes()) }

func (s *Signature) Bytes() []byte {
	b := s.point.Bytes()
	return b[:]
}

func (s *Signature) Hex() string { return hex.EncodeToString(s.Bytes()) }

// message builds M(ts, r) = ts_point(ts) + (r mod q)*H.
func message(ts string, r *big.Int) bn254.G1Affine {
	tsPoint := curvecrypto.TSPoint(ts)
	rootPoint := curvecrypto.ScaleBase(r)

	var msg bn254.G1Jac
	msg.FromAffine(&tsPoint)
	var rootJac bn254.G1Jac
	rootJac.FromAffine(&rootPoint)
	msg.AddAssign(&rootJac)

	var out bn254.G1Affine
	out.FromJacobian(&msg)
	return out
}

// SignInitial signs the initial (ts, root) pair: sk * M(ts, root).
func SignInitial(sk *PrivateKey, ts string, root *big.Int) *Signature {
	msg := message(ts, root)
	var sig bn254.G1Affine
	sig.ScalarMultiplication(&msg, &sk.scalar)
	return &Signature{point: sig}
}

// SignDelta signs a timestamp/root transition:
//
//	sk * (ts_point(tsNew) - ts_point(tsPrev) + rDelta*H)
//
// rDelta is the signed modular contribution of the update batch to the
// AA-MHT root (positive for additions, negative for deletions — the round
// protocol is responsible for the sign, per the scheme's design).
func SignDelta(sk *PrivateKey, tsPrev, tsNew string, rDelta *big.Int) *Signature {
	prevPoint := curvecrypto.TSPoint(tsPrev)
	newPoint := curvecrypto.TSPoint(tsNew)

	var negPrev bn254.G1Affine
	negPrev.Neg(&prevPoint)

	var tsDelta bn254.G1Jac
	tsDelta.FromAffine(&newPoint)
	var negPrevJac bn254.G1Jac
	negPrevJac.FromAffine(&negPrev)
	tsDelta.AddAssign(&negPrevJac)

	rootPoint := curvecrypto.ScaleBase(rDelta)
	var rootJac bn254.G1Jac
	rootJac.FromAffine(&rootPoint)
	tsDelta.AddAssign(&rootJac)

	var msg bn254.G1Affine
	msg.FromJacobian(&tsDelta)

	var sig bn254.G1Affine
	sig.ScalarMultiplication(&msg, &sk.scalar)
	return &Signature{point: sig}
}

// Aggregate combines signatures by point addition in G1. Order does not
// matter for the group operation itself, but the round protocol must apply
// deltas in strictly increasing timestamp order for the aggregate to track
// the intended (ts, root) pair.
func Aggregate(sigs ...*Signature) (*Signature, error) {
	if len(sigs) == 0 {
		return nil, errors.New("homobls: no signatures to aggregate")
	}

	var acc bn254.G1Jac
	acc.FromAffine(&sigs[0].point)
	for _, s := range sigs[1:] {
		var jac bn254.G1Jac
		jac.FromAffine(&s.point)
		acc.AddAssign(&jac)
	}

	var out bn254.G1Affine
	out.FromJacobian(&acc)
	return &Signature{point: out}, nil
}

// Verify checks e(G2, sig) == e(pk, M(ts, root)).
func Verify(pk *PublicKey, ts string, root *big.Int, sig *Signature) bool {
	curvecrypto.Initialize()
	msg := message(ts, root)
	g2 := curvecrypto.G2Generator()

	lhs, err := bn254.Pair([]bn254.G1Affine{sig.point}, []bn254.G2Affine{g2})
	if err != nil {
		return false
	}
	rhs, err := bn254.Pair([]bn254.G1Affine{msg}, []bn254.G2Affine{pk.point})
	if err != nil {
		return false
	}
	return lhs.Equal(&rhs)
}

// ValidatePublicKeySubgroup checks a public key is a well-formed, non-zero
// point in the correct G2 subgroup.
func ValidatePublicKeySubgroup(pk *PublicKey) error {
	if !pk.point.IsOnCurve() {
		return errors.New("homobls: public key not on curve")
	}
	if pk.point.IsInfinity() {
		return errors.New("homobls: public key is identity point")
	}
	if !pk.point.IsInSubGroup() {
		return errors.New("homobls: public key not in correct subgroup")
	}
	return nil
}

// ValidateSignatureSubgroup checks a signature is a well-formed, non-zero
// point in the correct G1 subgroup.
func ValidateSignatureSubgroup(sig *Signature) error {
	if !sig.point.IsOnCurve() {
		return errors.New("homobls: signature not on curve")
	}
	if sig.point.IsInfinity() {
		return errors.New("homobls: signature is identity point")
	}
	if !sig.point.IsInSubGroup() {
		return errors.New("homobls: signature not in correct subgroup")
	}
	return nil
}
