// Package verifyctx threads the cryptographic material every round needs
// through explicit function arguments instead of module-level globals: the
// RSA blind-signature key, the homomorphic BLS key, and curve
// initialization, bundled into one Context value each party constructs
// once and passes to the operations that need it.
package verifyctx

import (
	"github.com/certen/graphverify/pkg/curvecrypto"
	"github.com/certen/graphverify/pkg/homobls"
	"github.com/certen/graphverify/pkg/rsapsi"
)

// Context bundles the key material a party (Data Owner or outsourced
// storage party) needs across a round. It is built once at startup and
// passed explicitly to every operation that needs cryptographic state,
// rather than read from package-level variables.
type Context struct {
	RSA *rsapsi.PrivateKey
	BLS *homobls.PrivateKey
	Pub *homobls.PublicKey
}

// New initializes curve state and generates a fresh RSA and BLS key pair.
// Each run gets its own keys; long-lived deployments should persist and
// reload them via cachestore instead of calling New on every restart.
func New() (*Context, error) {
	curvecrypto.Initialize()

	rsaKey, err := rsapsi.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	blsSK, blsPK, err := homobls.GenerateKey()
	if err != nil {
		return nil, err
	}

	return &Context{RSA: rsaKey, BLS: blsSK, Pub: blsPK}, nil
}

// VerifierContext is the subset of key material a verifying party needs:
// the BLS public key and the RSA public key, never the private halves.
type VerifierContext struct {
	BLSPub *homobls.PublicKey
	RSAPub *rsapsi.PublicKey
}

// Verifier extracts the public-only context a verifying party should hold.
func (c *Context) Verifier() *VerifierContext {
	return &VerifierContext{BLSPub: c.Pub, RSAPub: c.RSA.PublicKey()}
}
