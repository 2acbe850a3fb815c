package rsapsi

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// BlindedItem is one element after blinding: the value sent to the signer,
// and the blinding factor's inverse needed to unblind the response.
type BlindedItem struct {
	Original string
	Blinded  *big.Int
	rInv     *big.Int
}

// itemDigest maps an arbitrary element string into Z_N via SHA-256,
// reduced modulo N so it always lands inside the signing group.
func itemDigest(item string, N *big.Int) *big.Int {
	sum := sha256.Sum256([]byte(item))
	m := new(big.Int).SetBytes(sum[:])
	return m.Mod(m, N)
}

// blindingFactor samples r coprime to N along with r^-1 mod N.
func blindingFactor(N *big.Int) (r, rInv *big.Int, err error) {
	one := big.NewInt(1)
	for {
		r, err = rand.Int(rand.Reader, N)
		if err != nil {
			return nil, nil, fmt.Errorf("rsapsi: sample blinding factor: %w", err)
		}
		if r.Cmp(one) <= 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, r, N).Cmp(one) != 0 {
			continue
		}
		rInv = new(big.Int).ModInverse(r, N)
		if rInv == nil {
			continue
		}
		return r, rInv, nil
	}
}

// BlindItems blinds every item against the signer's public key: for each
// item, m = digest(item) mod N, blinded = m * r^E mod N.
func BlindItems(items []string, pub *PublicKey) ([]*BlindedItem, error) {
	out := make([]*BlindedItem, len(items))
	for i, item := range items {
		r, rInv, err := blindingFactor(pub.N)
		if err != nil {
			return nil, err
		}

		m := itemDigest(item, pub.N)
		rExpE := new(big.Int).Exp(r, pub.E, pub.N)
		blinded := new(big.Int).Mul(m, rExpE)
		blinded.Mod(blinded, pub.N)

		out[i] = &BlindedItem{Original: item, Blinded: blinded, rInv: rInv}
	}
	return out, nil
}

// SignBlinded applies the signer's private key to each blinded value,
// without the signer ever seeing the underlying item.
func SignBlinded(blinded []*BlindedItem, priv *PrivateKey) []*big.Int {
	out := make([]*big.Int, len(blinded))
	for i, b := range blinded {
		out[i] = priv.sign(b.Blinded)
	}
	return out
}

// Unblind strips the blinding factor from each signed value, recovering
// digest(item)^D mod N — the signer's RSA signature over the item.
func Unblind(blinded []*BlindedItem, signed []*big.Int, N *big.Int) []*big.Int {
	out := make([]*big.Int, len(blinded))
	for i, b := range blinded {
		out[i] = new(big.Int).Mod(new(big.Int).Mul(signed[i], b.rInv), N)
	}
	return out
}

// EncryptedForm returns the canonical string key used to insert into or
// query a Cuckoo filter for an unblinded value.
func EncryptedForm(unblinded *big.Int) string {
	return unblinded.Text(16)
}
