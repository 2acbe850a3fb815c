package homobls

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInitial_VerifyRoundTrip(t *testing.T) {
	sk, pk, err := GenerateKey()
	require.NoError(t, err)

	root := big.NewInt(123456789)
	sig := SignInitial(sk, "2026-08-01T00:00:00Z", root)

	ok := Verify(pk, "2026-08-01T00:00:00Z", root, sig)
	assert.True(t, ok)
}

func TestVerify_WrongRootFails(t *testing.T) {
	sk, pk, err := GenerateKey()
	require.NoError(t, err)

	root := big.NewInt(42)
	sig := SignInitial(sk, "ts-1", root)

	ok := Verify(pk, "ts-1", big.NewInt(43), sig)
	assert.False(t, ok)
}

func TestVerify_WrongKeyFails(t *testing.T) {
	sk, _, err := GenerateKey()
	require.NoError(t, err)
	_, otherPk, err := GenerateKey()
	require.NoError(t, err)

	root := big.NewInt(7)
	sig := SignInitial(sk, "ts-1", root)

	ok := Verify(otherPk, "ts-1", root, sig)
	assert.False(t, ok)
}

func TestAggregateDeltas_MatchesDirectSign(t *testing.T) {
	sk, pk, err := GenerateKey()
	require.NoError(t, err)

	rootInit := big.NewInt(10)
	sigInit := SignInitial(sk, "ts-0", rootInit)

	// Two update rounds: ts-0 -> ts-1 (root 10 -> 25, delta 15),
	// then ts-1 -> ts-2 (root 25 -> 18, delta -7).
	delta1 := big.NewInt(15)
	delta2 := big.NewInt(-7)

	sigDelta1 := SignDelta(sk, "ts-0", "ts-1", delta1)
	sigDelta2 := SignDelta(sk, "ts-1", "ts-2", delta2)

	aggregate, err := Aggregate(sigInit, sigDelta1, sigDelta2)
	require.NoError(t, err)

	finalRoot := big.NewInt(18) // 10 + 15 - 7
	ok := Verify(pk, "ts-2", finalRoot, aggregate)
	assert.True(t, ok)
}

func TestAggregate_EmptyFails(t *testing.T) {
	_, err := Aggregate()
	assert.Error(t, err)
}

func TestValidatePublicKeySubgroup_RejectsIdentity(t *testing.T) {
	var pk PublicKey
	err := ValidatePublicKeySubgroup(&pk)
	assert.Error(t, err)
}

func TestValidateSignatureSubgroup_RejectsIdentity(t *testing.T) {
	var sig Signature
	err := ValidateSignatureSubgroup(&sig)
	assert.Error(t, err)
}
