package rsapsi

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/graphverify/pkg/cuckoo"
)

func TestGenerateKeyPair_ProducesFull1024BitModulus(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.Equal(t, KeyBits, priv.N.BitLen())
}

func TestBlindSignUnblind_RoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	items := []string{"1", "2", "(1, 2)"}
	blinded, err := BlindItems(items, priv.PublicKey())
	require.NoError(t, err)

	signed := SignBlinded(blinded, priv)
	unblinded := Unblind(blinded, signed, priv.N)

	// An unblinded signature must equal digest(item)^D mod N, reproducible
	// by signing the digest directly without any blinding round trip.
	for i, item := range items {
		direct := priv.sign(itemDigest(item, priv.N))
		assert.Equal(t, 0, direct.Cmp(unblinded[i]))
	}
}

func TestCheckFreshness_AllPresentSucceeds(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	filter := cuckoo.New(16)

	items := []string{"a", "b", "c"}
	blinded, err := BlindItems(items, priv.PublicKey())
	require.NoError(t, err)
	signed := SignBlinded(blinded, priv)
	unblinded := Unblind(blinded, signed, priv.N)

	for _, v := range unblinded {
		require.NoError(t, filter.Insert(EncryptedForm(v)))
	}

	require.NoError(t, CheckFreshness(filter, unblinded))
}

func TestCheckFreshness_MissingElementFails(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	filter := cuckoo.New(16)

	blinded, err := BlindItems([]string{"only-item"}, priv.PublicKey())
	require.NoError(t, err)
	signed := SignBlinded(blinded, priv)
	unblinded := Unblind(blinded, signed, priv.N)

	// never inserted into the filter
	err = CheckFreshness(filter, unblinded)
	assert.Error(t, err)
}

func TestConsumeFreshnessSet_DeletesOnce(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	filter := cuckoo.New(16)

	blinded, err := BlindItems([]string{"spent"}, priv.PublicKey())
	require.NoError(t, err)
	signed := SignBlinded(blinded, priv)
	unblinded := Unblind(blinded, signed, priv.N)
	require.NoError(t, filter.Insert(EncryptedForm(unblinded[0])))

	ConsumeFreshnessSet(filter, unblinded)
	assert.False(t, filter.Seek(EncryptedForm(unblinded[0])))
}

func TestCheckCorrectness_DisjointSetUnderThreshold(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	filter := cuckoo.New(1000)

	inserted := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		inserted = append(inserted, fmt.Sprintf("member-%d", i))
	}
	blindedIn, err := BlindItems(inserted, priv.PublicKey())
	require.NoError(t, err)
	signedIn := SignBlinded(blindedIn, priv)
	unblindedIn := Unblind(blindedIn, signedIn, priv.N)
	for _, v := range unblindedIn {
		require.NoError(t, filter.Insert(EncryptedForm(v)))
	}

	queries := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		queries = append(queries, fmt.Sprintf("nonmember-%d", i))
	}
	blindedQ, err := BlindItems(queries, priv.PublicKey())
	require.NoError(t, err)
	signedQ := SignBlinded(blindedQ, priv)
	unblindedQ := Unblind(blindedQ, signedQ, priv.N)

	hits, err := CheckCorrectness(filter, unblindedQ)
	require.NoError(t, err)
	assert.LessOrEqual(t, hits, CorrectnessThreshold(len(unblindedQ)))
}

func TestCorrectnessThreshold_GrowsWithN(t *testing.T) {
	small := CorrectnessThreshold(10)
	large := CorrectnessThreshold(10000)
	assert.Less(t, small, large)
}

// TestCheckCorrectness_QuerySetOverlapFails models a tampered query report:
// a query set that overlaps the filter's real membership far beyond what the
// Cuckoo filter's false-positive rate allows must fail correctness.
func TestCheckCorrectness_QuerySetOverlapFails(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	filter := cuckoo.New(1000)

	members := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		members = append(members, fmt.Sprintf("member-%d", i))
	}
	blindedIn, err := BlindItems(members, priv.PublicKey())
	require.NoError(t, err)
	signedIn := SignBlinded(blindedIn, priv)
	unblindedIn := Unblind(blindedIn, signedIn, priv.N)
	for _, v := range unblindedIn {
		require.NoError(t, filter.Insert(EncryptedForm(v)))
	}

	// A correctly-behaving probe set should be disjoint from real members;
	// this one deliberately reuses them, simulating a replaced query element
	// that still resolves to something present in the filter.
	hits, err := CheckCorrectness(filter, unblindedIn)
	assert.Error(t, err)
	assert.Greater(t, hits, CorrectnessThreshold(len(unblindedIn)))
}
