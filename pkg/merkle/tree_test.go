package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/graphverify/pkg/graphmodel"
)

func triangleElements() []graphmodel.Element {
	return []graphmodel.Element{
		graphmodel.NewNode(1),
		graphmodel.NewNode(2),
		graphmodel.NewNode(3),
		graphmodel.NewEdge(1, 2),
		graphmodel.NewEdge(2, 3),
		graphmodel.NewEdge(1, 3),
	}
}

func TestBuild_EmptyFails(t *testing.T) {
	_, err := Build(nil)
	require.ErrorIs(t, err, ErrEmptyTree)
}

func TestProofRecompute_RoundTrip(t *testing.T) {
	elems := graphmodel.SortElements(triangleElements())
	tree, err := Build(elems)
	require.NoError(t, err)

	for _, e := range elems {
		proof, err := tree.Proof(e)
		require.NoError(t, err)

		root, err := Recompute(proof)
		require.NoError(t, err)
		assert.Equal(t, tree.RootHex(), hexOf(root))

		ok, err := VerifyProof(proof, tree.Root())
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestProof_UnknownElementFails(t *testing.T) {
	elems := graphmodel.SortElements(triangleElements())
	tree, err := Build(elems)
	require.NoError(t, err)

	_, err = tree.Proof(graphmodel.NewNode(999))
	require.ErrorIs(t, err, ErrElementNotFound)
}

func TestOddTailSelfPairs(t *testing.T) {
	elems := []graphmodel.Element{graphmodel.NewNode(1), graphmodel.NewNode(2), graphmodel.NewNode(3)}
	tree, err := Build(elems)
	require.NoError(t, err)

	proof, err := tree.Proof(graphmodel.NewNode(3))
	require.NoError(t, err)

	foundSelf := false
	for _, step := range proof.HashChain {
		if step.Position == Self {
			foundSelf = true
		}
	}
	assert.True(t, foundSelf, "odd-tail leaf should hit a self-pairing step")
}

func TestVerifyProof_TamperedElementFails(t *testing.T) {
	elems := graphmodel.SortElements(triangleElements())
	tree, err := Build(elems)
	require.NoError(t, err)

	proof, err := tree.Proof(graphmodel.NewNode(1))
	require.NoError(t, err)

	proof.Element = graphmodel.NewNode(-1)

	ok, err := VerifyProof(proof, tree.Root())
	require.NoError(t, err)
	assert.False(t, ok)
}

func hexOf(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
