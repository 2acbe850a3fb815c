package aamht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/graphverify/pkg/graphmodel"
	"github.com/certen/graphverify/pkg/verrs"
)

func TestProof_InitElement_VerifiesAgainstAggregateRoot(t *testing.T) {
	tree, err := New([]graphmodel.Element{
		graphmodel.NewNode(1),
		graphmodel.NewNode(2),
		graphmodel.NewEdge(1, 2),
	})
	require.NoError(t, err)

	proof, err := tree.Proof(graphmodel.NewNode(1))
	require.NoError(t, err)

	got, err := Verify(proof)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(tree.AggregateRoot()))
}

func TestApplyAddition_NewElementProvable(t *testing.T) {
	tree, err := New([]graphmodel.Element{graphmodel.NewNode(1)})
	require.NoError(t, err)

	_, idx, err := tree.ApplyAddition([]graphmodel.Element{graphmodel.NewNode(2)})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	proof, err := tree.Proof(graphmodel.NewNode(2))
	require.NoError(t, err)
	assert.Equal(t, TagAdd, proof.Tag)

	got, err := Verify(proof)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(tree.AggregateRoot()))
}

func TestApplyDeletion_RemovesFromLiveSet(t *testing.T) {
	tree, err := New([]graphmodel.Element{graphmodel.NewNode(1), graphmodel.NewNode(2)})
	require.NoError(t, err)

	_, _, err = tree.ApplyDeletion([]graphmodel.Element{graphmodel.NewNode(2)})
	require.NoError(t, err)

	_, err = tree.Proof(graphmodel.NewNode(2))
	require.Error(t, err)
	assert.True(t, verrs.HasCode(err, verrs.CodeDeleted))
}

func TestProof_NeverSeenElement_FailsElementNotFound(t *testing.T) {
	tree, err := New([]graphmodel.Element{graphmodel.NewNode(1)})
	require.NoError(t, err)

	_, err = tree.Proof(graphmodel.NewNode(99))
	require.Error(t, err)
	assert.True(t, verrs.HasCode(err, verrs.CodeElementNotFound))
}

func TestApplyAddition_AfterDeletion_ReAddedElementIsProvableAgain(t *testing.T) {
	tree, err := New([]graphmodel.Element{graphmodel.NewNode(1), graphmodel.NewNode(2)})
	require.NoError(t, err)

	_, _, err = tree.ApplyDeletion([]graphmodel.Element{graphmodel.NewNode(2)})
	require.NoError(t, err)

	_, _, err = tree.ApplyAddition([]graphmodel.Element{graphmodel.NewNode(2)})
	require.NoError(t, err)

	proof, err := tree.Proof(graphmodel.NewNode(2))
	require.NoError(t, err)
	assert.Equal(t, TagAdd, proof.Tag)
}

func TestAggregateRoot_AdditionChangesThenDeletionRestores(t *testing.T) {
	tree, err := New([]graphmodel.Element{graphmodel.NewNode(1)})
	require.NoError(t, err)
	baseline := tree.AggregateRoot()

	_, _, err = tree.ApplyAddition([]graphmodel.Element{graphmodel.NewNode(2)})
	require.NoError(t, err)
	afterAdd := tree.AggregateRoot()
	assert.NotEqual(t, 0, baseline.Cmp(afterAdd))

	_, _, err = tree.ApplyDeletion([]graphmodel.Element{graphmodel.NewNode(2)})
	require.NoError(t, err)
	// The deletion sub-tree is built over the same element as the addition
	// sub-tree, so both have the same root and the deletion cancels the
	// addition: the aggregate returns to baseline.
	afterDel := tree.AggregateRoot()
	assert.Equal(t, 0, baseline.Cmp(afterDel))
}

func TestVerify_TamperedChainFails(t *testing.T) {
	tree, err := New([]graphmodel.Element{graphmodel.NewNode(1), graphmodel.NewNode(2)})
	require.NoError(t, err)

	proof, err := tree.Proof(graphmodel.NewNode(1))
	require.NoError(t, err)
	proof.Element = graphmodel.NewNode(999)

	_, err = Verify(proof)
	require.Error(t, err)
	assert.True(t, verrs.HasCode(err, verrs.CodeSubrootMismatch))
}
