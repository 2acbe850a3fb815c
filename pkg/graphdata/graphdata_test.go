package graphdata

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/graphverify/pkg/graphmodel"
)

func TestParse_BuildsDedupedNodesAndEdges(t *testing.T) {
	input := "# comment\n1 2\n2 3\n1 2\n\n3 1\n"
	g, err := parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 3)
}

func TestParse_MalformedLineFails(t *testing.T) {
	_, err := parse(strings.NewReader("1 notanumber\n"))
	assert.Error(t, err)
}

func TestParse_DropsSelfLoops(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n3 3\n2 3\n"))
	require.NoError(t, err)

	for _, e := range g.Edges {
		u, v := e.Edge()
		assert.NotEqual(t, u, v)
	}
	assert.Len(t, g.Edges, 2)
}

func TestParse_IgnoresPercentComments(t *testing.T) {
	g, err := parse(strings.NewReader("% header\n1 2\n% another comment\n2 3\n"))
	require.NoError(t, err)
	assert.Len(t, g.Edges, 2)
}

func TestParse_AcceptsTrailingTimestampField(t *testing.T) {
	g, err := parse(strings.NewReader("1 2 20240101000000\n2 3 20240101000001\n"))
	require.NoError(t, err)
	assert.Len(t, g.Edges, 2)
}

func TestAdjacencyList_IsUndirected(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n2 3\n"))
	require.NoError(t, err)

	adj := AdjacencyList(g.Edges)
	assert.Contains(t, adj[1], int64(2))
	assert.Contains(t, adj[2], int64(1))
	assert.Contains(t, adj[2], int64(3))
}

func TestSampleSubgraph_RespectsSizeBound(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n2 3\n3 4\n4 5\n5 1\n"))
	require.NoError(t, err)

	sub := SampleSubgraph(g, 3, rand.New(rand.NewSource(1)))
	assert.LessOrEqual(t, len(sub.Nodes), 3)
	for _, e := range sub.Edges {
		u, v := e.Edge()
		found := map[int64]bool{}
		for _, n := range sub.Nodes {
			found[n.Node()] = true
		}
		assert.True(t, found[u])
		assert.True(t, found[v])
	}
}

func TestGenerateUpdate_DeletionsComeFromExistingEdges(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n2 3\n3 4\n"))
	require.NoError(t, err)

	existing := make(map[string]bool)
	for _, e := range g.Edges {
		existing[e.Canonical()] = true
	}

	batch := GenerateUpdate(g, 2, rand.New(rand.NewSource(42)))
	for _, d := range batch.Deletions {
		assert.True(t, existing[d.Canonical()])
	}
}

func TestGenerateUpdate_AdditionsAreNotExisting(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n2 3\n3 4\n4 5\n5 1\n"))
	require.NoError(t, err)

	existing := make(map[string]bool)
	for _, e := range g.Edges {
		existing[e.Canonical()] = true
	}

	batch := GenerateUpdate(g, 5, rand.New(rand.NewSource(7)))
	for _, a := range batch.Additions {
		assert.False(t, existing[a.Canonical()])
	}
}

func TestSplit_RatioPartitionsEdgesProportionally(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n2 3\n3 4\n4 5\n5 6\n6 7\n7 8\n8 9\n9 10\n10 1\n"))
	require.NoError(t, err)

	initial, stream := Split(g, 0.3, 0)
	assert.Len(t, initial.Edges, 3)
	assert.Len(t, stream, 7)
}

func TestSplit_ScaleOverridesRatio(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n2 3\n3 4\n4 5\n5 6\n"))
	require.NoError(t, err)

	initial, stream := Split(g, 0.9, 2)
	assert.Len(t, initial.Edges, 2)
	assert.Len(t, stream, 3)
}

func TestSplit_FullRatioKeepsEverythingInitial(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n2 3\n3 4\n"))
	require.NoError(t, err)

	initial, stream := Split(g, 1.0, 0)
	assert.Len(t, initial.Edges, 3)
	assert.Empty(t, stream)
}

func TestSplit_IsDeterministicAcrossCalls(t *testing.T) {
	g, err := parse(strings.NewReader("5 2\n2 3\n3 9\n9 1\n1 5\n"))
	require.NoError(t, err)

	firstInitial, firstStream := Split(g, 0.4, 0)
	secondInitial, secondStream := Split(g, 0.4, 0)
	assert.Equal(t, firstInitial.Edges, secondInitial.Edges)
	assert.Equal(t, firstStream, secondStream)
}

func TestSplit_InitialEdgeEndpointsAreInitialNodes(t *testing.T) {
	g, err := parse(strings.NewReader("1 2\n2 3\n3 4\n"))
	require.NoError(t, err)

	initial, _ := Split(g, 0.34, 0)
	found := map[int64]bool{}
	for _, node := range initial.Nodes {
		found[node.Node()] = true
	}
	for _, e := range initial.Edges {
		u, v := e.Edge()
		assert.True(t, found[u])
		assert.True(t, found[v])
	}
}

func TestStreamBatches_InvokesCallbackPerBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.txt")
	content := "1 2\n2 3\n3 4\n4 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var batches [][]graphmodel.Element
	err := StreamBatches(path, 2, func(edges []graphmodel.Element) error {
		batches = append(batches, edges)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
}
