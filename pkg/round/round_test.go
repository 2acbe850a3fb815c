package round

import (
	"math/big"
	"strconv"
	"strings"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/graphverify/pkg/cachestore"
	"github.com/certen/graphverify/pkg/config"
	"github.com/certen/graphverify/pkg/graphdata"
	"github.com/certen/graphverify/pkg/graphmodel"
	"github.com/certen/graphverify/pkg/obsmetrics"
	"github.com/certen/graphverify/pkg/verrs"
)

// parseTestGraph builds a Graph from an inline edge list without touching
// the filesystem.
func parseTestGraph(t *testing.T, content string) *graphdata.Graph {
	t.Helper()
	nodeSet := graphmodel.NewSet()
	edgeSet := graphmodel.NewSet()
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		fields := strings.Fields(line)
		require.Len(t, fields, 2)
		u, err := strconv.ParseInt(fields[0], 10, 64)
		require.NoError(t, err)
		v, err := strconv.ParseInt(fields[1], 10, 64)
		require.NoError(t, err)
		nodeSet.Add(graphmodel.NewNode(u))
		nodeSet.Add(graphmodel.NewNode(v))
		edgeSet.Add(graphmodel.NewEdge(u, v))
	}
	return &graphdata.Graph{Nodes: nodeSet.Slice(), Edges: edgeSet.Slice()}
}

func testEngine(t *testing.T) (*Engine, *graphdata.Graph) {
	t.Helper()

	g := parseTestGraph(t, "1 2\n2 3\n3 4\n4 1\n")

	cfg := config.Default()
	cfg.TimestampSize = 20
	cfg.DecoySetSize = 3
	cfg.WorkerPoolSize = 2

	store := cachestore.NewFromDB(dbm.NewMemDB())
	metrics := obsmetrics.New(prometheus.NewRegistry())

	engine, err := Bootstrap(cfg, g, store, metrics, nil)
	require.NoError(t, err)
	return engine, g
}

func TestBootstrap_SignsInitialRoot(t *testing.T) {
	engine, _ := testEngine(t)
	assert.NotNil(t, engine.aggregate)
	assert.Equal(t, 0, engine.Round())
}

func TestRunQueryRound_AllChecksPassImmediatelyAfterBootstrap(t *testing.T) {
	engine, g := testEngine(t)

	report, err := engine.RunQueryRound([]graphmodel.Element{g.Nodes[0]})
	require.NoError(t, err)
	assert.True(t, report.IntegrityOK)
	assert.True(t, report.FreshnessOK)
	assert.True(t, report.CorrectnessOK)
}

func TestRunUpdateRound_AdditionAdvancesRootAndRound(t *testing.T) {
	engine, _ := testEngine(t)
	before := engine.CurrentRoot()

	report, err := engine.RunUpdateRound(KindAddition, []graphmodel.Element{graphmodel.NewNode(99)})
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Round())
	assert.NotEqual(t, 0, before.Cmp(report.Root))

	queryReport, err := engine.RunQueryRound([]graphmodel.Element{graphmodel.NewNode(99)})
	require.NoError(t, err)
	assert.True(t, queryReport.IntegrityOK)
}

func TestRunUpdateRound_DeletionRemovesElement(t *testing.T) {
	engine, g := testEngine(t)

	target := g.Edges[0]
	_, err := engine.RunUpdateRound(KindDeletion, []graphmodel.Element{target})
	require.NoError(t, err)

	_, proofErr := engine.proofFor(target)
	assert.Error(t, proofErr)
	assert.True(t, verrs.HasCode(proofErr, verrs.CodeDeleted))
}

// TestRunQueryRound_ForgedResponseElementFailsFreshness models an
// outsourced party claiming a response that includes an element it never
// actually committed via any round: its encrypted form was never inserted
// into the filter, so the rq union S_i freshness probe must fail.
func TestRunQueryRound_ForgedResponseElementFailsFreshness(t *testing.T) {
	engine, g := testEngine(t)

	forged := graphmodel.NewNode(424242)
	report, err := engine.RunQueryRoundWithResponse([]graphmodel.Element{g.Nodes[0]}, []graphmodel.Element{forged})
	assert.Error(t, err)
	assert.False(t, report.FreshnessOK)
}

// TestRunQueryRound_SubstitutedResponseFailsCorrectness models an
// outsourced party claiming a response disjoint from the real query: the
// real query's elements stay in the filter after the claimed response is
// removed, so the correctness probe for the real query sees far more hits
// than the false-positive budget allows.
func TestRunQueryRound_SubstitutedResponseFailsCorrectness(t *testing.T) {
	engine, g := testEngine(t)

	realQuery := append(append([]graphmodel.Element{}, g.Nodes...), g.Edges...)
	substitutedResponse := []graphmodel.Element{graphmodel.NewNode(g.Nodes[0].Node())}

	report, err := engine.RunQueryRoundWithResponse(realQuery, substitutedResponse)
	assert.Error(t, err)
	assert.False(t, report.CorrectnessOK)
	assert.Greater(t, report.CorrectnessHit, 0)
}

// TestBootstrap_ReusesCachedKeyAndEncryptedGraph confirms a second bootstrap
// against the same dataset path and cache store reuses the cached RSA key
// (instead of generating a new 1024-bit modulus) and the cached
// encrypted-graph blob (instead of redoing every RSA encryption), and that
// the resulting engine still passes a full query round.
func TestBootstrap_ReusesCachedKeyAndEncryptedGraph(t *testing.T) {
	g := parseTestGraph(t, "1 2\n2 3\n3 4\n4 1\n")
	cfg := config.Default()
	cfg.TimestampSize = 20
	cfg.WorkerPoolSize = 2
	cfg.DatasetPath = "shared-dataset"

	store := cachestore.NewFromDB(dbm.NewMemDB())
	metrics := obsmetrics.New(prometheus.NewRegistry())

	first, err := Bootstrap(cfg, g, store, metrics, nil)
	require.NoError(t, err)

	second, err := Bootstrap(cfg, g, store, metrics, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, first.ctx.RSA.N.Cmp(second.ctx.RSA.N))

	report, err := second.RunQueryRound([]graphmodel.Element{g.Nodes[0]})
	require.NoError(t, err)
	assert.True(t, report.IntegrityOK)
	assert.True(t, report.FreshnessOK)
	assert.True(t, report.CorrectnessOK)
}

// TestRunQueryRound_TamperedRootFailsIntegrity models a proof whose claimed
// subtree root no longer matches what the current aggregate signature
// covers, the same failure mode as a tampered proof element.
func TestRunQueryRound_TamperedRootFailsIntegrity(t *testing.T) {
	engine, g := testEngine(t)

	// Advance the signed root without updating the tree the query proof is
	// drawn from, so the proof recomputes correctly but against a root the
	// current signature no longer covers.
	engine.lastRoot.Add(engine.lastRoot, big.NewInt(1))

	report, err := engine.RunQueryRound([]graphmodel.Element{g.Nodes[0]})
	assert.Error(t, err)
	assert.False(t, report.IntegrityOK)
}
