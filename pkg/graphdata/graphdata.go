// Package graphdata loads and manipulates the plain edge-list graphs this
// module verifies: parsing a dataset from disk, streaming it in batches for
// large inputs, building an adjacency list, sampling a connected subgraph
// for local testing, and generating the addition/deletion batches each
// update round applies.
package graphdata

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/certen/graphverify/pkg/graphmodel"
)

// Graph is a loaded node/edge set, deduplicated and ready for tree
// construction.
type Graph struct {
	Nodes []graphmodel.Element
	Edges []graphmodel.Element
}

// Load reads a whitespace-delimited edge-list file ("u v" per line,
// '#'-prefixed comments and blank lines ignored) into a Graph.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("graphdata: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Graph, error) {
	nodeSet := graphmodel.NewSet()
	edgeSet := graphmodel.NewSet()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isCommentLine(line) {
			continue
		}
		u, v, err := parseEdgeLine(line)
		if err != nil {
			return nil, fmt.Errorf("graphdata: line %d: %w", lineNo, err)
		}
		if u == v {
			continue
		}
		nodeSet.Add(graphmodel.NewNode(u))
		nodeSet.Add(graphmodel.NewNode(v))
		edgeSet.Add(graphmodel.NewEdge(u, v))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("graphdata: scan: %w", err)
	}

	return &Graph{Nodes: nodeSet.Slice(), Edges: edgeSet.Slice()}, nil
}

func isCommentLine(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%")
}

// parseEdgeLine parses "u v" or "u v ts"; a trailing timestamp field is
// accepted (matching datasets that carry an edge-arrival time) but ignored,
// since this module derives its own round timestamps rather than replaying
// ones embedded in the input file.
func parseEdgeLine(line string) (int64, int64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("expected at least two fields, got %d", len(fields))
	}
	u, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse u: %w", err)
	}
	v, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse v: %w", err)
	}
	return u, v, nil
}

// StreamBatches reads a dataset file in fixed-size edge batches, invoking fn
// for each batch in order. Used for datasets too large to hold entirely in
// memory before the first round starts.
func StreamBatches(path string, batchSize int, fn func(edges []graphmodel.Element) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("graphdata: batch size must be positive")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("graphdata: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	batch := make([]graphmodel.Element, 0, batchSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isCommentLine(line) {
			continue
		}
		u, v, err := parseEdgeLine(line)
		if err != nil {
			return fmt.Errorf("graphdata: line %d: %w", lineNo, err)
		}
		if u == v {
			continue
		}
		batch = append(batch, graphmodel.NewEdge(u, v))
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]graphmodel.Element, 0, batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("graphdata: scan: %w", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// AdjacencyList builds an undirected adjacency map from an edge set.
func AdjacencyList(edges []graphmodel.Element) map[int64][]int64 {
	adj := make(map[int64][]int64)
	for _, e := range edges {
		u, v := e.Edge()
		adj[u] = append(adj[u], v)
		adj[v] = append(adj[v], u)
	}
	return adj
}

// SampleSubgraph breadth-first samples a connected subgraph of at most n
// nodes starting from an arbitrary seed node, returning the induced edge
// set among the sampled nodes. Used to build small, reproducible test
// fixtures out of a larger dataset.
func SampleSubgraph(g *Graph, n int, rng *rand.Rand) *Graph {
	if n <= 0 || len(g.Nodes) == 0 {
		return &Graph{}
	}
	adj := AdjacencyList(g.Edges)

	start := g.Nodes[rng.Intn(len(g.Nodes))].Node()
	visited := map[int64]bool{start: true}
	queue := []int64{start}

	for len(queue) > 0 && len(visited) < n {
		cur := queue[0]
		queue = queue[1:]
		neighbors := append([]int64(nil), adj[cur]...)
		rng.Shuffle(len(neighbors), func(i, j int) { neighbors[i], neighbors[j] = neighbors[j], neighbors[i] })
		for _, nb := range neighbors {
			if len(visited) >= n {
				break
			}
			if !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}

	nodeSet := graphmodel.NewSet()
	for id := range visited {
		nodeSet.Add(graphmodel.NewNode(id))
	}
	edgeSet := graphmodel.NewSet()
	for _, e := range g.Edges {
		u, v := e.Edge()
		if visited[u] && visited[v] {
			edgeSet.Add(e)
		}
	}

	return &Graph{Nodes: nodeSet.Slice(), Edges: edgeSet.Slice()}
}

// Split partitions a graph's edges into an initial static load and a
// held-back stream, mirroring a deployment that bootstraps from a fraction
// of a dataset and streams the remainder in afterward. scale, when
// positive, overrides initRatio and is treated as an absolute edge count
// for the initial load; otherwise initRatio (expected in (0, 1]) selects
// the initial fraction. Edges are taken in canonical sort order so the
// split is reproducible across runs over the same dataset. The initial
// graph keeps the endpoints of its edges plus every node that no streamed
// edge touches, since there is no edge to stream such a node in on later;
// a node touched only by streamed edges is left out.
func Split(g *Graph, initRatio float64, scale int) (*Graph, []graphmodel.Element) {
	sorted := graphmodel.SortElements(g.Edges)

	n := len(sorted)
	cut := n
	switch {
	case scale > 0:
		cut = scale
	case initRatio > 0 && initRatio < 1:
		cut = int(float64(n) * initRatio)
	}
	if cut > n {
		cut = n
	}
	if cut < 0 {
		cut = 0
	}

	initial := append([]graphmodel.Element(nil), sorted[:cut]...)
	stream := append([]graphmodel.Element(nil), sorted[cut:]...)

	touched := graphmodel.NewSet()
	for _, e := range initial {
		u, v := e.Edge()
		touched.Add(graphmodel.NewNode(u))
		touched.Add(graphmodel.NewNode(v))
	}
	streamedNodes := graphmodel.NewSet()
	for _, e := range stream {
		u, v := e.Edge()
		streamedNodes.Add(graphmodel.NewNode(u))
		streamedNodes.Add(graphmodel.NewNode(v))
	}
	for _, node := range g.Nodes {
		if !streamedNodes.Contains(node) || touched.Contains(node) {
			touched.Add(node)
		}
	}

	return &Graph{Nodes: touched.Slice(), Edges: initial}, stream
}

// UpdateBatch is one round's worth of graph mutation: elements to add and
// elements to delete, both disjoint from each other.
type UpdateBatch struct {
	Additions []graphmodel.Element
	Deletions []graphmodel.Element
}

// GenerateUpdate samples a batch of additions (new edges among existing
// nodes, occasionally introducing a new node) and deletions (existing
// edges picked at random) from the current graph state.
func GenerateUpdate(g *Graph, batchSize int, rng *rand.Rand) UpdateBatch {
	if len(g.Nodes) == 0 {
		return UpdateBatch{}
	}

	existingEdges := graphmodel.NewSet(g.Edges...)
	maxNodeID := int64(0)
	for _, n := range g.Nodes {
		if id := n.Node(); id > maxNodeID {
			maxNodeID = id
		}
	}

	additions := make([]graphmodel.Element, 0, batchSize)
	attempts := 0
	for len(additions) < batchSize && attempts < batchSize*20 {
		attempts++
		u := g.Nodes[rng.Intn(len(g.Nodes))].Node()
		var v int64
		if rng.Float64() < 0.1 {
			maxNodeID++
			v = maxNodeID
		} else {
			v = g.Nodes[rng.Intn(len(g.Nodes))].Node()
		}
		if u == v {
			continue
		}
		e := graphmodel.NewEdge(u, v)
		if existingEdges.Contains(e) {
			continue
		}
		existingEdges.Add(e)
		additions = append(additions, e)
	}

	deletions := make([]graphmodel.Element, 0, batchSize)
	if len(g.Edges) > 0 {
		shuffled := make([]graphmodel.Element, len(g.Edges))
		copy(shuffled, g.Edges)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		limit := batchSize
		if limit > len(shuffled) {
			limit = len(shuffled)
		}
		deletions = append(deletions, shuffled[:limit]...)
	}

	return UpdateBatch{Additions: additions, Deletions: deletions}
}
