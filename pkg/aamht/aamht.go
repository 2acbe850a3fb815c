// Package aamht implements the Arithmetic-Aggregation Merkle Hash Tree: an
// append-only history of tagged Merkle sub-trees (one initial tree, plus one
// additional sub-tree per addition or deletion round) whose roots combine
// under modular arithmetic into a single aggregate root that is what gets
// signed each round. Proving an element's membership only requires a Merkle
// proof against the one sub-tree that holds it, plus the other sub-trees'
// already-committed roots to recompute the aggregate.
package aamht

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/certen/graphverify/pkg/curvecrypto"
	"github.com/certen/graphverify/pkg/graphmodel"
	"github.com/certen/graphverify/pkg/merkle"
	"github.com/certen/graphverify/pkg/verrs"
)

// Tag identifies which kind of sub-tree a proof's element was found in.
type Tag string

const (
	TagInit Tag = "init"
	TagAdd  Tag = "add"
	TagDel  Tag = "del"
)

// AAProof is a self-contained proof of a live element's membership in the
// tree as of the sub-tree roots it embeds (Proof refuses deleted elements).
// An external verifier needs nothing but this struct and
// the signed (timestamp, aggregate root) pair to check it.
type AAProof struct {
	Element graphmodel.Element `json:"element"`
	Tag     Tag                `json:"tag"`
	Index   int                `json:"index"` // index into the add/del history; unused for TagInit

	SubChain      []merkle.ProofStep `json:"sub_chain"`
	SubtreeRoot   string             `json:"subtree_root"`
	InitRoot      string             `json:"init_root"`
	AddRoots      []string           `json:"add_roots"`
	DelRoots      []string           `json:"del_roots"`
}

// Tree is the Data Owner's view: the full sub-tree history plus the live
// element set needed to answer Proof requests.
type Tree struct {
	mu sync.RWMutex

	initTree *merkle.Tree
	addTrees []*merkle.Tree
	delTrees []*merkle.Tree

	// live tracks which tagged sub-tree currently "owns" each element, so
	// Proof can find it without scanning every sub-tree on every call.
	live map[string]location
	// deleted tombstones an element once ApplyDeletion removes it from
	// live, recording which del sub-tree holds its deletion record so
	// Proof can distinguish "deleted" from "never seen".
	deleted map[string]location
}

type location struct {
	tag   Tag
	index int
}

// New builds the initial sub-tree from the starting element set.
func New(initial []graphmodel.Element) (*Tree, error) {
	sorted := graphmodel.SortElements(initial)
	initTree, err := merkle.Build(sorted)
	if err != nil {
		return nil, fmt.Errorf("aamht: build initial tree: %w", err)
	}

	t := &Tree{
		initTree: initTree,
		live:     make(map[string]location, len(sorted)),
		deleted:  make(map[string]location),
	}
	for _, e := range sorted {
		t.live[e.Canonical()] = location{tag: TagInit}
	}
	return t, nil
}

// ApplyAddition appends a new tagged sub-tree over the given elements and
// returns its sub-root (as a mod-q scalar) and index.
func (t *Tree) ApplyAddition(elements []graphmodel.Element) (*big.Int, int, error) {
	if len(elements) == 0 {
		return nil, 0, verrs.New(verrs.CodeInternal, "aamht: empty addition batch")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sorted := graphmodel.SortElements(elements)
	tree, err := merkle.Build(sorted)
	if err != nil {
		return nil, 0, fmt.Errorf("aamht: build addition sub-tree: %w", err)
	}

	idx := len(t.addTrees)
	t.addTrees = append(t.addTrees, tree)
	for _, e := range sorted {
		t.live[e.Canonical()] = location{tag: TagAdd, index: idx}
		// A re-added element is live again; it is no longer "deleted".
		delete(t.deleted, e.Canonical())
	}

	return rootScalar(tree.Root()), idx, nil
}

// ApplyDeletion appends a new tagged sub-tree over the deleted elements and
// returns its sub-root and index. Deleted elements are removed from the
// live set and tombstoned in the deleted set, so a later Proof call can
// report CodeDeleted instead of CodeElementNotFound for them.
func (t *Tree) ApplyDeletion(elements []graphmodel.Element) (*big.Int, int, error) {
	if len(elements) == 0 {
		return nil, 0, verrs.New(verrs.CodeInternal, "aamht: empty deletion batch")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sorted := graphmodel.SortElements(elements)
	tree, err := merkle.Build(sorted)
	if err != nil {
		return nil, 0, fmt.Errorf("aamht: build deletion sub-tree: %w", err)
	}

	idx := len(t.delTrees)
	t.delTrees = append(t.delTrees, tree)
	for _, e := range sorted {
		delete(t.live, e.Canonical())
		t.deleted[e.Canonical()] = location{tag: TagDel, index: idx}
	}

	return rootScalar(tree.Root()), idx, nil
}

// rootScalar reduces a Merkle root digest to a field scalar for the
// aggregate's modular arithmetic.
func rootScalar(root []byte) *big.Int {
	n := new(big.Int).SetBytes(root)
	return curvecrypto.ModQ(n)
}

// AggregateRoot computes R = (R_init + sum(R_add) - sum(R_del)) mod q from
// the current sub-tree history.
func (t *Tree) AggregateRoot() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.aggregateRootLocked()
}

func (t *Tree) aggregateRootLocked() *big.Int {
	sum := new(big.Int).Set(rootScalar(t.initTree.Root()))
	for _, tree := range t.addTrees {
		sum.Add(sum, rootScalar(tree.Root()))
	}
	for _, tree := range t.delTrees {
		sum.Sub(sum, rootScalar(tree.Root()))
	}
	return curvecrypto.ModQ(sum)
}

// Proof builds an AAProof for a currently-live element. An element that was
// deleted fails with CodeDeleted rather than CodeElementNotFound, so a
// caller can distinguish "this was removed" from "this was never here".
func (t *Tree) Proof(e graphmodel.Element) (*AAProof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	loc, ok := t.live[e.Canonical()]
	if !ok {
		if _, wasDeleted := t.deleted[e.Canonical()]; wasDeleted {
			return nil, verrs.Newf(verrs.CodeDeleted, "aamht: element deleted: %s", e.Canonical())
		}
		return nil, verrs.Newf(verrs.CodeElementNotFound, "aamht: element not found: %s", e.Canonical())
	}

	var sub *merkle.Tree
	switch loc.tag {
	case TagInit:
		sub = t.initTree
	case TagAdd:
		sub = t.addTrees[loc.index]
	default:
		return nil, verrs.Newf(verrs.CodeInternal, "aamht: live element in unexpected tag %q", loc.tag)
	}

	subProof, err := sub.Proof(e)
	if err != nil {
		return nil, fmt.Errorf("aamht: sub-tree proof: %w", err)
	}

	return &AAProof{
		Element:     e,
		Tag:         loc.tag,
		Index:       loc.index,
		SubChain:    subProof.HashChain,
		SubtreeRoot: subProof.RootHash,
		InitRoot:    t.initTree.RootHex(),
		AddRoots:    rootHexes(t.addTrees),
		DelRoots:    rootHexes(t.delTrees),
	}, nil
}

func rootHexes(trees []*merkle.Tree) []string {
	out := make([]string, len(trees))
	for i, tr := range trees {
		out[i] = tr.RootHex()
	}
	return out
}

// Verify checks an AAProof in isolation: it recomputes the claimed
// sub-tree's root from the embedded hash chain, confirms it matches the
// sub-tree root recorded in the proof, and returns the aggregate root
// implied by combining that sub-tree root with the proof's other recorded
// sub-tree roots. The caller compares the returned aggregate root against
// the one bound into a signature.
func Verify(p *AAProof) (*big.Int, error) {
	subProof := &merkle.Proof{Element: p.Element, HashChain: p.SubChain, RootHash: p.SubtreeRoot}
	recomputed, err := merkle.Recompute(subProof)
	if err != nil {
		return nil, fmt.Errorf("aamht: recompute sub-tree root: %w", err)
	}

	claimed, err := hex.DecodeString(p.SubtreeRoot)
	if err != nil || hex.EncodeToString(recomputed) != hex.EncodeToString(claimed) {
		return nil, verrs.Newf(verrs.CodeSubrootMismatch,
			"aamht: recomputed sub-tree root %x does not match claimed root %s", recomputed, p.SubtreeRoot)
	}

	sum := new(big.Int)
	initRootBytes := claimed
	if p.Tag != TagInit {
		initRootBytes, err = hex.DecodeString(p.InitRoot)
		if err != nil {
			return nil, verrs.Wrap(err, verrs.CodeMalformedProof, "aamht: decode init root")
		}
	}
	sum.Add(sum, rootScalar(initRootBytes))

	for i, rh := range p.AddRoots {
		rootBytes := claimed
		if !(p.Tag == TagAdd && p.Index == i) {
			rootBytes, err = hex.DecodeString(rh)
			if err != nil {
				return nil, verrs.Wrap(err, verrs.CodeMalformedProof, "aamht: decode add root")
			}
		}
		sum.Add(sum, rootScalar(rootBytes))
	}

	for i, rh := range p.DelRoots {
		rootBytes := claimed
		if !(p.Tag == TagDel && p.Index == i) {
			rootBytes, err = hex.DecodeString(rh)
			if err != nil {
				return nil, verrs.Wrap(err, verrs.CodeMalformedProof, "aamht: decode del root")
			}
		}
		sum.Sub(sum, rootScalar(rootBytes))
	}

	return curvecrypto.ModQ(sum), nil
}
