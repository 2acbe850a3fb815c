// Package graphmodel defines the graph element types shared across every
// verification primitive: a node is a nonzero integer ID, an edge is an
// unordered pair canonicalized by sorting. Every hash and scalar derivation
// in this module operates on an Element's canonical string form so that the
// Data Owner, Cloud Server and Request Party always agree on what they are
// hashing.
package graphmodel

import (
	"fmt"
	"sort"
)

// Kind distinguishes a node element from an edge element.
type Kind int

const (
	KindNode Kind = iota
	KindEdge
)

// Element is a single graph node or edge. Construct with NewNode or NewEdge;
// the zero value is not a valid Element.
type Element struct {
	kind Kind
	node int64
	u, v int64
}

// NewNode builds a node element.
func NewNode(id int64) Element {
	return Element{kind: KindNode, node: id}
}

// NewEdge builds an edge element, canonicalizing the pair by sorting.
func NewEdge(a, b int64) Element {
	if a > b {
		a, b = b, a
	}
	return Element{kind: KindEdge, u: a, v: b}
}

func (e Element) Kind() Kind { return e.kind }

// Node returns the node ID; only meaningful when Kind() == KindNode.
func (e Element) Node() int64 { return e.node }

// Edge returns the canonical (u <= v) endpoints; only meaningful when
// Kind() == KindEdge.
func (e Element) Edge() (int64, int64) { return e.u, e.v }

// Canonical returns the exact string form used for hashing and scalar
// derivation everywhere in this module. It mirrors the reference
// implementation's dichotomy: an edge hashes as the string of its sorted
// tuple, a node hashes as its bare integer string.
func (e Element) Canonical() string {
	switch e.kind {
	case KindEdge:
		return fmt.Sprintf("(%d, %d)", e.u, e.v)
	default:
		return fmt.Sprintf("%d", e.node)
	}
}

func (e Element) String() string { return e.Canonical() }

// SortElements returns a copy of elems sorted by canonical string form, the
// deterministic leaf ordering every MHT build in this module requires.
func SortElements(elems []Element) []Element {
	out := make([]Element, len(elems))
	copy(out, elems)
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical() < out[j].Canonical() })
	return out
}

// Set is a small convenience wrapper, keyed by canonical form, used where
// the reference implementation carries a Python set of elements.
type Set map[string]Element

func NewSet(elems ...Element) Set {
	s := make(Set, len(elems))
	for _, e := range elems {
		s[e.Canonical()] = e
	}
	return s
}

func (s Set) Add(e Element)         { s[e.Canonical()] = e }
func (s Set) Remove(e Element)      { delete(s, e.Canonical()) }
func (s Set) Contains(e Element) bool { _, ok := s[e.Canonical()]; return ok }
func (s Set) Len() int              { return len(s) }

func (s Set) Slice() []Element {
	out := make([]Element, 0, len(s))
	for _, e := range s {
		out = append(out, e)
	}
	return out
}

// Union returns a new Set containing every element of s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
