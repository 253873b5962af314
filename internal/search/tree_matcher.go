package search

import (
	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
)

// TreeRuleMatcher is the tree-to-string flavour of the matcher contract.
// Tree inputs give every vertex at most one incoming edge, so each trie
// edge admits at most one next-level frontier and the Cartesian products of
// the forest flavour collapse to a single concatenation.
type TreeRuleMatcher struct {
	trie *grammar.Trie
}

// NewTreeRuleMatcher returns a matcher over the given rule trie.
func NewTreeRuleMatcher(trie *grammar.Trie) *TreeRuleMatcher {
	return &TreeRuleMatcher{trie: trie}
}

// EnumerateHyperedges reports every rule match rooted at v via cb.
func (m *TreeRuleMatcher) EnumerateHyperedges(v *forest.Vertex, cb MatchCallback) {
	child := m.trie.Root().Child(grammar.NodeSeq{grammar.Sym(v.Label)})
	if child == nil {
		return
	}
	queue := []frontierItem{{
		fns:  frontier{vertices: []*forest.Vertex{v}},
		node: child,
	}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.node.HasRules() {
			cb(&PartialHyperedge{
				Head:  v,
				Tail:  item.fns.vertices,
				Rules: item.node.Rules(),
			})
		}
		for _, edge := range item.node.Edges() {
			if next, ok := m.advance(item.fns.vertices, edge.Seq); ok {
				queue = append(queue, frontierItem{
					fns:  frontier{vertices: next},
					node: edge.Child,
				})
			}
		}
	}
}

// advance matches one trie edge against the frontier and returns the
// next-level frontier, or false if the edge is incompatible.
func (m *TreeRuleMatcher) advance(fns []*forest.Vertex, seq grammar.NodeSeq) ([]*forest.Vertex, bool) {
	if seq.CountCommas()+1 != len(fns) {
		return nil, false
	}
	var next []*forest.Vertex
	pos := 0
	for _, v := range fns {
		n := seq.SubSeqLength(pos)
		if seq[pos].Kind == grammar.SymEpsilon {
			next = append(next, v)
		} else {
			if len(v.Incoming) == 0 || !matchChildren(v.Incoming[0].Tail, seq, pos, n) {
				return nil, false
			}
			next = append(next, v.Incoming[0].Tail...)
		}
		pos += n + 1
	}
	return next, true
}
