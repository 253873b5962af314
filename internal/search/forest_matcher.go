package search

import (
	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
)

// ForestRuleMatcher matches rule patterns against packed forests using the
// frontier-queue algorithm of Zhang, Zhang, Li and Tan (EMNLP 2009): a
// breadth-first queue of (frontier, trie node) pairs, where one trie step
// advances the whole frontier a level at a time, binding children across
// several packed-forest vertices in a single operation.
type ForestRuleMatcher struct {
	trie *grammar.Trie
}

// NewForestRuleMatcher returns a matcher over the given rule trie.
func NewForestRuleMatcher(trie *grammar.Trie) *ForestRuleMatcher {
	return &ForestRuleMatcher{trie: trie}
}

// frontier is an ordered list of forest vertices matched so far at the
// current trie depth, plus the accumulated weight of the forest edges the
// bindings consumed.
type frontier struct {
	vertices []*forest.Vertex
	weight   float64
}

type frontierItem struct {
	fns  frontier
	node *grammar.Node
}

// EnumerateHyperedges reports every rule match rooted at v via cb.
func (m *ForestRuleMatcher) EnumerateHyperedges(v *forest.Vertex, cb MatchCallback) {
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
				Head:        v,
				Tail:        item.fns.vertices,
				Rules:       item.node.Rules(),
				InputWeight: item.fns.weight,
			})
		}
		queue = m.propagateNextLevel(item, queue)
	}
}

// propagateNextLevel pushes, for every outgoing trie edge compatible with
// the item's frontier, all next-level frontiers onto the queue.
func (m *ForestRuleMatcher) propagateNextLevel(item frontierItem, queue []frontierItem) []frontierItem {
	for _, edge := range item.node.Edges() {
		seq := edge.Seq
		groups := seq.CountCommas() + 1
		if groups != len(item.fns.vertices) {
			continue
		}
		// Per frontier vertex, collect the child groupings compatible with
		// its group, then take the running Cartesian product.
		result := []frontier{{}}
		pos := 0
		for i := 0; i < groups && result != nil; i++ {
			v := item.fns.vertices[i]
			n := seq.SubSeqLength(pos)
			var alts []frontier
			if seq[pos].Kind == grammar.SymEpsilon {
				alts = []frontier{{vertices: []*forest.Vertex{v}}}
			} else {
				for _, in := range v.Incoming {
					if matchChildren(in.Tail, seq, pos, n) {
						alts = append(alts, frontier{vertices: in.Tail, weight: in.Weight})
					}
				}
			}
			result = cartesianProduct(result, alts)
			pos += n + 1
		}
		for _, f := range result {
			queue = append(queue, frontierItem{
				fns:  frontier{vertices: f.vertices, weight: item.fns.weight + f.weight},
				node: edge.Child,
			})
		}
	}
	return queue
}

// cartesianProduct extends every prefix frontier with every alternative.
// An empty alternative set annihilates the product.
func cartesianProduct(prefixes, alts []frontier) []frontier {
	if len(alts) == 0 {
		return nil
	}
	out := make([]frontier, 0, len(prefixes)*len(alts))
	for _, p := range prefixes {
		for _, a := range alts {
			joined := make([]*forest.Vertex, 0, len(p.vertices)+len(a.vertices))
			joined = append(joined, p.vertices...)
			joined = append(joined, a.vertices...)
			out = append(out, frontier{vertices: joined, weight: p.weight + a.weight})
		}
	}
	return out
}
