package search

import (
	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
)

// PartialHyperedge is the output of one completed rule match: the matched
// input vertex, the bound source frontier (tail vertices in left-to-right
// order), the rule alternatives filed at the matched trie node (best
// estimate first), and the total weight of the forest edges the match
// consumed.
type PartialHyperedge struct {
	Head        *forest.Vertex
	Tail        []*forest.Vertex
	Rules       []*grammar.Rule
	InputWeight float64
}

// MatchCallback receives each partial hyperedge as it is found. The partial
// hyperedge is only valid for the duration of the call.
type MatchCallback func(*PartialHyperedge)

// RuleMatcher enumerates, for one internal input vertex, every grammar rule
// whose pattern matches some combination of the vertex's descendants.
type RuleMatcher interface {
	EnumerateHyperedges(v *forest.Vertex, cb MatchCallback)
}

// matchChildren reports whether the tail labels equal the group seq[pos :
// pos+length].
func matchChildren(tail []*forest.Vertex, seq grammar.NodeSeq, pos, length int) bool {
	if len(tail) != length {
		return false
	}
	for i, c := range tail {
		e := seq[pos+i]
		if e.Kind != grammar.SymWord || e.Word != c.Label {
			return false
		}
	}
	return true
}
