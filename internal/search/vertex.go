// Package search is the decode core: rule matching over the input forest,
// bounded bundle collection, cube pruning, recombination into per-node
// stacks, glue fallback, lazy k-best extraction, and alignment
// reconstruction. One Manager decodes one sentence.
package search

import (
	"sort"

	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
)

// FeatureVec is a sparse feature-score breakdown.
type FeatureVec map[string]float64

// Clone returns a copy of the vector.
func (v FeatureVec) Clone() FeatureVec {
	c := make(FeatureVec, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

// Add accumulates o into v.
func (v FeatureVec) Add(o FeatureVec) {
	for k, val := range o {
		v[k] += val
	}
}

// Scorer evaluates a rule applied over chosen tail vertices. It must be
// pure: the same inputs always produce the same outputs. Score returns the
// rule-local score contribution and its feature breakdown; tail scores are
// accumulated by the caller. State returns the externally visible part of
// the resulting hypothesis, used as the recombination equivalence key; an
// empty state recombines every hypothesis at a node.
type Scorer interface {
	Score(rule *grammar.Rule, tail []*SVertex) (float64, FeatureVec)
	State(rule *grammar.Rule, tail []*SVertex) string
}

// SVertex is a node of the output search space: one recombination
// equivalence class at one input vertex. Best is the highest-scoring
// incoming hyperedge ever merged into the class; Recombined holds the
// displaced alternatives, kept for exact k-best extraction. Leaf vertices
// have no incoming hyperedge and score zero.
type SVertex struct {
	PVertex    *forest.Vertex
	Best       *SHyperedge
	Recombined []*SHyperedge
	State      string
}

// Score returns the score of the best incoming hyperedge, or 0 for leaves.
func (v *SVertex) Score() float64 {
	if v.Best == nil {
		return 0
	}
	return v.Best.Score
}

// SHyperedge is one fully scored rule application: a rule alternative plus
// one chosen tail vertex per source frontier position. Score is the total
// inside score (input weight + rule-local score + tail best scores);
// Breakdown holds only the rule-local feature contributions.
type SHyperedge struct {
	Head        *SVertex
	Tail        []*SVertex
	Rule        *grammar.Rule
	Score       float64
	Breakdown   FeatureVec
	InputWeight float64
}

// Stack is the result stack of one input vertex: surviving output vertices
// sorted by descending best score, truncated to the stack limit.
type Stack []*SVertex

func sortStack(s Stack) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Score() > s[j].Score()
	})
}
