package search_test

import (
	"testing"

	"github.com/syntaxmt/forest-decoder/internal/grammar"
	"github.com/syntaxmt/forest-decoder/internal/model"
	"github.com/syntaxmt/forest-decoder/internal/search"
)

func cubeRule(t *testing.T, m *model.Linear, out string, cost float64) *grammar.Rule {
	t.Helper()
	r := &grammar.Rule{
		Target: &grammar.TargetPhrase{
			Words:        words(out),
			AlignNonTerm: map[int]int{},
		},
		Features: map[string]float64{"p": cost},
	}
	r.Estimate = m.Estimate(r)
	return r
}

func rankedStack(scores ...float64) search.Stack {
	s := make(search.Stack, len(scores))
	for i, sc := range scores {
		s[i] = &search.SVertex{Best: &search.SHyperedge{Score: sc}}
	}
	return s
}

func TestCubeQueueMonotonicPops(t *testing.T) {
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	bundles := []*search.HyperedgeBundle{
		{
			Rules:  []*grammar.Rule{cubeRule(t, m, "a", -1), cubeRule(t, m, "b", -2.5)},
			Stacks: []search.Stack{rankedStack(-0.5, -1.5, -4), rankedStack(0, -2)},
		},
		{
			Rules:       []*grammar.Rule{cubeRule(t, m, "c", -1.2)},
			Stacks:      []search.Stack{rankedStack(-0.3, -3)},
			InputWeight: -0.1,
		},
	}

	q := search.NewCubeQueue(m, bundles)
	var pops int
	prev := 0.0
	first := true
	for !q.IsEmpty() {
		edge := q.Pop()
		pops++
		if !first && edge.Score > prev+1e-9 {
			t.Errorf("pop %d score %v exceeds previous %v", pops, edge.Score, prev)
		}
		prev = edge.Score
		first = false
	}
	// 2 rules x 3 x 2 cells, plus 1 rule x 2 cells.
	if pops != 14 {
		t.Errorf("popped %d edges, want 14", pops)
	}

	// Re-seeding yields the same best corner.
	q = search.NewCubeQueue(m, bundles)
	best := q.Pop()
	// Bundle one: -1 (rule) + -0.5 + 0.
	if !almostEqual(best.Score, -1.5) {
		t.Errorf("best pop = %v, want -1.5", best.Score)
	}
}
