package search

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
)

type match struct {
	tail   string
	weight float64
	rules  int
}

func collectMatches(m RuleMatcher, v *forest.Vertex) []match {
	var out []match
	m.EnumerateHyperedges(v, func(p *PartialHyperedge) {
		labels := make([]string, len(p.Tail))
		for i, t := range p.Tail {
			labels[i] = t.Label
		}
		out = append(out, match{
			tail:   strings.Join(labels, " "),
			weight: p.InputWeight,
			rules:  len(p.Rules),
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].tail != out[j].tail {
			return out[i].tail < out[j].tail
		}
		return out[i].weight < out[j].weight
	})
	return out
}

func mustAddRule(t *testing.T, trie *grammar.Trie, src *grammar.SourceNode) *grammar.Rule {
	t.Helper()
	r := &grammar.Rule{Target: &grammar.TargetPhrase{}}
	if err := trie.AddRule(grammar.PathFromSource(src), r); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	return r
}

func TestTreeMatcherEnumeratesMatches(t *testing.T) {
	f, err := forest.FromTree(forest.TN("S",
		forest.TN("NP", forest.TN("he")),
		forest.TN("VP",
			forest.TN("V", forest.TN("saw")),
			forest.TN("NP", forest.TN("her")),
		),
	))
	if err != nil {
		t.Fatalf("FromTree: %v", err)
	}

	trie := grammar.NewTrie()
	mustAddRule(t, trie, grammar.SN("S", grammar.SN("NP"), grammar.SN("VP")))
	// Deeper pattern: NP expanded to its word, VP left as a frontier slot.
	mustAddRule(t, trie, grammar.SN("S",
		grammar.SN("NP", grammar.SN("he")),
		grammar.SN("VP"),
	))
	mustAddRule(t, trie, grammar.SN("V", grammar.SN("saw")))
	mustAddRule(t, trie, grammar.SN("S", grammar.SN("X"), grammar.SN("Y")))

	matcher := NewTreeRuleMatcher(trie)

	got := collectMatches(matcher, f.Root())
	want := []match{
		{tail: "NP VP", weight: 0, rules: 1},
		{tail: "he VP", weight: 0, rules: 1},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("matches at root = %v, want %v", got, want)
	}

	var vNode *forest.Vertex
	for _, v := range f.Vertices() {
		if v.Label == "V" {
			vNode = v
		}
	}
	got = collectMatches(matcher, vNode)
	want = []match{{tail: "saw", weight: 0, rules: 1}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("matches at V = %v, want %v", got, want)
	}
}

func TestTreeMatcherNoEntryForLabel(t *testing.T) {
	f, err := forest.FromTree(forest.TN("S", forest.TN("x")))
	if err != nil {
		t.Fatalf("FromTree: %v", err)
	}
	trie := grammar.NewTrie()
	mustAddRule(t, trie, grammar.SN("NP", grammar.SN("x")))
	if got := collectMatches(NewTreeRuleMatcher(trie), f.Root()); len(got) != 0 {
		t.Errorf("got %v matches for an unrooted label, want none", got)
	}
}

func TestForestMatcherPackedAlternatives(t *testing.T) {
	// S has two derivation alternatives with different tail structures.
	b := forest.NewBuilder()
	a := b.AddVertex("A", 0, 0)
	bb := b.AddVertex("B", 1, 1)
	c := b.AddVertex("C", 0, 1)
	s := b.AddVertex("S", 0, 1)
	b.AddEdge(s, []*forest.Vertex{a, bb}, -0.5)
	b.AddEdge(s, []*forest.Vertex{c}, -1)
	f, err := b.Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.IsTree() {
		t.Fatalf("expected a packed forest")
	}

	trie := grammar.NewTrie()
	mustAddRule(t, trie, grammar.SN("S", grammar.SN("A"), grammar.SN("B")))
	mustAddRule(t, trie, grammar.SN("S", grammar.SN("C")))

	got := collectMatches(NewForestRuleMatcher(trie), s)
	want := []match{
		{tail: "A B", weight: -0.5, rules: 1},
		{tail: "C", weight: -1, rules: 1},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("matches = %v, want %v", got, want)
	}
}

func TestForestMatcherDeepMatchWithEpsilon(t *testing.T) {
	// NP is packed: two alternatives whose tails carry the same labels but
	// different vertices and weights. A rule reaching below NP must match
	// once per alternative; V rides along as an epsilon group.
	b := forest.NewBuilder()
	dt1 := b.AddVertex("DT", 0, 0)
	nn1 := b.AddVertex("NN", 1, 1)
	dt2 := b.AddVertex("DT", 0, 0)
	nn2 := b.AddVertex("NN", 1, 1)
	np := b.AddVertex("NP", 0, 1)
	v := b.AddVertex("V", 2, 2)
	s := b.AddVertex("S", 0, 2)
	b.AddEdge(np, []*forest.Vertex{dt1, nn1}, -0.25)
	b.AddEdge(np, []*forest.Vertex{dt2, nn2}, -0.75)
	b.AddEdge(s, []*forest.Vertex{np, v}, 0)
	f, err := b.Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.IsTree() {
		t.Fatalf("expected a packed forest")
	}

	trie := grammar.NewTrie()
	mustAddRule(t, trie, grammar.SN("S",
		grammar.SN("NP", grammar.SN("DT"), grammar.SN("NN")),
		grammar.SN("V"),
	))
	mustAddRule(t, trie, grammar.SN("S", grammar.SN("NP"), grammar.SN("V")))

	got := collectMatches(NewForestRuleMatcher(trie), s)
	want := []match{
		{tail: "DT NN V", weight: -0.75, rules: 1},
		{tail: "DT NN V", weight: -0.25, rules: 1},
		{tail: "NP V", weight: 0, rules: 1},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("matches = %v, want %v", got, want)
	}
}

func TestMatchChildren(t *testing.T) {
	b := forest.NewBuilder()
	tail := []*forest.Vertex{b.AddVertex("A", 0, 0), b.AddVertex("B", 1, 1)}
	seq := grammar.NodeSeq{grammar.Sym("A"), grammar.Sym("B")}
	if !matchChildren(tail, seq, 0, 2) {
		t.Errorf("matchChildren rejected an exact match")
	}
	if matchChildren(tail, seq, 0, 1) {
		t.Errorf("matchChildren accepted a length mismatch")
	}
	if matchChildren(tail, grammar.NodeSeq{grammar.Sym("A"), grammar.Sym("X")}, 0, 2) {
		t.Errorf("matchChildren accepted a label mismatch")
	}
}
