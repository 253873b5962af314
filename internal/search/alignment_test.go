package search_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
	"github.com/syntaxmt/forest-decoder/internal/model"
	"github.com/syntaxmt/forest-decoder/internal/search"
	pkgerrors "github.com/syntaxmt/forest-decoder/pkg/errors"
)

func sortedPoints(s search.AlignmentSet) []search.AlignmentPoint {
	pts := s.Points()
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Source != pts[j].Source {
			return pts[i].Source < pts[j].Source
		}
		return pts[i].Target < pts[j].Target
	})
	return pts
}

func TestAlignmentReordered(t *testing.T) {
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	mgr := search.NewManager(testTree(t), testGrammar(t, m), m, defaultConfig())
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, d := mustBestOutput(t, mgr)

	set, targetLen, err := search.Alignment(d)
	if err != nil {
		t.Fatalf("Alignment: %v", err)
	}
	if targetLen != 3 {
		t.Errorf("target length = %d, want 3", targetLen)
	}
	// he saw her -> il elle vit: the VP swaps its children.
	want := []search.AlignmentPoint{
		{Source: 0, Target: 0},
		{Source: 1, Target: 2},
		{Source: 2, Target: 1},
	}
	got := sortedPoints(set)
	if len(got) != len(want) {
		t.Fatalf("got %d points %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAlignmentGlueIdentity(t *testing.T) {
	m := model.NewLinear(model.Weights{}, 2)
	mgr := search.NewManager(testTree(t), grammar.NewTrie(), m, defaultConfig())
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, d := mustBestOutput(t, mgr)

	set, targetLen, err := search.Alignment(d)
	if err != nil {
		t.Fatalf("Alignment: %v", err)
	}
	if targetLen != 3 {
		t.Errorf("target length = %d, want 3", targetLen)
	}
	got := sortedPoints(set)
	for i, p := range got {
		if p.Source != i || p.Target != i {
			t.Errorf("point %d = %v, want identity", i, p)
		}
	}
	if len(got) != 3 {
		t.Errorf("got %d points, want 3", len(got))
	}
}

func TestAlignmentDroppedSubtree(t *testing.T) {
	// S(A(u,v), b): the rule deletes the two-word A subtree from the
	// target, so the terminal b (source word 2) must still land at its
	// absolute position.
	f, err := forest.FromTree(forest.TN("S",
		forest.TN("A", forest.TN("u"), forest.TN("v")),
		forest.TN("b"),
	))
	if err != nil {
		t.Fatalf("FromTree: %v", err)
	}
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	trie := grammar.NewTrie()
	addRule(t, trie, m,
		grammar.SN("S", grammar.SN("A"), grammar.SN("b")),
		&grammar.TargetPhrase{
			Words:     words("B"),
			AlignTerm: []grammar.AlignPoint{{Source: 1, Target: 0}},
		},
		map[string]float64{"p": -1})
	addRule(t, trie, m,
		grammar.SN("A", grammar.SN("u"), grammar.SN("v")),
		&grammar.TargetPhrase{Words: words("uv")},
		map[string]float64{"p": -1})

	mgr := search.NewManager(f, trie, m, defaultConfig())
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, d := mustBestOutput(t, mgr)

	set, targetLen, err := search.Alignment(d)
	if err != nil {
		t.Fatalf("Alignment: %v", err)
	}
	if targetLen != 1 {
		t.Errorf("target length = %d, want 1", targetLen)
	}
	got := sortedPoints(set)
	want := []search.AlignmentPoint{{Source: 2, Target: 0}}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("points = %v, want %v", got, want)
	}
}

func TestAlignmentLeafDerivation(t *testing.T) {
	set, targetLen, err := search.Alignment(&search.Derivation{})
	if err != nil {
		t.Fatalf("Alignment: %v", err)
	}
	if len(set) != 0 || targetLen != 0 {
		t.Errorf("leaf alignment = %v/%d, want empty/0", set, targetLen)
	}
}

func TestAlignmentConflict(t *testing.T) {
	f := singleNodeTree(t)
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	trie := grammar.NewTrie()
	addRule(t, trie, m,
		grammar.SN("NP", grammar.SN("he")),
		&grammar.TargetPhrase{
			Words: words("il"),
			AlignTerm: []grammar.AlignPoint{
				{Source: 0, Target: 0},
				{Source: 0, Target: 0},
			},
		},
		map[string]float64{"p": -1})

	mgr := search.NewManager(f, trie, m, defaultConfig())
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, d := mustBestOutput(t, mgr)

	_, _, err := search.Alignment(d)
	if !errors.Is(err, pkgerrors.ErrAlignmentConflict) {
		t.Errorf("Alignment error = %v, want ErrAlignmentConflict", err)
	}
}

func TestAlignmentInconsistentDerivation(t *testing.T) {
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	mgr := search.NewManager(testTree(t), testGrammar(t, m), m, defaultConfig())
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, d := mustBestOutput(t, mgr)

	// Drop one sub-derivation so the rule no longer matches the structure.
	d.SubDerivations = d.SubDerivations[:1]
	_, _, err := search.Alignment(d)
	if !errors.Is(err, pkgerrors.ErrInconsistentDerivation) {
		t.Errorf("Alignment error = %v, want ErrInconsistentDerivation", err)
	}
}

func singleNodeTree(t *testing.T) *forest.Forest {
	t.Helper()
	f, err := forest.FromTree(forest.TN("NP", forest.TN("he")))
	if err != nil {
		t.Fatalf("FromTree: %v", err)
	}
	return f
}
