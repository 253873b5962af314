package search_test

import (
	"math"
	"testing"

	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
	"github.com/syntaxmt/forest-decoder/internal/model"
	"github.com/syntaxmt/forest-decoder/internal/search"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// addRule compiles src into a trie path, fills the estimate from the model,
// and files the rule.
func addRule(t *testing.T, trie *grammar.Trie, m *model.Linear, src *grammar.SourceNode, target *grammar.TargetPhrase, features map[string]float64) *grammar.Rule {
	t.Helper()
	if target.AlignNonTerm == nil {
		target.AlignNonTerm = make(map[int]int)
	}
	r := &grammar.Rule{Target: target, Features: features}
	r.Estimate = m.Estimate(r)
	if err := trie.AddRule(grammar.PathFromSource(src), r); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	return r
}

func words(ws ...string) []grammar.Word {
	out := make([]grammar.Word, len(ws))
	for i, w := range ws {
		out[i] = grammar.Word{Text: w}
	}
	return out
}

func nt() grammar.Word { return grammar.Word{NonTerm: true} }

// testTree is S(NP(he), VP(V(saw), NP(her))), words he saw her.
func testTree(t *testing.T) *forest.Forest {
	t.Helper()
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
	return f
}

// testGrammar builds a translation into French-like output with a reordered
// VP: he saw her -> il elle vit.
func testGrammar(t *testing.T, m *model.Linear) *grammar.Trie {
	t.Helper()
	trie := grammar.NewTrie()
	addRule(t, trie, m,
		grammar.SN("S", grammar.SN("NP"), grammar.SN("VP")),
		&grammar.TargetPhrase{
			Words:        []grammar.Word{nt(), nt()},
			AlignNonTerm: map[int]int{0: 0, 1: 1},
		},
		map[string]float64{"p": -1})
	addRule(t, trie, m,
		grammar.SN("VP", grammar.SN("V"), grammar.SN("NP")),
		&grammar.TargetPhrase{
			Words:        []grammar.Word{nt(), nt()},
			AlignNonTerm: map[int]int{0: 1, 1: 0},
		},
		map[string]float64{"p": -2})
	addRule(t, trie, m,
		grammar.SN("V", grammar.SN("saw")),
		&grammar.TargetPhrase{
			Words:     words("vit"),
			AlignTerm: []grammar.AlignPoint{{Source: 0, Target: 0}},
		},
		map[string]float64{"p": -1})
	addRule(t, trie, m,
		grammar.SN("NP", grammar.SN("he")),
		&grammar.TargetPhrase{
			Words:     words("il"),
			AlignTerm: []grammar.AlignPoint{{Source: 0, Target: 0}},
		},
		map[string]float64{"p": -1})
	addRule(t, trie, m,
		grammar.SN("NP", grammar.SN("her")),
		&grammar.TargetPhrase{
			Words:     words("elle"),
			AlignTerm: []grammar.AlignPoint{{Source: 0, Target: 0}},
		},
		map[string]float64{"p": -1})
	return trie
}

func defaultConfig() search.Config {
	return search.Config{PopLimit: 100, RuleLimit: 20, StackLimit: 50, NBestFactor: 20}
}

func TestDecodeTree(t *testing.T) {
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	mgr := search.NewManager(testTree(t), testGrammar(t, m), m, defaultConfig())
	stats, err := mgr.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if stats.Nodes != 5 {
		t.Errorf("Nodes = %d, want 5", stats.Nodes)
	}
	if stats.GlueRules != 0 {
		t.Errorf("GlueRules = %d, want 0", stats.GlueRules)
	}

	best, err := mgr.BestEdge()
	if err != nil {
		t.Fatalf("BestEdge: %v", err)
	}
	// -1 (S) + -2 (VP) + -1 (V) + -1 (NP he) + -1 (NP her)
	if !almostEqual(best.Score, -6) {
		t.Errorf("best score = %v, want -6", best.Score)
	}

	ds, err := mgr.ExtractKBest(1, false)
	if err != nil {
		t.Fatalf("ExtractKBest: %v", err)
	}
	got, err := ds[0].OutputString()
	if err != nil {
		t.Fatalf("OutputString: %v", err)
	}
	if got != "il elle vit" {
		t.Errorf("best output = %q, want %q", got, "il elle vit")
	}
	if !almostEqual(ds[0].Breakdown["p"], -6) {
		t.Errorf("breakdown p = %v, want -6", ds[0].Breakdown["p"])
	}
}

func TestDecodeGlueFallback(t *testing.T) {
	m := model.NewLinear(model.Weights{search.GlueFeature: -0.1}, 2)
	mgr := search.NewManager(testTree(t), grammar.NewTrie(), m, defaultConfig())
	stats, err := mgr.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// One glue rule per internal node.
	if stats.GlueRules != 5 {
		t.Errorf("GlueRules = %d, want 5", stats.GlueRules)
	}

	ds, err := mgr.ExtractKBest(1, false)
	if err != nil {
		t.Fatalf("ExtractKBest: %v", err)
	}
	got, err := ds[0].OutputString()
	if err != nil {
		t.Fatalf("OutputString: %v", err)
	}
	// Glue copies the source monotonically.
	if got != "he saw her" {
		t.Errorf("glue output = %q, want %q", got, "he saw her")
	}
	if !almostEqual(ds[0].Score, -0.5) {
		t.Errorf("glue score = %v, want -0.5", ds[0].Score)
	}
	if !almostEqual(ds[0].Breakdown[search.GlueFeature], 5) {
		t.Errorf("glue feature = %v, want 5", ds[0].Breakdown[search.GlueFeature])
	}
}

func TestDecodeRecombination(t *testing.T) {
	f, err := forest.FromTree(forest.TN("NP", forest.TN("he")))
	if err != nil {
		t.Fatalf("FromTree: %v", err)
	}
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	trie := grammar.NewTrie()
	// Two rules with identical surface output recombine into one vertex.
	addRule(t, trie, m,
		grammar.SN("NP", grammar.SN("he")),
		&grammar.TargetPhrase{Words: words("il")},
		map[string]float64{"p": -1})
	addRule(t, trie, m,
		grammar.SN("NP", grammar.SN("he")),
		&grammar.TargetPhrase{Words: words("il")},
		map[string]float64{"p": -2})

	mgr := search.NewManager(f, trie, m, defaultConfig())
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	stack, err := mgr.RootStack()
	if err != nil {
		t.Fatalf("RootStack: %v", err)
	}
	if len(stack) != 1 {
		t.Fatalf("root stack has %d vertices, want 1 after recombination", len(stack))
	}
	v := stack[0]
	if !almostEqual(v.Score(), -1) {
		t.Errorf("survivor score = %v, want -1", v.Score())
	}
	if len(v.Recombined) != 1 {
		t.Fatalf("survivor holds %d recombined edges, want 1", len(v.Recombined))
	}
	if !almostEqual(v.Recombined[0].Score, -2) {
		t.Errorf("recombined score = %v, want -2", v.Recombined[0].Score)
	}
	if v.Recombined[0].Head != v {
		t.Errorf("displaced edge head not re-pointed at the survivor")
	}
}

func TestDecodePopLimit(t *testing.T) {
	f, err := forest.FromTree(forest.TN("NP", forest.TN("he")))
	if err != nil {
		t.Fatalf("FromTree: %v", err)
	}
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	trie := grammar.NewTrie()
	outputs := []string{"il", "lui", "ce", "cela"}
	for i, w := range outputs {
		addRule(t, trie, m,
			grammar.SN("NP", grammar.SN("he")),
			&grammar.TargetPhrase{Words: words(w)},
			map[string]float64{"p": float64(-1 - i)})
	}

	cfg := defaultConfig()
	cfg.PopLimit = 2
	mgr := search.NewManager(f, trie, m, cfg)
	stats, err := mgr.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if stats.CubePops != 2 {
		t.Errorf("CubePops = %d, want 2", stats.CubePops)
	}
	stack, err := mgr.RootStack()
	if err != nil {
		t.Fatalf("RootStack: %v", err)
	}
	if len(stack) != 2 {
		t.Errorf("root stack has %d vertices, want 2", len(stack))
	}
	// Cube pruning pops best first; the survivors are the two best rules.
	if got, _ := mustBestOutput(t, mgr); got != "il" {
		t.Errorf("best output = %q, want %q", got, "il")
	}
}

func TestDecodeStackLimit(t *testing.T) {
	f, err := forest.FromTree(forest.TN("NP", forest.TN("he")))
	if err != nil {
		t.Fatalf("FromTree: %v", err)
	}
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	trie := grammar.NewTrie()
	for i, w := range []string{"il", "lui", "ce"} {
		addRule(t, trie, m,
			grammar.SN("NP", grammar.SN("he")),
			&grammar.TargetPhrase{Words: words(w)},
			map[string]float64{"p": float64(-1 - i)})
	}
	cfg := defaultConfig()
	cfg.StackLimit = 1
	mgr := search.NewManager(f, trie, m, cfg)
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	stack, err := mgr.RootStack()
	if err != nil {
		t.Fatalf("RootStack: %v", err)
	}
	if len(stack) != 1 {
		t.Errorf("root stack has %d vertices, want 1", len(stack))
	}
	if got, _ := mustBestOutput(t, mgr); got != "il" {
		t.Errorf("best output = %q, want %q", got, "il")
	}
}

func TestDecodePackedForest(t *testing.T) {
	// Two derivations of the same span compete through the forest weights:
	// the worse-weighted alternative carries the better rule score.
	b := forest.NewBuilder()
	a := b.AddVertex("A", 0, 0)
	bb := b.AddVertex("B", 1, 1)
	c := b.AddVertex("C", 0, 1)
	s := b.AddVertex("S", 0, 1)
	b.AddEdge(s, []*forest.Vertex{a, bb}, -3)
	b.AddEdge(s, []*forest.Vertex{c}, -1)
	f, err := b.Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m := model.NewLinear(model.Weights{"p": 1}, 2)
	trie := grammar.NewTrie()
	addRule(t, trie, m,
		grammar.SN("S", grammar.SN("A"), grammar.SN("B")),
		&grammar.TargetPhrase{Words: words("x", "y")},
		map[string]float64{"p": -0.5})
	addRule(t, trie, m,
		grammar.SN("S", grammar.SN("C")),
		&grammar.TargetPhrase{Words: words("z")},
		map[string]float64{"p": -0.5})

	mgr := search.NewManager(f, trie, m, defaultConfig())
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	best, err := mgr.BestEdge()
	if err != nil {
		t.Fatalf("BestEdge: %v", err)
	}
	// -1 (forest weight) + -0.5 beats -3 + -0.5.
	if !almostEqual(best.Score, -1.5) {
		t.Errorf("best score = %v, want -1.5", best.Score)
	}
	if got, _ := mustBestOutput(t, mgr); got != "z" {
		t.Errorf("best output = %q, want %q", got, "z")
	}
}

func TestDecodeGluePackedForest(t *testing.T) {
	// Glue rules accumulate in one trie per decode. The second N vertex's
	// [x y] alternative also matches the rule synthesized for the first N,
	// so its glue pass yields more than one bundle; that must decode, not
	// abort.
	fb := forest.NewBuilder()
	x := fb.AddVertex("x", 0, 0)
	y := fb.AddVertex("y", 1, 1)
	z := fb.AddVertex("z", 0, 1)
	n1 := fb.AddVertex("N", 0, 1)
	n2 := fb.AddVertex("N", 0, 1)
	s := fb.AddVertex("S", 0, 1)
	fb.AddEdge(n1, []*forest.Vertex{x, y}, 0)
	fb.AddEdge(n2, []*forest.Vertex{z}, 0)
	fb.AddEdge(n2, []*forest.Vertex{x, y}, 0)
	fb.AddEdge(s, []*forest.Vertex{n1}, 0)
	fb.AddEdge(s, []*forest.Vertex{n2}, 0)
	f, err := fb.Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m := model.NewLinear(model.Weights{search.GlueFeature: -0.1}, 2)
	mgr := search.NewManager(f, grammar.NewTrie(), m, defaultConfig())
	stats, err := mgr.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// One synthesized rule per internal vertex.
	if stats.GlueRules != 3 {
		t.Errorf("GlueRules = %d, want 3", stats.GlueRules)
	}
	best, err := mgr.BestEdge()
	if err != nil {
		t.Fatalf("BestEdge: %v", err)
	}
	if !almostEqual(best.Score, -0.2) {
		t.Errorf("best score = %v, want -0.2", best.Score)
	}
	stack, err := mgr.RootStack()
	if err != nil {
		t.Fatalf("RootStack: %v", err)
	}
	// Surfaces "x y" (shared by both N paths) and "z".
	if len(stack) != 2 {
		t.Errorf("root stack has %d vertices, want 2", len(stack))
	}
}

func TestDecodeLeafStacks(t *testing.T) {
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	f := testTree(t)
	mgr := search.NewManager(f, testGrammar(t, m), m, defaultConfig())
	if _, err := mgr.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, v := range f.Vertices() {
		if !v.IsTerminal() {
			continue
		}
		stack, ok := mgr.Stack(v)
		if !ok {
			t.Fatalf("no stack for terminal %q", v.Label)
		}
		if len(stack) != 1 {
			t.Fatalf("terminal %q stack has %d vertices, want 1", v.Label, len(stack))
		}
		if stack[0].Best != nil {
			t.Errorf("terminal %q has an incoming hyperedge", v.Label)
		}
		if stack[0].Score() != 0 {
			t.Errorf("terminal %q score = %v, want 0", v.Label, stack[0].Score())
		}
	}
}

func TestRecombinationOrderInvariance(t *testing.T) {
	decode := func(costs []float64) search.Stack {
		f, err := forest.FromTree(forest.TN("NP", forest.TN("he")))
		if err != nil {
			t.Fatalf("FromTree: %v", err)
		}
		m := model.NewLinear(model.Weights{"p": 1}, 2)
		trie := grammar.NewTrie()
		for _, cost := range costs {
			addRule(t, trie, m,
				grammar.SN("NP", grammar.SN("he")),
				&grammar.TargetPhrase{Words: words("il")},
				map[string]float64{"p": cost})
		}
		mgr := search.NewManager(f, trie, m, defaultConfig())
		if _, err := mgr.Decode(); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		stack, err := mgr.RootStack()
		if err != nil {
			t.Fatalf("RootStack: %v", err)
		}
		return stack
	}

	a := decode([]float64{-1, -2, -3})
	b := decode([]float64{-3, -1, -2})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("stack sizes = %d, %d, want 1, 1", len(a), len(b))
	}
	if !almostEqual(a[0].Score(), b[0].Score()) {
		t.Errorf("best scores differ: %v vs %v", a[0].Score(), b[0].Score())
	}
	if len(a[0].Recombined) != len(b[0].Recombined) {
		t.Fatalf("recombined counts differ: %d vs %d", len(a[0].Recombined), len(b[0].Recombined))
	}
	for i := range a[0].Recombined {
		if !almostEqual(a[0].Recombined[i].Score, b[0].Recombined[i].Score) {
			t.Errorf("recombined[%d] scores differ: %v vs %v", i, a[0].Recombined[i].Score, b[0].Recombined[i].Score)
		}
	}
}

func TestExtractBeforeDecode(t *testing.T) {
	m := model.NewLinear(model.Weights{"p": 1}, 2)
	mgr := search.NewManager(testTree(t), testGrammar(t, m), m, defaultConfig())
	if _, err := mgr.RootStack(); err == nil {
		t.Errorf("RootStack succeeded before Decode")
	}
}

func mustBestOutput(t *testing.T, mgr *search.Manager) (string, *search.Derivation) {
	t.Helper()
	ds, err := mgr.ExtractKBest(1, false)
	if err != nil {
		t.Fatalf("ExtractKBest: %v", err)
	}
	if len(ds) == 0 {
		t.Fatalf("ExtractKBest returned nothing")
	}
	s, err := ds[0].OutputString()
	if err != nil {
		t.Fatalf("OutputString: %v", err)
	}
	return s, ds[0]
}
