package search

import (
	"log/slog"

	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
	pkgerrors "github.com/syntaxmt/forest-decoder/pkg/errors"
)

// Config carries the hard resource knobs of one decode. These are the only
// throughput/quality trade-offs the core exposes; there are no deadlines.
type Config struct {
	// PopLimit caps cube-pruning pops per node.
	PopLimit int
	// RuleLimit caps the number of hyperedge bundles retained per node.
	RuleLimit int
	// StackLimit caps the output vertices retained per node; 0 is
	// unlimited.
	StackLimit int
	// NBestFactor controls oversampling in distinct k-best extraction;
	// 0 is unlimited (a large fixed factor is used instead).
	NBestFactor int
}

// Stats reports what one decode did, for logging and metrics.
type Stats struct {
	Nodes     int
	CubePops  int
	GlueRules int
	Bundles   int
	MaxStack  int
}

// Manager owns one sentence decode: it visits the input structure children
// first, matches rules at every internal vertex, prunes, cube-prunes,
// recombines into per-vertex stacks, and finally exposes the root stack for
// k-best extraction. A Manager must not be shared across sentences.
type Manager struct {
	src     *forest.Forest
	scorer  Scorer
	cfg     Config
	matcher RuleMatcher

	glueTrie    *grammar.Trie
	glueMatcher RuleMatcher
	glueSynth   *GlueRuleSynthesizer

	stacks  map[*forest.Vertex]Stack
	decoded bool
	logger  *slog.Logger
}

// NewManager builds a Manager for one sentence. The matcher flavour is
// picked from the input: tree inputs get the tree matcher, packed forests
// the forest matcher. The grammar trie may be shared read-only across
// managers; everything else is exclusive to this decode.
func NewManager(src *forest.Forest, trie *grammar.Trie, scorer Scorer, cfg Config) *Manager {
	glueTrie := grammar.NewTrie()
	var matcher, glueMatcher RuleMatcher
	if src.IsTree() {
		matcher = NewTreeRuleMatcher(trie)
		glueMatcher = NewTreeRuleMatcher(glueTrie)
	} else {
		matcher = NewForestRuleMatcher(trie)
		glueMatcher = NewForestRuleMatcher(glueTrie)
	}
	return &Manager{
		src:         src,
		scorer:      scorer,
		cfg:         cfg,
		matcher:     matcher,
		glueTrie:    glueTrie,
		glueMatcher: glueMatcher,
		glueSynth:   NewGlueRuleSynthesizer(glueTrie),
		stacks:      make(map[*forest.Vertex]Stack, len(src.Vertices())),
		logger:      slog.Default().With("component", "decode-manager"),
	}
}

// initializeStacks creates an empty stack per vertex and seeds every
// terminal with a single zero-score vertex so parents always find a
// candidate per tail position.
func (m *Manager) initializeStacks() {
	for _, v := range m.src.Vertices() {
		if v.IsTerminal() {
			m.stacks[v] = Stack{{PVertex: v, State: v.Label}}
		} else {
			m.stacks[v] = Stack{}
		}
	}
}

// Decode runs the full search for the sentence. It is not idempotent; a
// Manager decodes once.
func (m *Manager) Decode() (Stats, error) {
	var stats Stats
	m.initializeStacks()
	m.decoded = true

	collector := NewBundleCollector(m.stacks, m.cfg.RuleLimit)

	for _, node := range m.src.Vertices() {
		if node.IsTerminal() {
			continue
		}
		stats.Nodes++

		collector.Clear()
		m.matcher.EnumerateHyperedges(node, collector.Process)
		if err := collector.Err(); err != nil {
			return stats, err
		}

		// No grammar rule matched: synthesize a glue rule that is
		// guaranteed to, and rerun against the glue trie.
		if collector.Size() == 0 {
			if _, err := m.glueSynth.SynthesizeRule(node); err != nil {
				return stats, pkgerrors.Newf(pkgerrors.ErrInternal, "glue synthesis at %s: %v", node, err)
			}
			stats.GlueRules++
			m.glueMatcher.EnumerateHyperedges(node, collector.Process)
			if err := collector.Err(); err != nil {
				return stats, err
			}
			if collector.Size() == 0 {
				return stats, pkgerrors.Newf(pkgerrors.ErrInternal,
					"glue rule at %s yielded no bundle", node)
			}
			// A tree node has a single incoming edge and can only match
			// the rule just synthesized. A packed vertex may also match
			// glue rules synthesized for earlier nodes whose child labels
			// coincide with one of its alternatives; the extra bundles are
			// coverage, not a fault.
			if m.src.IsTree() && collector.Size() != 1 {
				return stats, pkgerrors.Newf(pkgerrors.ErrInternal,
					"glue rule at %s yielded %d bundles, want 1", node, collector.Size())
			}
		}
		stats.Bundles += collector.Size()

		cube := NewCubeQueue(m.scorer, collector.Bundles())
		buffer := make([]*SHyperedge, 0, m.cfg.PopLimit)
		for len(buffer) < m.cfg.PopLimit && !cube.IsEmpty() {
			edge := cube.Pop()
			edge.Head.PVertex = node
			buffer = append(buffer, edge)
		}
		stats.CubePops += len(buffer)

		stack := recombineAndSort(buffer)
		if m.cfg.StackLimit > 0 && len(stack) > m.cfg.StackLimit {
			stack = stack[:m.cfg.StackLimit]
		}
		if len(stack) > stats.MaxStack {
			stats.MaxStack = len(stack)
		}
		m.stacks[node] = stack
	}
	m.logger.Debug("decode finished",
		"nodes", stats.Nodes,
		"cube_pops", stats.CubePops,
		"glue_rules", stats.GlueRules,
		"bundles", stats.Bundles,
	)
	return stats, nil
}

// recombineAndSort merges hyperedges whose resulting state is equivalent.
// The best arrival keeps (or takes over) the surviving vertex; displaced
// heads are re-pointed at the survivor and then dropped, so a discarded
// head is never reachable again.
func recombineAndSort(buffer []*SHyperedge) Stack {
	byState := make(map[string]*SVertex, len(buffer))
	var stack Stack
	for _, h := range buffer {
		v := h.Head
		survivor, ok := byState[v.State]
		if !ok {
			byState[v.State] = v
			stack = append(stack, v)
			continue
		}
		if h.Score > survivor.Best.Score {
			survivor.Recombined = append(survivor.Recombined, survivor.Best)
			survivor.Best = h
		} else {
			survivor.Recombined = append(survivor.Recombined, h)
		}
		v.Best = nil
		h.Head = survivor
	}
	sortStack(stack)
	return stack
}

// Stack returns the finalized result stack of v.
func (m *Manager) Stack(v *forest.Vertex) (Stack, bool) {
	s, ok := m.stacks[v]
	return s, ok
}

// RootStack returns the result stack at the goal vertex, or an error if the
// decode left it missing or empty.
func (m *Manager) RootStack() (Stack, error) {
	if !m.decoded {
		return nil, pkgerrors.Newf(pkgerrors.ErrMissingStack, "decode has not run")
	}
	stack, ok := m.stacks[m.src.Root()]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.ErrMissingStack, "root vertex %s", m.src.Root())
	}
	if len(stack) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.ErrMissingStack, "root stack at %s is empty", m.src.Root())
	}
	return stack, nil
}

// BestEdge returns the best incoming hyperedge at the root, or nil for a
// bare single-terminal input.
func (m *Manager) BestEdge() (*SHyperedge, error) {
	stack, err := m.RootStack()
	if err != nil {
		return nil, err
	}
	return stack[0].Best, nil
}

// ExtractKBest extracts up to k derivations from the root stack, best
// first. In distinct mode the extractor over-generates k*NBestFactor
// derivations (k*1000 when the factor is 0) and keeps the first occurrence
// of each distinct surface output; fewer than k results is not an error.
func (m *Manager) ExtractKBest(k int, distinct bool) ([]*Derivation, error) {
	if k == 0 {
		return nil, nil
	}
	stack, err := m.RootStack()
	if err != nil {
		return nil, err
	}
	extractor := NewKBestExtractor()
	if !distinct {
		return extractor.Extract(stack, k), nil
	}
	n := k * 1000
	if m.cfg.NBestFactor > 0 {
		n = k * m.cfg.NBestFactor
	}
	big := extractor.Extract(stack, n)
	seen := make(map[string]struct{}, k)
	var out []*Derivation
	for _, d := range big {
		if len(out) == k {
			break
		}
		surface, err := d.OutputString()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[surface]; dup {
			continue
		}
		seen[surface] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}
