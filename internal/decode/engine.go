package decode

import (
	"context"
	"log/slog"
	"time"

	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
	"github.com/syntaxmt/forest-decoder/internal/model"
	"github.com/syntaxmt/forest-decoder/internal/search"
	"github.com/syntaxmt/forest-decoder/pkg/config"
	pkgerrors "github.com/syntaxmt/forest-decoder/pkg/errors"
	"github.com/syntaxmt/forest-decoder/pkg/metrics"
)

// Engine turns decode requests into n-best translations. It is stateless
// across requests; every request carries its own grammar and weights, so one
// Engine can serve concurrent requests.
type Engine struct {
	cfg     config.DecoderConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates an Engine with the given defaults. metrics may be nil.
func NewEngine(cfg config.DecoderConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "decode-engine"),
	}
}

// Decode runs the full pipeline for one request: compile the grammar, build
// the input structure, search, and extract the n-best list with alignments.
func (e *Engine) Decode(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	opts := e.resolveOptions(req.Options)

	scorer := model.NewLinear(model.Weights(req.Weights), opts.stateOrder)
	trie, err := compileGrammar(req.Rules, scorer)
	if err != nil {
		return nil, err
	}
	src, err := buildSource(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.New(pkgerrors.ErrTimeout, "decode cancelled before search")
	}

	mgr := search.NewManager(src, trie, scorer, opts.search)
	stats, err := mgr.Decode()
	if err != nil {
		return nil, err
	}
	derivations, err := mgr.ExtractKBest(opts.nBest, opts.distinct)
	if err != nil {
		return nil, err
	}

	hyps := make([]Hypothesis, 0, len(derivations))
	for _, d := range derivations {
		h, err := buildHypothesis(d)
		if err != nil {
			return nil, err
		}
		hyps = append(hyps, h)
	}

	e.recordStats(stats, len(hyps))
	elapsed := time.Since(start)
	e.logger.Debug("decode complete",
		"nodes", stats.Nodes,
		"cube_pops", stats.CubePops,
		"glue_rules", stats.GlueRules,
		"hypotheses", len(hyps),
		"duration", elapsed,
	)
	return &Result{
		Hypotheses: hyps,
		Stats: SearchStats{
			Nodes:     stats.Nodes,
			CubePops:  stats.CubePops,
			GlueRules: stats.GlueRules,
			Bundles:   stats.Bundles,
			MaxStack:  stats.MaxStack,
		},
		DurationMs: elapsed.Milliseconds(),
	}, nil
}

type resolvedOptions struct {
	search     search.Config
	nBest      int
	distinct   bool
	stateOrder int
}

func (e *Engine) resolveOptions(o Options) resolvedOptions {
	r := resolvedOptions{
		search: search.Config{
			PopLimit:    e.cfg.PopLimit,
			RuleLimit:   e.cfg.RuleLimit,
			StackLimit:  e.cfg.StackLimit,
			NBestFactor: e.cfg.NBestFactor,
		},
		nBest:      e.cfg.NBest,
		distinct:   e.cfg.DistinctNBest,
		stateOrder: e.cfg.StateOrder,
	}
	if o.PopLimit > 0 {
		r.search.PopLimit = o.PopLimit
	}
	if o.RuleLimit > 0 {
		r.search.RuleLimit = o.RuleLimit
	}
	if o.StackLimit != nil {
		r.search.StackLimit = *o.StackLimit
	}
	if o.NBestFactor > 0 {
		r.search.NBestFactor = o.NBestFactor
	}
	if o.NBest > 0 {
		r.nBest = o.NBest
	}
	if o.Distinct != nil {
		r.distinct = *o.Distinct
	}
	if o.StateOrder != nil {
		r.stateOrder = *o.StateOrder
	}
	return r
}

func validateRequest(req *Request) error {
	if req.Tree == nil && req.Forest == nil {
		return pkgerrors.New(pkgerrors.ErrInvalidInput, "request needs a tree or a forest")
	}
	if req.Tree != nil && req.Forest != nil {
		return pkgerrors.New(pkgerrors.ErrInvalidInput, "request has both a tree and a forest")
	}
	if len(req.Rules) == 0 {
		return pkgerrors.New(pkgerrors.ErrInvalidInput, "request has no rules")
	}
	return nil
}

// compileGrammar converts the wire rules into a trie, scoring estimates with
// the request's weights.
func compileGrammar(specs []RuleSpec, scorer *model.Linear) (*grammar.Trie, error) {
	trie := grammar.NewTrie()
	for i, spec := range specs {
		r, path, err := compileRule(spec)
		if err != nil {
			return nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput, "rule %d: %v", i, err)
		}
		r.Estimate = scorer.Estimate(r)
		if err := trie.AddRule(path, r); err != nil {
			return nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput, "rule %d: %v", i, err)
		}
	}
	return trie, nil
}

func compileRule(spec RuleSpec) (*grammar.Rule, []grammar.NodeSeq, error) {
	if spec.Source == nil {
		return nil, nil, pkgerrors.New(pkgerrors.ErrInvalidInput, "missing source pattern")
	}
	src := sourceFromSpec(spec.Source)
	path := grammar.PathFromSource(src)
	arity := countFrontier(src)

	target := &grammar.TargetPhrase{
		Words:        make([]grammar.Word, 0, len(spec.Target)),
		AlignNonTerm: make(map[int]int),
	}
	for t, tok := range spec.Target {
		if tok.NonTerm != nil {
			s := *tok.NonTerm
			if s < 0 || s >= arity {
				return nil, nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput,
					"target token %d references source position %d outside frontier of size %d", t, s, arity)
			}
			target.Words = append(target.Words, grammar.Word{NonTerm: true})
			target.AlignNonTerm[t] = s
			continue
		}
		target.Words = append(target.Words, grammar.Word{Text: tok.Word})
	}
	for _, pair := range spec.Align {
		s, t := pair[0], pair[1]
		if s < 0 || s >= arity || t < 0 || t >= len(target.Words) {
			return nil, nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput,
				"alignment point (%d,%d) out of range", s, t)
		}
		target.AlignTerm = append(target.AlignTerm, grammar.AlignPoint{Source: s, Target: t})
	}

	return &grammar.Rule{Target: target, Features: spec.Features}, path, nil
}

func sourceFromSpec(spec *TreeSpec) *grammar.SourceNode {
	n := &grammar.SourceNode{Label: spec.Label}
	for _, c := range spec.Children {
		n.Children = append(n.Children, sourceFromSpec(c))
	}
	return n
}

func countFrontier(n *grammar.SourceNode) int {
	if len(n.Children) == 0 {
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += countFrontier(c)
	}
	return total
}

func buildSource(req *Request) (*forest.Forest, error) {
	if req.Tree != nil {
		return forest.FromTree(treeFromSpec(req.Tree))
	}
	return forestFromSpec(req.Forest)
}

func treeFromSpec(spec *TreeSpec) *forest.TreeNode {
	n := &forest.TreeNode{Label: spec.Label}
	for _, c := range spec.Children {
		n.Children = append(n.Children, treeFromSpec(c))
	}
	return n
}

func forestFromSpec(spec *ForestSpec) (*forest.Forest, error) {
	b := forest.NewBuilder()
	byID := make(map[string]*forest.Vertex, len(spec.Vertices))
	for _, vs := range spec.Vertices {
		if vs.ID == "" {
			return nil, pkgerrors.New(pkgerrors.ErrInvalidInput, "forest vertex without id")
		}
		if _, dup := byID[vs.ID]; dup {
			return nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput, "duplicate forest vertex id %q", vs.ID)
		}
		byID[vs.ID] = b.AddVertex(vs.Label, vs.Start, vs.End)
	}
	for i, es := range spec.Edges {
		head, ok := byID[es.Head]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput, "edge %d: unknown head %q", i, es.Head)
		}
		tail := make([]*forest.Vertex, 0, len(es.Tail))
		for _, id := range es.Tail {
			v, ok := byID[id]
			if !ok {
				return nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput, "edge %d: unknown tail vertex %q", i, id)
			}
			tail = append(tail, v)
		}
		b.AddEdge(head, tail, es.Weight)
	}
	root, ok := byID[spec.Root]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput, "unknown root vertex %q", spec.Root)
	}
	f, err := b.Build(root)
	if err != nil {
		return nil, pkgerrors.Newf(pkgerrors.ErrInvalidInput, "invalid forest: %v", err)
	}
	return f, nil
}

func buildHypothesis(d *search.Derivation) (Hypothesis, error) {
	words, err := d.OutputWords()
	if err != nil {
		return Hypothesis{}, err
	}
	text, err := d.OutputString()
	if err != nil {
		return Hypothesis{}, err
	}
	align, _, err := search.Alignment(d)
	if err != nil {
		return Hypothesis{}, err
	}
	pairs := make([][2]int, 0, len(align))
	for _, p := range align.Points() {
		pairs = append(pairs, [2]int{p.Source, p.Target})
	}
	return Hypothesis{
		Text:      text,
		Words:     words,
		Score:     d.Score,
		Features:  d.Breakdown,
		Alignment: pairs,
	}, nil
}

func (e *Engine) recordStats(s search.Stats, hyps int) {
	if e.metrics == nil {
		return
	}
	e.metrics.CubePopsTotal.Add(float64(s.CubePops))
	e.metrics.GlueRulesTotal.Add(float64(s.GlueRules))
	if s.Nodes > 0 {
		e.metrics.BundlesPerNode.Observe(float64(s.Bundles) / float64(s.Nodes))
	}
	e.metrics.StackSize.Observe(float64(s.MaxStack))
	e.metrics.DerivationsReturned.Observe(float64(hyps))
}
