package search

import (
	"github.com/syntaxmt/forest-decoder/internal/forest"
	"github.com/syntaxmt/forest-decoder/internal/grammar"
)

// GlueFeature is the feature name carried by synthesized glue rules, so a
// scorer can penalise them.
const GlueFeature = "GlueRule"

// GlueRuleSynthesizer writes guaranteed-to-match fallback rules into a
// dedicated trie. It fires only for nodes where the grammar produced no
// bundle at all, making coverage total: a decode never fails for lack of a
// matching rule.
type GlueRuleSynthesizer struct {
	trie *grammar.Trie
}

// NewGlueRuleSynthesizer returns a synthesizer writing into trie.
func NewGlueRuleSynthesizer(trie *grammar.Trie) *GlueRuleSynthesizer {
	return &GlueRuleSynthesizer{trie: trie}
}

// SynthesizeRule creates and files exactly one pass-through rule for v,
// built from its first incoming edge: children are concatenated in source
// order, terminals copied through, non-terminals substituted monotonically.
// For packed vertices the remaining alternatives are not covered; the
// first edge is enough to guarantee a match.
func (g *GlueRuleSynthesizer) SynthesizeRule(v *forest.Vertex) (*grammar.Rule, error) {
	in := v.Incoming[0]
	seq := grammar.NodeSeq{}
	tp := &grammar.TargetPhrase{AlignNonTerm: make(map[int]int)}
	for i, c := range in.Tail {
		seq = append(seq, grammar.Sym(c.Label))
		if c.IsTerminal() {
			tp.Words = append(tp.Words, grammar.Word{Text: c.Label})
			tp.AlignTerm = append(tp.AlignTerm, grammar.AlignPoint{Source: i, Target: i})
		} else {
			tp.Words = append(tp.Words, grammar.Word{Text: c.Label, NonTerm: true})
			tp.AlignNonTerm[i] = i
		}
	}
	rule := &grammar.Rule{
		Target:   tp,
		Features: map[string]float64{GlueFeature: 1},
		Glue:     true,
	}
	path := []grammar.NodeSeq{{grammar.Sym(v.Label)}, seq}
	if err := g.trie.AddRule(path, rule); err != nil {
		return nil, err
	}
	return rule, nil
}
