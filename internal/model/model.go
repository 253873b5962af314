// Package model implements the scoring side of the decoder: a linear
// feature model over rule feature values, with an optional boundary-word
// recombination state. Scoring is pure; the same rule and tail always
// produce the same score.
package model

import (
	"strings"

	"github.com/syntaxmt/forest-decoder/internal/grammar"
	"github.com/syntaxmt/forest-decoder/internal/search"
)

// Weights maps feature names to their weights.
type Weights map[string]float64

// Linear is a weighted linear model. Order controls how many boundary
// target words are kept on each side of a hypothesis as its recombination
// state; 0 disables boundary states, recombining every hypothesis at a
// node.
type Linear struct {
	weights Weights
	order   int
}

// NewLinear returns a model over the given weights.
func NewLinear(weights Weights, order int) *Linear {
	return &Linear{weights: weights, order: order}
}

// Score returns the weighted sum of the rule's feature values and the
// feature breakdown.
func (m *Linear) Score(rule *grammar.Rule, _ []*search.SVertex) (float64, search.FeatureVec) {
	breakdown := make(search.FeatureVec, len(rule.Features))
	score := 0.0
	for f, v := range rule.Features {
		breakdown[f] = v
		score += m.weights[f] * v
	}
	return score, breakdown
}

// Estimate returns the pruning-time upper bound for a rule, used to fill
// Rule.Estimate when the grammar is built. For a linear model the local
// score is exact.
func (m *Linear) Estimate(rule *grammar.Rule) float64 {
	score, _ := m.Score(rule, nil)
	return score
}

// State composes the hypothesis's boundary words from the rule's target
// side: terminals contribute themselves, non-terminals the boundary state
// of the chosen tail vertex. The result is truncated to order words per
// side.
func (m *Linear) State(rule *grammar.Rule, tail []*search.SVertex) string {
	if m.order <= 0 {
		return ""
	}
	var words []string
	for pos, w := range rule.Target.Words {
		if !w.NonTerm {
			words = append(words, w.Text)
			continue
		}
		srcPos, ok := rule.Target.AlignNonTerm[pos]
		if !ok || srcPos < 0 || srcPos >= len(tail) {
			continue
		}
		if s := tail[srcPos].State; s != "" {
			words = append(words, strings.Fields(s)...)
		}
	}
	if len(words) > 2*m.order {
		left := words[:m.order]
		right := words[len(words)-m.order:]
		words = append(append(append([]string{}, left...), "|"), right...)
	}
	return strings.Join(words, " ")
}
