package grammar

import "fmt"

// Word is one element of a target phrase: either a surface word or a
// non-terminal substitution slot.
type Word struct {
	Text    string `json:"text"`
	NonTerm bool   `json:"nonTerm,omitempty"`
}

// AlignPoint is a rule-internal alignment between a source symbol position
// and a target word position.
type AlignPoint struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// TargetPhrase is the target side of a translation rule. Source positions in
// the alignments index the rule's source frontier (the tail of a matched
// hyperedge), target positions index Words.
type TargetPhrase struct {
	Words []Word
	// AlignTerm aligns source terminals to target terminals.
	AlignTerm []AlignPoint
	// AlignNonTerm maps each non-terminal target position to the source
	// frontier position it substitutes.
	AlignNonTerm map[int]int
}

// Size returns the number of target words.
func (p *TargetPhrase) Size() int { return len(p.Words) }

// Rule is one translation rule: a target phrase plus its feature values. The
// source pattern is not stored on the rule; it is the trie path under which
// the rule is filed.
type Rule struct {
	Target   *TargetPhrase
	Features map[string]float64
	// Estimate is the precomputed upper-bound score used to prioritise rule
	// bundles before full scoring.
	Estimate float64
	// SourceArity is the size of the rule's source frontier, i.e. the
	// number of tail vertices a match binds.
	SourceArity int
	// Glue marks synthesized fallback rules.
	Glue bool
}

func (r *Rule) String() string {
	return fmt.Sprintf("rule(arity=%d est=%.4f glue=%v)", r.SourceArity, r.Estimate, r.Glue)
}

// SourceNode is a node of a rule's source-side pattern tree, used to derive
// the trie path for a rule. A node without children is a frontier element:
// a non-terminal slot or a terminal word.
type SourceNode struct {
	Label    string
	Children []*SourceNode
}

// SN is a convenience constructor for source pattern trees.
func SN(label string, children ...*SourceNode) *SourceNode {
	return &SourceNode{Label: label, Children: children}
}

// PathFromSource converts a source pattern tree into the per-level edge
// label sequence under which the rule is stored. The first level holds the
// root label alone; each following level holds one group per frontier vertex
// of the previous level: the vertex's child labels if the pattern expands
// it, or epsilon if it does not. Levels stop once every frontier vertex is
// a leaf.
func PathFromSource(root *SourceNode) []NodeSeq {
	path := []NodeSeq{{Sym(root.Label)}}
	frontier := []*SourceNode{root}
	for {
		expands := false
		for _, n := range frontier {
			if len(n.Children) > 0 {
				expands = true
				break
			}
		}
		if !expands {
			return path
		}
		var level NodeSeq
		var next []*SourceNode
		for i, n := range frontier {
			if i > 0 {
				level = append(level, Comma())
			}
			if len(n.Children) == 0 {
				level = append(level, Epsilon())
				next = append(next, n)
				continue
			}
			for _, c := range n.Children {
				level = append(level, Sym(c.Label))
				next = append(next, c)
			}
		}
		path = append(path, level)
		frontier = next
	}
}
