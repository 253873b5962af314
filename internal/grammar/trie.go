package grammar

import (
	"fmt"
	"sort"
)

// Edge is one outgoing trie edge: a level label and the node it leads to.
type Edge struct {
	Seq   NodeSeq
	Child *Node
}

// Node is a trie node. Nodes that terminate a full source pattern carry the
// rules filed under that pattern, kept sorted by descending score estimate.
type Node struct {
	children map[string]*Node
	edges    []Edge
	rules    []*Rule
}

func newNode() *Node {
	return &Node{children: make(map[string]*Node)}
}

// Child returns the node reached by the given level label, or nil.
func (n *Node) Child(seq NodeSeq) *Node {
	return n.children[seq.Key()]
}

// Edges returns the outgoing edges in insertion order.
func (n *Node) Edges() []Edge { return n.edges }

// Rules returns the rules terminating at this node, best estimate first.
func (n *Node) Rules() []*Rule { return n.rules }

// HasRules reports whether any rule terminates at this node.
func (n *Node) HasRules() bool { return len(n.rules) > 0 }

// Trie indexes rule source patterns level by level. It is immutable once
// all rules have been added and may then be shared across concurrent
// decodes.
type Trie struct {
	root *Node
}

// NewTrie returns an empty rule trie.
func NewTrie() *Trie {
	return &Trie{root: newNode()}
}

// Root returns the trie root.
func (t *Trie) Root() *Node { return t.root }

// AddRule files a rule under the given source path (as produced by
// PathFromSource) and records the path's frontier size on the rule. It
// returns an error if the path is malformed, i.e. a level's group count
// does not match the previous frontier size.
func (t *Trie) AddRule(path []NodeSeq, r *Rule) error {
	if len(path) == 0 || len(path[0]) != 1 || path[0][0].Kind != SymWord {
		return fmt.Errorf("rule path must start with a single head label")
	}
	frontier := 1
	node := t.root
	for depth, seq := range path {
		if depth > 0 {
			groups := seq.CountCommas() + 1
			if groups != frontier {
				return fmt.Errorf("level %d has %d groups, want %d", depth, groups, frontier)
			}
			next := 0
			pos := 0
			for i := 0; i < groups; i++ {
				n := seq.SubSeqLength(pos)
				if n == 0 {
					return fmt.Errorf("level %d: empty group %d", depth, i)
				}
				if seq[pos].Kind == SymEpsilon {
					if n != 1 {
						return fmt.Errorf("level %d: epsilon group %d has extra elements", depth, i)
					}
					next++
				} else {
					next += n
				}
				pos += n + 1
			}
			frontier = next
		}
		key := seq.Key()
		child, ok := node.children[key]
		if !ok {
			child = newNode()
			node.children[key] = child
			node.edges = append(node.edges, Edge{Seq: seq, Child: child})
		}
		node = child
	}
	r.SourceArity = frontier
	node.rules = append(node.rules, r)
	sort.SliceStable(node.rules, func(i, j int) bool {
		return node.rules[i].Estimate > node.rules[j].Estimate
	})
	return nil
}
