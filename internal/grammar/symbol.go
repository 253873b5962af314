// Package grammar holds the sentence-independent translation grammar: target
// phrases with their alignments, weighted rules, and the rule trie that
// indexes rule source patterns level by level. A Trie is built once per
// grammar and is safe for concurrent readers; nothing in this package is
// mutated during decoding.
package grammar

import "strings"

// PathSymKind distinguishes the three kinds of elements that can appear in a
// trie edge label.
type PathSymKind uint8

const (
	// SymWord is an ordinary source symbol (a syntactic category or a
	// surface word).
	SymWord PathSymKind = iota
	// SymComma separates the child groups of consecutive frontier vertices
	// within one level of a source pattern.
	SymComma
	// SymEpsilon marks a frontier vertex that the pattern does not expand at
	// this level; the vertex is carried down to the next level unchanged.
	SymEpsilon
)

// PathSym is one element of a trie edge label.
type PathSym struct {
	Word string
	Kind PathSymKind
}

// Sym returns a word element.
func Sym(word string) PathSym { return PathSym{Word: word} }

// Comma returns the group separator element.
func Comma() PathSym { return PathSym{Kind: SymComma} }

// Epsilon returns the pass-through element.
func Epsilon() PathSym { return PathSym{Kind: SymEpsilon} }

// NodeSeq is the label of a single trie edge: one level of a rule's source
// pattern. It holds one group per frontier vertex of the previous level,
// groups separated by comma elements. A group is either the ordered child
// labels of that vertex or a single epsilon element.
type NodeSeq []PathSym

// CountCommas returns the number of comma separators in the sequence. The
// group count is always CountCommas()+1.
func (s NodeSeq) CountCommas() int {
	n := 0
	for _, e := range s {
		if e.Kind == SymComma {
			n++
		}
	}
	return n
}

// SubSeqLength returns the length of the group starting at pos, i.e. the
// number of elements before the next comma or the end of the sequence.
func (s NodeSeq) SubSeqLength(pos int) int {
	n := 0
	for i := pos; i < len(s) && s[i].Kind != SymComma; i++ {
		n++
	}
	return n
}

// Key returns a collision-free string encoding of the sequence, used as a
// map key inside trie nodes. Words are length-prefixed so that no two
// distinct sequences share an encoding.
func (s NodeSeq) Key() string {
	var b strings.Builder
	for _, e := range s {
		switch e.Kind {
		case SymComma:
			b.WriteByte(',')
		case SymEpsilon:
			b.WriteByte('*')
		default:
			b.WriteByte('w')
			b.WriteByte(byte(len(e.Word)))
			b.WriteByte(byte(len(e.Word) >> 8))
			b.WriteString(e.Word)
		}
	}
	return b.String()
}

func (s NodeSeq) String() string {
	var b strings.Builder
	for i, e := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch e.Kind {
		case SymComma:
			b.WriteByte(',')
		case SymEpsilon:
			b.WriteByte('*')
		default:
			b.WriteString(e.Word)
		}
	}
	return b.String()
}
