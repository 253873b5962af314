package search

import (
	pkgerrors "github.com/syntaxmt/forest-decoder/pkg/errors"
)

// AlignmentPoint is an absolute (source position, target position) word
// alignment in sentence coordinates.
type AlignmentPoint struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// AlignmentSet is a set of alignment points.
type AlignmentSet map[AlignmentPoint]struct{}

// Points returns the set as a slice, in no particular order.
func (s AlignmentSet) Points() []AlignmentPoint {
	out := make([]AlignmentPoint, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// Alignment recursively reconstructs the absolute alignment point set of a
// derivation and returns it together with the total target length spanned.
// Inconsistencies between the rule and the supplied sub-derivations, and
// alignment point collisions, are internal consistency violations: the
// error aborts the whole reconstruction.
func Alignment(d *Derivation) (AlignmentSet, int, error) {
	set := make(AlignmentSet)
	if d.Edge == nil {
		return set, 0, nil
	}
	n, err := alignDerivation(set, d, 0)
	if err != nil {
		return nil, 0, err
	}
	return set, n, nil
}

func alignDerivation(ret AlignmentSet, d *Derivation, startTarget int) (int, error) {
	edge := d.Edge
	tp := edge.Rule.Target
	startSource := edge.Head.PVertex.Span.Start

	// Convert "words covered" into "rule source symbols consumed": every
	// tail child collapses its covered words into one symbol.
	sourceSize := edge.Head.PVertex.Span.NumWords()
	for _, t := range edge.Tail {
		sourceSize -= t.PVertex.Span.NumWords() - 1
	}
	if sourceSize != len(edge.Tail) || len(d.SubDerivations) != len(edge.Tail) {
		return 0, pkgerrors.Newf(pkgerrors.ErrInconsistentDerivation,
			"rule at %s consumes %d source symbols but has %d tail vertices and %d sub-derivations",
			edge.Head.PVertex, sourceSize, len(edge.Tail), len(d.SubDerivations))
	}

	// Per rule-internal position: terminals stay 0, non-terminal children
	// record the size of the spanned subtree whether or not the target
	// references them, so a dropped subtree still advances the source
	// cursor by its full width. shiftOffsets then turns the vectors into
	// absolute positions.
	sourceOffsets := make([]int, sourceSize)
	for i, tv := range edge.Tail {
		if !tv.PVertex.IsTerminal() {
			sourceOffsets[i] = tv.PVertex.Span.NumWords()
		}
	}
	targetOffsets := make([]int, tp.Size())
	totalTargetSize := 0

	for targetPos, w := range tp.Words {
		if !w.NonTerm {
			totalTargetSize++
			continue
		}
		srcPos, ok := tp.AlignNonTerm[targetPos]
		if !ok || srcPos < 0 || srcPos >= len(d.SubDerivations) {
			return 0, pkgerrors.Newf(pkgerrors.ErrInconsistentDerivation,
				"non-terminal target position %d has no valid source alignment", targetPos)
		}
		sub := d.SubDerivations[srcPos]
		if sub.Edge == nil {
			return 0, pkgerrors.Newf(pkgerrors.ErrInconsistentDerivation,
				"non-terminal source position %d is bound to a terminal", srcPos)
		}
		targetSize, err := alignDerivation(ret, sub, startTarget+totalTargetSize)
		if err != nil {
			return 0, err
		}
		targetOffsets[targetPos] = targetSize
		totalTargetSize += targetSize
	}

	shiftOffsets(sourceOffsets, startSource)
	shiftOffsets(targetOffsets, startTarget)

	for _, a := range tp.AlignTerm {
		if a.Source < 0 || a.Source >= len(sourceOffsets) || a.Target < 0 || a.Target >= len(targetOffsets) {
			return 0, pkgerrors.Newf(pkgerrors.ErrInconsistentDerivation,
				"alignment point %d-%d outside the rule", a.Source, a.Target)
		}
		p := AlignmentPoint{Source: sourceOffsets[a.Source], Target: targetOffsets[a.Target]}
		if _, dup := ret[p]; dup {
			return 0, pkgerrors.Newf(pkgerrors.ErrAlignmentConflict,
				"duplicate alignment point %d-%d", p.Source, p.Target)
		}
		ret[p] = struct{}{}
	}
	return totalTargetSize, nil
}

// shiftOffsets rewrites a vector of per-position sizes into absolute
// positions starting at shift: zero entries (terminals) take the running
// cursor and advance it by one; non-zero entries (subtrees) advance the
// cursor by their size.
func shiftOffsets(offsets []int, shift int) {
	pos := shift
	for i := range offsets {
		if offsets[i] == 0 {
			offsets[i] = pos
			pos++
		} else {
			pos += offsets[i]
			offsets[i] = pos - 1
		}
	}
}
