package search

import (
	"container/heap"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/syntaxmt/forest-decoder/pkg/errors"
)

// Derivation is one fully instantiated candidate translation: a chosen
// hyperedge plus one chosen sub-derivation per tail position. Terminals get
// a shared leaf derivation with no edge. Derivations form a DAG: the
// memoized per-vertex lists share sub-derivations by pointer and nothing is
// ever deep-copied.
type Derivation struct {
	Edge *SHyperedge
	// SubDerivations has one entry per tail position of Edge; leaf
	// positions hold leaf derivations.
	SubDerivations []*Derivation
	// backPointers records the rank of each chosen sub-derivation in its
	// vertex's k-best list.
	backPointers []int
	Score        float64
	Breakdown    FeatureVec

	// leaf is set on terminal derivations only.
	leaf *SVertex
}

// OutputWords returns the derivation's surface translation.
func (d *Derivation) OutputWords() ([]string, error) {
	if d.Edge == nil {
		return []string{d.leaf.PVertex.Label}, nil
	}
	tp := d.Edge.Rule.Target
	var words []string
	for pos, w := range tp.Words {
		if !w.NonTerm {
			words = append(words, w.Text)
			continue
		}
		srcPos, ok := tp.AlignNonTerm[pos]
		if !ok || srcPos < 0 || srcPos >= len(d.SubDerivations) {
			return nil, pkgerrors.Newf(pkgerrors.ErrInconsistentDerivation,
				"target position %d has no valid source alignment", pos)
		}
		sub, err := d.SubDerivations[srcPos].OutputWords()
		if err != nil {
			return nil, err
		}
		words = append(words, sub...)
	}
	return words, nil
}

// OutputString returns the surface translation as a single string.
func (d *Derivation) OutputString() (string, error) {
	words, err := d.OutputWords()
	if err != nil {
		return "", err
	}
	return strings.Join(words, " "), nil
}

// kVertex is the lazy k-best state of one output vertex: a candidate heap,
// the memoized ranked list grown so far, and the coordinates already
// enqueued.
type kVertex struct {
	svertex    *SVertex
	candidates derivationHeap
	seen       map[string]struct{}
	kbest      []*Derivation
	seeded     bool
}

type derivationHeap []*Derivation

func (h derivationHeap) Len() int           { return len(h) }
func (h derivationHeap) Less(i, j int) bool { return h[i].Score > h[j].Score }
func (h derivationHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *derivationHeap) Push(x any)        { *h = append(*h, x.(*Derivation)) }
func (h *derivationHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	*h = old[:n-1]
	return d
}

// KBestExtractor lazily extracts ranked derivations from a finished
// hypergraph, following Huang & Chiang's lazy k-best algorithm: expand the
// best derivation of each vertex first, and generate successors by
// advancing one sub-derivation rank at a time over the best and recombined
// incoming hyperedges. Per-vertex lists are memoized, so repeated
// extraction is cheap and sub-derivations are shared.
type KBestExtractor struct {
	vertices map[*SVertex]*kVertex
}

// NewKBestExtractor returns an extractor with an empty memo.
func NewKBestExtractor() *KBestExtractor {
	return &KBestExtractor{vertices: make(map[*SVertex]*kVertex)}
}

// Extract returns up to k derivations drawn from the whole stack, best
// first, lazily merging the per-vertex ranked streams.
func (x *KBestExtractor) Extract(stack Stack, k int) []*Derivation {
	type cursor struct {
		kv   *kVertex
		rank int
		d    *Derivation
	}
	var merge []cursor
	for _, sv := range stack {
		kv := x.vertex(sv)
		x.lazyKthBest(kv, 1)
		if len(kv.kbest) > 0 {
			merge = append(merge, cursor{kv: kv, rank: 0, d: kv.kbest[0]})
		}
	}
	var out []*Derivation
	for len(out) < k && len(merge) > 0 {
		best := 0
		for i := 1; i < len(merge); i++ {
			if merge[i].d.Score > merge[best].d.Score {
				best = i
			}
		}
		c := merge[best]
		out = append(out, c.d)
		x.lazyKthBest(c.kv, c.rank+2)
		if c.rank+1 < len(c.kv.kbest) {
			merge[best] = cursor{kv: c.kv, rank: c.rank + 1, d: c.kv.kbest[c.rank+1]}
		} else {
			merge[best] = merge[len(merge)-1]
			merge = merge[:len(merge)-1]
		}
	}
	return out
}

func (x *KBestExtractor) vertex(sv *SVertex) *kVertex {
	if kv, ok := x.vertices[sv]; ok {
		return kv
	}
	kv := &kVertex{svertex: sv, seen: make(map[string]struct{})}
	if sv.Best == nil {
		// Terminal: a single ranked entry, the leaf derivation.
		kv.kbest = []*Derivation{{leaf: sv}}
		kv.seeded = true
	}
	x.vertices[sv] = kv
	return kv
}

// lazyKthBest grows kv's ranked list to k entries if that many exist.
func (x *KBestExtractor) lazyKthBest(kv *kVertex, k int) {
	x.seedCandidates(kv)
	for len(kv.kbest) < k {
		if len(kv.kbest) > 0 {
			x.lazyNext(kv, kv.kbest[len(kv.kbest)-1])
		}
		if kv.candidates.Len() == 0 {
			return
		}
		kv.kbest = append(kv.kbest, heap.Pop(&kv.candidates).(*Derivation))
	}
}

// seedCandidates enqueues the best derivation of every incoming hyperedge.
func (x *KBestExtractor) seedCandidates(kv *kVertex) {
	if kv.seeded {
		return
	}
	kv.seeded = true
	sv := kv.svertex
	edges := make([]*SHyperedge, 0, 1+len(sv.Recombined))
	if sv.Best != nil {
		edges = append(edges, sv.Best)
	}
	edges = append(edges, sv.Recombined...)
	for _, e := range edges {
		x.pushCandidate(kv, e, make([]int, len(e.Tail)))
	}
}

// lazyNext enqueues the successors of d: one candidate per tail position,
// with that position's rank advanced by one.
func (x *KBestExtractor) lazyNext(kv *kVertex, d *Derivation) {
	if d.Edge == nil {
		return
	}
	for i := range d.backPointers {
		bp := make([]int, len(d.backPointers))
		copy(bp, d.backPointers)
		bp[i]++
		x.pushCandidate(kv, d.Edge, bp)
	}
}

// pushCandidate builds the derivation at the given coordinates if it
// exists and has not been enqueued before.
func (x *KBestExtractor) pushCandidate(kv *kVertex, e *SHyperedge, backPointers []int) {
	key := candidateKey(e, backPointers)
	if _, dup := kv.seen[key]; dup {
		return
	}
	d, ok := x.buildDerivation(e, backPointers)
	if !ok {
		return
	}
	kv.seen[key] = struct{}{}
	heap.Push(&kv.candidates, d)
}

// buildDerivation instantiates the derivation using edge e with the given
// sub-derivation ranks, extending sub-vertex lists as needed. It fails only
// when some requested rank does not exist.
func (x *KBestExtractor) buildDerivation(e *SHyperedge, backPointers []int) (*Derivation, bool) {
	subs := make([]*Derivation, len(e.Tail))
	score := e.Score
	breakdown := e.Breakdown.Clone()
	for i, tv := range e.Tail {
		sub := x.vertex(tv)
		x.lazyKthBest(sub, backPointers[i]+1)
		if backPointers[i] >= len(sub.kbest) {
			return nil, false
		}
		subs[i] = sub.kbest[backPointers[i]]
		// Replace the tail's best score with the chosen sub-derivation's.
		score += subs[i].Score - tv.Score()
		breakdown.Add(subs[i].Breakdown)
	}
	return &Derivation{
		Edge:           e,
		SubDerivations: subs,
		backPointers:   backPointers,
		Score:          score,
		Breakdown:      breakdown,
	}, true
}

func candidateKey(e *SHyperedge, backPointers []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%p", e)
	for _, bp := range backPointers {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(bp))
	}
	return b.String()
}
