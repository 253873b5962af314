package search

import (
	"container/heap"
	"strconv"
	"strings"
)

// CubeQueue lazily expands a set of hyperedge bundles into fully scored
// hyperedges, best first. Each bundle is seeded with its best corner (best
// rule, best ranked vertex per tail position); popping a cell pushes its
// immediate neighbours (one axis advanced by one rank), deduplicated by
// coordinate, yielding a single globally ordered stream across all bundles.
type CubeQueue struct {
	scorer Scorer
	items  cubeHeap
	seen   map[*HyperedgeBundle]map[string]struct{}
}

type cubeItem struct {
	bundle  *HyperedgeBundle
	ruleIdx int
	ranks   []int
	edge    *SHyperedge
}

type cubeHeap []*cubeItem

func (h cubeHeap) Len() int           { return len(h) }
func (h cubeHeap) Less(i, j int) bool { return h[i].edge.Score > h[j].edge.Score }
func (h cubeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cubeHeap) Push(x any)        { *h = append(*h, x.(*cubeItem)) }
func (h *cubeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// NewCubeQueue seeds a queue with the best corner of every bundle.
func NewCubeQueue(scorer Scorer, bundles []*HyperedgeBundle) *CubeQueue {
	q := &CubeQueue{
		scorer: scorer,
		seen:   make(map[*HyperedgeBundle]map[string]struct{}, len(bundles)),
	}
	for _, b := range bundles {
		q.push(b, 0, make([]int, len(b.Stacks)))
	}
	return q
}

// IsEmpty reports whether the queue is exhausted.
func (q *CubeQueue) IsEmpty() bool { return len(q.items) == 0 }

// Pop removes and returns the best remaining hyperedge, pushing the popped
// cell's neighbours first.
func (q *CubeQueue) Pop() *SHyperedge {
	it := heap.Pop(&q.items).(*cubeItem)
	q.pushNeighbours(it)
	return it.edge
}

func (q *CubeQueue) pushNeighbours(it *cubeItem) {
	if it.ruleIdx+1 < len(it.bundle.Rules) {
		q.push(it.bundle, it.ruleIdx+1, it.ranks)
	}
	for i := range it.ranks {
		if it.ranks[i]+1 < len(it.bundle.Stacks[i]) {
			ranks := make([]int, len(it.ranks))
			copy(ranks, it.ranks)
			ranks[i]++
			q.push(it.bundle, it.ruleIdx, ranks)
		}
	}
}

func (q *CubeQueue) push(b *HyperedgeBundle, ruleIdx int, ranks []int) {
	key := coordKey(ruleIdx, ranks)
	cells, ok := q.seen[b]
	if !ok {
		cells = make(map[string]struct{})
		q.seen[b] = cells
	}
	if _, dup := cells[key]; dup {
		return
	}
	cells[key] = struct{}{}
	heap.Push(&q.items, &cubeItem{
		bundle:  b,
		ruleIdx: ruleIdx,
		ranks:   ranks,
		edge:    q.makeEdge(b, ruleIdx, ranks),
	})
}

// makeEdge scores one concrete cell of a bundle and wraps it in a fresh
// head vertex. The head's input-side vertex is filled in by the manager
// once the edge is popped.
func (q *CubeQueue) makeEdge(b *HyperedgeBundle, ruleIdx int, ranks []int) *SHyperedge {
	rule := b.Rules[ruleIdx]
	tail := make([]*SVertex, len(ranks))
	for i, r := range ranks {
		tail[i] = b.Stacks[i][r]
	}
	local, breakdown := q.scorer.Score(rule, tail)
	score := b.InputWeight + local
	for _, t := range tail {
		score += t.Score()
	}
	edge := &SHyperedge{
		Tail:        tail,
		Rule:        rule,
		Score:       score,
		Breakdown:   breakdown,
		InputWeight: b.InputWeight,
	}
	edge.Head = &SVertex{
		Best:  edge,
		State: q.scorer.State(rule, tail),
	}
	return edge
}

func coordKey(ruleIdx int, ranks []int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(ruleIdx))
	for _, r := range ranks {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r))
	}
	return b.String()
}
