package search

import (
	"container/heap"
	"sort"
)

// BoundedPriorityContainer retains at most limit items, keeping the true
// top-N by priority among everything inserted. Insertion is O(log limit);
// once full, a new item evicts the current worst entry if it beats it. A
// limit of 0 or less means unbounded.
type BoundedPriorityContainer[T any] struct {
	limit   int
	entries boundedHeap[T]
}

type boundedEntry[T any] struct {
	item     T
	priority float64
}

// boundedHeap is a min-heap on priority, so the worst retained entry sits
// at the root.
type boundedHeap[T any] []boundedEntry[T]

func (h boundedHeap[T]) Len() int            { return len(h) }
func (h boundedHeap[T]) Less(i, j int) bool  { return h[i].priority < h[j].priority }
func (h boundedHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *boundedHeap[T]) Push(x any)         { *h = append(*h, x.(boundedEntry[T])) }
func (h *boundedHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// NewBoundedPriorityContainer returns an empty container with the given
// bound.
func NewBoundedPriorityContainer[T any](limit int) *BoundedPriorityContainer[T] {
	return &BoundedPriorityContainer[T]{limit: limit}
}

// Insert offers an item. It returns false if the container was full and the
// item's priority did not beat the worst retained entry.
func (c *BoundedPriorityContainer[T]) Insert(item T, priority float64) bool {
	e := boundedEntry[T]{item: item, priority: priority}
	if c.limit <= 0 || len(c.entries) < c.limit {
		heap.Push(&c.entries, e)
		return true
	}
	if priority <= c.entries[0].priority {
		return false
	}
	c.entries[0] = e
	heap.Fix(&c.entries, 0)
	return true
}

// Size returns the number of retained items.
func (c *BoundedPriorityContainer[T]) Size() int { return len(c.entries) }

// Clear empties the container, keeping its bound.
func (c *BoundedPriorityContainer[T]) Clear() { c.entries = c.entries[:0] }

// Items returns the retained items in descending priority order.
func (c *BoundedPriorityContainer[T]) Items() []T {
	tmp := make([]boundedEntry[T], len(c.entries))
	copy(tmp, c.entries)
	sort.SliceStable(tmp, func(i, j int) bool { return tmp[i].priority > tmp[j].priority })
	out := make([]T, len(tmp))
	for i, e := range tmp {
		out[i] = e.item
	}
	return out
}
