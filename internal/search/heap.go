package search

import (
	"container/heap"
	"sort"
)

// Hit is one ranked candidate: a point id and its score under the query's
// metric (a similarity for dot/cosine, a squared distance for l2).
type Hit struct {
	ID    uint64
	Score float32
}

// isWorse reports whether a ranks below b under the given orientation,
// with ties broken by ascending PointId (spec.md §4.5: "ties break by
// ascending PointId").
func isWorse(a, b Hit, higherIsBetter bool) bool {
	if a.Score != b.Score {
		if higherIsBetter {
			return a.Score < b.Score
		}
		return a.Score > b.Score
	}
	return a.ID > b.ID
}

// hitHeap is a container/heap.Interface whose root is always the current
// worst kept hit, so BoundedTopK can evict it in O(log k) when a better
// candidate arrives.
type hitHeap struct {
	items          []Hit
	higherIsBetter bool
}

func (h hitHeap) Len() int { return len(h.items) }
func (h hitHeap) Less(i, j int) bool {
	return isWorse(h.items[i], h.items[j], h.higherIsBetter)
}
func (h hitHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *hitHeap) Push(x interface{}) { h.items = append(h.items, x.(Hit)) }
func (h *hitHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// BoundedTopK maintains the k best hits seen so far under a metric's
// ranking orientation (spec.md §4.5's "bounded min/max-heap").
type BoundedTopK struct {
	k int
	h hitHeap
}

// NewBoundedTopK builds a heap that keeps the k best hits. higherIsBetter
// should be kernel.Metric.HigherIsBetter() for the search's metric.
func NewBoundedTopK(k int, higherIsBetter bool) *BoundedTopK {
	return &BoundedTopK{
		k: k,
		h: hitHeap{higherIsBetter: higherIsBetter},
	}
}

// Offer considers hit for inclusion in the top-k, discarding it
// immediately if it is no better than the current worst kept hit and the
// heap is already full.
func (b *BoundedTopK) Offer(hit Hit) {
	if b.k <= 0 {
		return
	}
	if len(b.h.items) < b.k {
		heap.Push(&b.h, hit)
		return
	}
	if isWorse(hit, b.h.items[0], b.h.higherIsBetter) {
		return
	}
	heap.Pop(&b.h)
	heap.Push(&b.h, hit)
}

// Sorted drains the heap into final ranked order: descending relevance
// (ascending distance for l2), ties broken by ascending PointId.
func (b *BoundedTopK) Sorted() []Hit {
	out := make([]Hit, len(b.h.items))
	copy(out, b.h.items)
	higherIsBetter := b.h.higherIsBetter
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			if higherIsBetter {
				return out[i].Score > out[j].Score
			}
			return out[i].Score < out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
