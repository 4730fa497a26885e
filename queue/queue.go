// Package queue provides the priority queues used by the search backends.
//
// Min orders by ascending distance (candidate frontiers), Max by descending
// distance (result sets, where the worst entry is evicted first). TopK keeps
// the k nearest items seen during a scan. Equal distances are broken by
// descriptor index so results are reproducible across runs.
package queue

import (
	"container/heap"
	"math"
)

// Item is a queue entry: a descriptor index and its distance to the query.
type Item struct {
	Index    uint32
	Distance float32
}

type minSlice []Item

func (s minSlice) Len() int { return len(s) }

func (s minSlice) Less(i, j int) bool {
	if s[i].Distance != s[j].Distance {
		return s[i].Distance < s[j].Distance
	}

	return s[i].Index < s[j].Index
}

func (s minSlice) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *minSlice) Push(x any) { *s = append(*s, x.(Item)) }

func (s *minSlice) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	*s = old[:n-1]

	return it
}

type maxSlice []Item

func (s maxSlice) Len() int { return len(s) }

func (s maxSlice) Less(i, j int) bool {
	if s[i].Distance != s[j].Distance {
		return s[i].Distance > s[j].Distance
	}

	return s[i].Index > s[j].Index
}

func (s maxSlice) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *maxSlice) Push(x any) { *s = append(*s, x.(Item)) }

func (s *maxSlice) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	*s = old[:n-1]

	return it
}

// Min is a minimum priority queue: Pop returns the closest item.
type Min struct {
	s minSlice
}

// NewMin creates a minimum priority queue with the given initial capacity.
func NewMin(capacity int) *Min {
	q := &Min{}
	if capacity > 0 {
		q.s = make(minSlice, 0, capacity)
	}

	return q
}

// Len returns the number of queued items.
func (q *Min) Len() int { return len(q.s) }

// Push adds an item to the queue.
func (q *Min) Push(it Item) { heap.Push(&q.s, it) }

// Pop removes and returns the item with the smallest distance.
func (q *Min) Pop() Item { return heap.Pop(&q.s).(Item) }

// Top returns the item with the smallest distance without removing it.
// The queue must not be empty.
func (q *Min) Top() Item { return q.s[0] }

// Max is a maximum priority queue: Pop returns the furthest item.
type Max struct {
	s maxSlice
}

// NewMax creates a maximum priority queue with the given initial capacity.
func NewMax(capacity int) *Max {
	q := &Max{}
	if capacity > 0 {
		q.s = make(maxSlice, 0, capacity)
	}

	return q
}

// Len returns the number of queued items.
func (q *Max) Len() int { return len(q.s) }

// Push adds an item to the queue.
func (q *Max) Push(it Item) { heap.Push(&q.s, it) }

// Pop removes and returns the item with the largest distance.
func (q *Max) Pop() Item { return heap.Pop(&q.s).(Item) }

// Top returns the item with the largest distance without removing it.
// The queue must not be empty.
func (q *Max) Top() Item { return q.s[0] }

// Sorted drains the queue and returns all items ordered by ascending distance.
func (q *Max) Sorted() []Item {
	out := make([]Item, q.Len())
	for i := q.Len() - 1; i >= 0; i-- {
		out[i] = q.Pop()
	}

	return out
}

// TopK collects the k items with the smallest distances seen during a scan.
// Ties at the acceptance threshold keep the item offered first.
type TopK struct {
	k int
	q Max
}

// NewTopK creates a collector for the k nearest items.
func NewTopK(k int) *TopK {
	return &TopK{
		k: k,
		q: Max{s: make(maxSlice, 0, k)},
	}
}

// Offer considers an item for the result set.
func (t *TopK) Offer(index uint32, dist float32) {
	if t.q.Len() < t.k {
		t.q.Push(Item{Index: index, Distance: dist})
		return
	}

	if dist < t.q.Top().Distance {
		t.q.Pop()
		t.q.Push(Item{Index: index, Distance: dist})
	}
}

// Len returns the number of collected items.
func (t *TopK) Len() int { return t.q.Len() }

// Threshold returns the distance an item must beat to enter a full collector,
// or +Inf while the collector still has room.
func (t *TopK) Threshold() float32 {
	if t.q.Len() < t.k {
		return float32(math.Inf(1))
	}

	return t.q.Top().Distance
}

// Sorted drains the collector and returns the items ordered by ascending
// distance.
func (t *TopK) Sorted() []Item { return t.q.Sorted() }
