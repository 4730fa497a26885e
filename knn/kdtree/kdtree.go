// Package kdtree provides approximate nearest-neighbor search over scalar
// descriptors with a kd-tree.
//
// The tree splits on the highest-variance dimension at the median, so
// construction is fully deterministic. Search is best-first: subtrees are
// visited in order of a lower bound built from the accumulated squared
// deviations against the split planes crossed so far, and the number of
// visited leaves is bounded. The tree is read-only after construction, so
// searches may run concurrently.
package kdtree

import (
	"sort"

	"github.com/hupe1980/matchgo/distance"
	"github.com/hupe1980/matchgo/knn"
	"github.com/hupe1980/matchgo/queue"
)

// Options represents the options for configuring the tree.
type Options struct {
	// LeafSize is the maximum number of descriptors per leaf.
	LeafSize int

	// MaxLeaves bounds the number of leaves visited per search. Larger
	// values improve recall at the cost of search time. Values <= 0 remove
	// the bound.
	MaxLeaves int
}

// DefaultOptions holds the defaults used by New.
var DefaultOptions = Options{
	LeafSize:  16,
	MaxLeaves: 256,
}

var _ knn.Finder = (*Tree)(nil)

// A node is either a split (axis >= 0, children in left/right) or a leaf
// (axis == -1, left/right hold the [start,end) run into the order slice).
type node struct {
	axis  int32
	split float32
	left  int32
	right int32
}

// Tree is a kd-tree over a fixed descriptor population.
type Tree struct {
	descs [][]float32
	nodes []node
	order []uint32 // descriptor indices, permuted so every leaf owns a contiguous run
	opts  Options
}

// New builds a tree over the given descriptors. The descriptor slices are
// referenced, not copied, and must not be mutated afterwards.
func New(descs [][]float32, optFns ...func(o *Options)) *Tree {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.LeafSize < 1 {
		opts.LeafSize = 1
	}

	t := &Tree{descs: descs, opts: opts}
	if len(descs) == 0 {
		return t
	}

	t.order = make([]uint32, len(descs))
	for i := range t.order {
		t.order[i] = uint32(i)
	}

	t.build(0, len(descs))

	return t
}

// Len returns the number of indexed descriptors.
func (t *Tree) Len() int { return len(t.descs) }

// Search returns up to k approximate nearest neighbors, ascending by squared
// L2 distance.
func (t *Tree) Search(query []float32, k int) []knn.Neighbor {
	if k <= 0 || len(t.descs) == 0 {
		return nil
	}

	top := queue.NewTopK(k)

	// Frontier of subtrees keyed by their distance lower bound.
	frontier := queue.NewMin(64)
	frontier.Push(queue.Item{Index: 0, Distance: 0})

	leaves := 0

	for frontier.Len() > 0 {
		c := frontier.Pop()
		if c.Distance >= top.Threshold() {
			break
		}

		n := t.nodes[c.Index]

		if n.axis < 0 {
			for _, idx := range t.order[n.left:n.right] {
				top.Offer(idx, distance.SquaredL2(query, t.descs[idx]))
			}

			leaves++
			if t.opts.MaxLeaves > 0 && leaves >= t.opts.MaxLeaves {
				break
			}

			continue
		}

		diff := query[n.axis] - n.split

		near, far := n.left, n.right
		if diff >= 0 {
			near, far = far, near
		}

		frontier.Push(queue.Item{Index: uint32(near), Distance: c.Distance})
		frontier.Push(queue.Item{Index: uint32(far), Distance: c.Distance + diff*diff})
	}

	items := top.Sorted()

	out := make([]knn.Neighbor, len(items))
	for i, it := range items {
		out[i] = knn.Neighbor{Index: it.Index, Distance: it.Distance}
	}

	return out
}

// build creates the subtree over order[start:end) and returns its node id.
func (t *Tree) build(start, end int) int32 {
	id := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{})

	if end-start <= t.opts.LeafSize {
		t.nodes[id] = node{axis: -1, left: int32(start), right: int32(end)}
		return id
	}

	axis := t.widestAxis(start, end)
	t.sortByAxis(start, end, axis)

	mid := (start + end) / 2
	split := t.descs[t.order[mid]][axis]

	left := t.build(start, mid)
	right := t.build(mid, end)

	t.nodes[id] = node{axis: int32(axis), split: split, left: left, right: right}

	return id
}

// widestAxis returns the dimension with the largest variance over
// order[start:end).
func (t *Tree) widestAxis(start, end int) int {
	dim := len(t.descs[t.order[start]])
	n := float64(end - start)

	mean := make([]float64, dim)
	for _, idx := range t.order[start:end] {
		for j, v := range t.descs[idx] {
			mean[j] += float64(v)
		}
	}

	for j := range mean {
		mean[j] /= n
	}

	axis, widest := 0, -1.0

	spread := make([]float64, dim)
	for _, idx := range t.order[start:end] {
		for j, v := range t.descs[idx] {
			d := float64(v) - mean[j]
			spread[j] += d * d
		}
	}

	for j, v := range spread {
		if v > widest {
			axis, widest = j, v
		}
	}

	return axis
}

// sortByAxis orders order[start:end) by the descriptor value on the given
// axis, ties broken by descriptor index so builds are reproducible.
func (t *Tree) sortByAxis(start, end, axis int) {
	sub := t.order[start:end]

	sort.Slice(sub, func(a, b int) bool {
		va, vb := t.descs[sub[a]][axis], t.descs[sub[b]][axis]
		if va != vb {
			return va < vb
		}

		return sub[a] < sub[b]
	})
}
