// Package bruteforce provides exact nearest-neighbor search by exhaustive
// scan. It is the reference backend: every other backend is measured against
// its results.
package bruteforce

import (
	"github.com/hupe1980/matchgo/distance"
	"github.com/hupe1980/matchgo/knn"
	"github.com/hupe1980/matchgo/queue"
)

var (
	_ knn.Finder       = (*L2)(nil)
	_ knn.BinaryFinder = (*Hamming)(nil)
)

// L2 finds exact nearest neighbors of scalar descriptors under squared L2.
type L2 struct {
	descs [][]float32
}

// NewL2 creates an exact finder over the given descriptor population.
// The slice is referenced, not copied, and must not be mutated afterwards.
func NewL2(descs [][]float32) *L2 {
	return &L2{descs: descs}
}

// Search returns up to k nearest neighbors, ascending by squared L2
// distance. Ties keep the smaller descriptor index.
func (f *L2) Search(query []float32, k int) []knn.Neighbor {
	if k <= 0 || len(f.descs) == 0 {
		return nil
	}

	top := queue.NewTopK(k)
	for i, d := range f.descs {
		top.Offer(uint32(i), distance.SquaredL2(query, d))
	}

	return toNeighbors(top.Sorted())
}

// Hamming finds exact nearest neighbors of binary descriptors under Hamming
// distance.
type Hamming struct {
	descs [][]byte
}

// NewHamming creates an exact finder over the given descriptor population.
// The slice is referenced, not copied, and must not be mutated afterwards.
func NewHamming(descs [][]byte) *Hamming {
	return &Hamming{descs: descs}
}

// Search returns up to k nearest neighbors, ascending by Hamming distance.
// Ties keep the smaller descriptor index.
func (f *Hamming) Search(query []byte, k int) []knn.Neighbor {
	if k <= 0 || len(f.descs) == 0 {
		return nil
	}

	top := queue.NewTopK(k)
	for i, d := range f.descs {
		top.Offer(uint32(i), distance.Hamming(query, d))
	}

	return toNeighbors(top.Sorted())
}

func toNeighbors(items []queue.Item) []knn.Neighbor {
	out := make([]knn.Neighbor, len(items))
	for i, it := range items {
		out[i] = knn.Neighbor{Index: it.Index, Distance: it.Distance}
	}

	return out
}
