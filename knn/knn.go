// Package knn defines the nearest-neighbor finder contract shared by the
// matching backends.
//
// A Finder is built once per target view over that view's descriptor
// population and answers k-nearest-neighbor queries against it. The matcher
// asks every finder for the two nearest neighbors of each query descriptor
// and applies the distance-ratio test to the result. Builders for the
// concrete backends live in the subpackages bruteforce, hnsw, kdtree and
// cascade.
package knn

// Neighbor is one answer of a nearest-neighbor query: the index of a
// descriptor in the target view and its distance to the query. Scalar
// backends report squared L2 distances, binary backends Hamming distances.
type Neighbor struct {
	Index    uint32
	Distance float32
}

// Finder answers k-nearest-neighbor queries over one view's scalar
// descriptors. Implementations are immutable after construction and safe
// for concurrent Search calls.
type Finder interface {
	// Search returns up to k nearest neighbors of query, ascending by
	// distance. Fewer than k neighbors are returned when the population
	// is smaller than k or the backend cannot produce k candidates.
	Search(query []float32, k int) []Neighbor
}

// BinaryFinder is the Finder counterpart for binary descriptors.
type BinaryFinder interface {
	Search(query []byte, k int) []Neighbor
}
