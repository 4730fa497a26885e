// Package cascade provides cascade hashing search over scalar descriptors.
//
// Descriptors are zero-meaned and projected onto seeded Gaussian directions,
// yielding one primary hash code (dim bits, packed in uint64 words) plus one
// bucket id per bucket group. A query's candidates are the target descriptors
// sharing a bucket in any group; candidates are ranked by Hamming distance on
// the primary codes and the best few refined with exact L2 before the nearest
// neighbors are selected.
//
// Hashing a view is the expensive step. Hash once per view and reuse the
// HashedRegions on both sides of every pair sharing it; Finder searches are
// read-only and may run concurrently.
package cascade

import (
	"math/rand"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/matchgo/distance"
	"github.com/hupe1980/matchgo/knn"
	"github.com/hupe1980/matchgo/queue"
)

const (
	// BucketGroups is the number of independent bucket groups.
	BucketGroups = 6

	bucketBits      = 10
	bucketsPerGroup = 1 << bucketBits

	// topCandidates is how many Hamming-ranked candidates are refined with
	// exact L2 per query.
	topCandidates = 10
)

var _ knn.Finder = (*Finder)(nil)

// Hasher holds the Gaussian projections shared by every view of a run.
// Projections are drawn from a seeded generator, so equal seeds hash equally.
type Hasher struct {
	dim       int
	primary   [][]float32               // dim rows, one per primary code bit
	secondary [BucketGroups][][]float32 // bucketBits rows per group
}

// NewHasher creates a hasher for descriptors of the given dimensionality.
func NewHasher(dim int, seed int64) *Hasher {
	rng := rand.New(rand.NewSource(seed)) // nolint gosec

	h := &Hasher{
		dim:     dim,
		primary: gaussianRows(rng, dim, dim),
	}

	for g := range h.secondary {
		h.secondary[g] = gaussianRows(rng, bucketBits, dim)
	}

	return h
}

// Dimension returns the descriptor dimensionality the hasher projects.
func (h *Hasher) Dimension() int { return h.dim }

// HashedRegions holds one view's primary hash codes and bucket assignments.
type HashedRegions struct {
	codes    [][]uint64
	ids      [][BucketGroups]uint16
	buckets  [BucketGroups][bucketsPerGroup][]uint32
	zeroMean []float32
}

// Len returns the number of hashed descriptors.
func (hr *HashedRegions) Len() int { return len(hr.codes) }

// Hash computes codes and bucket assignments for one view's descriptors.
// The zero-mean vector must be the same for every view of a run and is
// remembered so queries against this view are centered identically.
func (h *Hasher) Hash(descs [][]float32, zeroMean []float32) *HashedRegions {
	hr := &HashedRegions{
		codes:    make([][]uint64, len(descs)),
		ids:      make([][BucketGroups]uint16, len(descs)),
		zeroMean: append([]float32(nil), zeroMean...),
	}

	centered := make([]float32, h.dim)

	for i, d := range descs {
		center(centered, d, zeroMean)

		hr.codes[i] = h.primaryCode(centered)
		hr.ids[i] = h.bucketIDs(centered)

		for g, id := range hr.ids[i] {
			hr.buckets[g][id] = append(hr.buckets[g][id], uint32(i))
		}
	}

	return hr
}

// MeanDescriptor returns the per-dimension mean of the given descriptors, or
// the zero vector when there are none. Applied twice it yields the run-wide
// zero-mean vector: once per view, then once over the per-view means.
func MeanDescriptor(dim int, descs [][]float32) []float32 {
	mean := make([]float32, dim)
	if len(descs) == 0 {
		return mean
	}

	acc := make([]float64, dim)
	for _, d := range descs {
		for j, v := range d {
			acc[j] += float64(v)
		}
	}

	n := float64(len(descs))
	for j := range mean {
		mean[j] = float32(acc[j] / n)
	}

	return mean
}

// Finder answers nearest-neighbor queries against one hashed view.
type Finder struct {
	hasher *Hasher
	target *HashedRegions
	descs  [][]float32
}

// NewFinder creates a finder over a hashed view. The descriptors must be the
// ones the view was hashed from; they back the exact L2 refinement.
func NewFinder(hasher *Hasher, target *HashedRegions, descs [][]float32) *Finder {
	return &Finder{hasher: hasher, target: target, descs: descs}
}

// Search hashes the query with the target view's zero-mean vector and returns
// up to k nearest neighbors, ascending by squared L2 distance. Unlike the
// exact backends it returns nothing when fewer than k candidates survive the
// cascade.
func (f *Finder) Search(query []float32, k int) []knn.Neighbor {
	if k <= 0 || len(f.descs) == 0 {
		return nil
	}

	centered := make([]float32, f.hasher.dim)
	center(centered, query, f.target.zeroMean)

	code := f.hasher.primaryCode(centered)
	ids := f.hasher.bucketIDs(centered)

	return f.search(query, code, ids, k)
}

// SearchHashed is Search for a query view hashed up front: it reuses the
// query's precomputed code and bucket ids instead of projecting again.
func (f *Finder) SearchHashed(hq *HashedRegions, qi int, query []float32, k int) []knn.Neighbor {
	if k <= 0 || len(f.descs) == 0 {
		return nil
	}

	return f.search(query, hq.codes[qi], hq.ids[qi], k)
}

func (f *Finder) search(query []float32, code []uint64, ids [BucketGroups]uint16, k int) []knn.Neighbor {
	// Candidates are bucket collisions over all groups. The raw count keeps
	// duplicates: a query whose collisions cannot exceed k even in the best
	// case is not worth ranking.
	raw := 0
	for g := range ids {
		raw += len(f.target.buckets[g][ids[g]])
	}

	if raw <= k {
		return nil
	}

	// Rank deduplicated candidates by Hamming distance over the primary
	// codes, bucketed so the best band is read off without a full sort.
	seen := bitset.New(uint(len(f.descs)))

	byDist := make([][]uint32, f.hasher.dim+1)

	for g := range ids {
		for _, cand := range f.target.buckets[g][ids[g]] {
			if seen.Test(uint(cand)) {
				continue
			}

			seen.Set(uint(cand))

			d := distance.Hamming64(code, f.target.codes[cand])
			byDist[d] = append(byDist[d], cand)
		}
	}

	// Refine the best-ranked candidates with exact L2.
	refined := make([]queue.Item, 0, topCandidates)

	for d := 0; d < len(byDist) && len(refined) < topCandidates; d++ {
		for _, cand := range byDist[d] {
			if len(refined) >= topCandidates {
				break
			}

			refined = append(refined, queue.Item{
				Index:    cand,
				Distance: distance.SquaredL2(query, f.descs[cand]),
			})
		}
	}

	if len(refined) < k {
		return nil
	}

	sort.Slice(refined, func(a, b int) bool {
		if refined[a].Distance != refined[b].Distance {
			return refined[a].Distance < refined[b].Distance
		}

		return refined[a].Index < refined[b].Index
	})

	out := make([]knn.Neighbor, k)
	for i := 0; i < k; i++ {
		out[i] = knn.Neighbor{Index: refined[i].Index, Distance: refined[i].Distance}
	}

	return out
}

// primaryCode projects a centered descriptor onto the primary directions and
// packs the sign bits, bit j into word j/64.
func (h *Hasher) primaryCode(centered []float32) []uint64 {
	code := make([]uint64, (h.dim+63)/64)

	for j, row := range h.primary {
		if dot(row, centered) > 0 {
			code[j/64] |= 1 << (j % 64)
		}
	}

	return code
}

// bucketIDs projects a centered descriptor onto each group's directions,
// first projection as the most significant bit.
func (h *Hasher) bucketIDs(centered []float32) [BucketGroups]uint16 {
	var ids [BucketGroups]uint16

	for g := range h.secondary {
		var id uint16

		for _, row := range h.secondary[g] {
			id <<= 1
			if dot(row, centered) > 0 {
				id |= 1
			}
		}

		ids[g] = id
	}

	return ids
}

func gaussianRows(rng *rand.Rand, rows, cols int) [][]float32 {
	out := make([][]float32, rows)
	for i := range out {
		row := make([]float32, cols)
		for j := range row {
			row[j] = float32(rng.NormFloat64())
		}

		out[i] = row
	}

	return out
}

func center(dst, desc, zeroMean []float32) {
	for j := range dst {
		dst[j] = desc[j] - zeroMean[j]
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}

	return s
}
