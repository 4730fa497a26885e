package bruteforce

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/matchgo/distance"
	"github.com/hupe1980/matchgo/knn"
)

func makeScalarDescs(tb testing.TB, n, dim int, seed int64) [][]float32 {
	tb.Helper()

	rng := rand.New(rand.NewSource(seed))

	descs := make([][]float32, n)
	for i := range descs {
		d := make([]float32, dim)
		for j := range d {
			d[j] = rng.Float32() * 100
		}

		descs[i] = d
	}

	return descs
}

func makeBinaryDescs(tb testing.TB, n, dim int, seed int64) [][]byte {
	tb.Helper()

	rng := rand.New(rand.NewSource(seed))

	descs := make([][]byte, n)
	for i := range descs {
		d := make([]byte, dim)
		rng.Read(d)

		descs[i] = d
	}

	return descs
}

func naiveNearest(dists []float32, k int) []knn.Neighbor {
	idx := make([]int, len(dists))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool { return dists[idx[a]] < dists[idx[b]] })

	if k > len(idx) {
		k = len(idx)
	}

	out := make([]knn.Neighbor, k)
	for i := 0; i < k; i++ {
		out[i] = knn.Neighbor{Index: uint32(idx[i]), Distance: dists[idx[i]]}
	}

	return out
}

func TestL2MatchesNaiveScan(t *testing.T) {
	descs := makeScalarDescs(t, 64, 16, 42)
	queries := makeScalarDescs(t, 8, 16, 43)

	f := NewL2(descs)

	for _, q := range queries {
		dists := make([]float32, len(descs))
		for i, d := range descs {
			dists[i] = distance.SquaredL2(q, d)
		}

		got := f.Search(q, 2)

		require.Len(t, got, 2)
		assert.Equal(t, naiveNearest(dists, 2), got)
	}
}

func TestL2SelfQueryIsNearest(t *testing.T) {
	descs := makeScalarDescs(t, 32, 8, 7)

	f := NewL2(descs)

	got := f.Search(descs[11], 1)

	require.Len(t, got, 1)
	assert.Equal(t, uint32(11), got[0].Index)
	assert.Equal(t, float32(0), got[0].Distance)
}

func TestHammingMatchesNaiveScan(t *testing.T) {
	descs := makeBinaryDescs(t, 64, 32, 42)
	queries := makeBinaryDescs(t, 8, 32, 43)

	f := NewHamming(descs)

	for _, q := range queries {
		dists := make([]float32, len(descs))
		for i, d := range descs {
			dists[i] = distance.Hamming(q, d)
		}

		got := f.Search(q, 2)

		require.Len(t, got, 2)
		assert.Equal(t, naiveNearest(dists, 2), got)
	}
}

func TestSearchTiesKeepSmallerIndex(t *testing.T) {
	descs := [][]float32{
		{4, 0},
		{1, 0}, // same distance to the query as index 2
		{1, 0},
		{9, 0},
	}

	f := NewL2(descs)

	got := f.Search([]float32{0, 0}, 2)

	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Index)
	assert.Equal(t, uint32(2), got[1].Index)
}

func TestSearchFewerDescriptorsThanK(t *testing.T) {
	descs := makeScalarDescs(t, 3, 4, 1)

	f := NewL2(descs)

	got := f.Search(descs[0], 10)

	assert.Len(t, got, 3)
}

func TestSearchEmptyAndInvalidK(t *testing.T) {
	assert.Nil(t, NewL2(nil).Search([]float32{1, 2}, 2))
	assert.Nil(t, NewL2(makeScalarDescs(t, 4, 2, 1)).Search([]float32{1, 2}, 0))
	assert.Nil(t, NewHamming(nil).Search([]byte{0xFF}, 2))
	assert.Nil(t, NewHamming(makeBinaryDescs(t, 4, 8, 1)).Search(make([]byte, 8), -1))
}
