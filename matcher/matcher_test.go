package matcher

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/matchgo/pairs"
	"github.com/hupe1980/matchgo/progress"
	"github.com/hupe1980/matchgo/putative"
	"github.com/hupe1980/matchgo/regions"
	"github.com/hupe1980/matchgo/scene"
)

// memProvider serves fixed in-memory regions, bypassing the file layer.
type memProvider struct {
	kind  regions.Kind
	dim   int
	views map[uint32]*regions.Regions
}

func (p *memProvider) Load(ctx context.Context, sc *scene.Scene, notify progress.Notifier) error {
	return nil
}

func (p *memProvider) Get(ctx context.Context, viewID uint32) (*regions.Regions, error) {
	r, ok := p.views[viewID]
	if !ok {
		return nil, regions.ErrUnknownView
	}

	return r, nil
}

func (p *memProvider) Kind() regions.Kind { return p.kind }
func (p *memProvider) Dimension() int     { return p.dim }

func newScalarProvider(dim int, views map[uint32][][]float32) *memProvider {
	p := &memProvider{kind: regions.KindScalar, dim: dim, views: make(map[uint32]*regions.Regions, len(views))}

	for id, descs := range views {
		p.views[id] = &regions.Regions{
			Kind:      regions.KindScalar,
			Dimension: dim,
			Features:  make([]regions.PointFeature, len(descs)),
			Scalar:    descs,
		}
	}

	return p
}

func newBinaryProvider(dim int, views map[uint32][][]byte) *memProvider {
	p := &memProvider{kind: regions.KindBinary, dim: dim, views: make(map[uint32]*regions.Regions, len(views))}

	for id, descs := range views {
		p.views[id] = &regions.Regions{
			Kind:      regions.KindBinary,
			Dimension: dim,
			Features:  make([]regions.PointFeature, len(descs)),
			Binary:    descs,
		}
	}

	return p
}

// clusteredViews plants the same landmarks in every view with small noise,
// so corresponding descriptor indices are mutual nearest neighbors.
func clusteredViews(tb testing.TB, viewCount, landmarks, dim int, seed int64) map[uint32][][]float32 {
	tb.Helper()

	rng := rand.New(rand.NewSource(seed))

	base := make([][]float32, landmarks)
	for l := range base {
		d := make([]float32, dim)
		for j := range d {
			d[j] = rng.Float32()
		}

		base[l] = d
	}

	views := make(map[uint32][][]float32, viewCount)

	for v := 0; v < viewCount; v++ {
		descs := make([][]float32, landmarks)
		for l, b := range base {
			d := make([]float32, dim)
			for j := range d {
				d[j] = b[j] + 0.01*rng.Float32()
			}

			descs[l] = d
		}

		views[uint32(v)] = descs
	}

	return views
}

func randomBinaryViews(tb testing.TB, viewCount, perView, dim int, seed int64) map[uint32][][]byte {
	tb.Helper()

	rng := rand.New(rand.NewSource(seed))

	views := make(map[uint32][][]byte, viewCount)

	for v := 0; v < viewCount; v++ {
		descs := make([][]byte, perView)
		for i := range descs {
			d := make([]byte, dim)
			rng.Read(d)

			descs[i] = d
		}

		views[uint32(v)] = descs
	}

	return views
}

func mustMatcher(t *testing.T, method Method, optFns ...func(o *Options)) *Matcher {
	t.Helper()

	m, err := New(method, optFns...)
	require.NoError(t, err)

	return m
}

// assertTableInvariants checks the structural guarantees every backend must
// honor: one entry per evaluated pair, ascending query indices, unique
// target indices, and indices inside the views' descriptor ranges.
func assertTableInvariants(t *testing.T, p *memProvider, set pairs.Set, table putative.Matches) {
	t.Helper()

	require.Len(t, table, set.Len())

	for pr, ms := range table {
		require.True(t, set.Contains(pr), "pair (%d, %d) was never requested", pr.I, pr.J)

		queryLen := p.views[pr.I].Len()
		targetLen := p.views[pr.J].Len()
		assert.LessOrEqual(t, len(ms), min(queryLen, targetLen))

		seen := make(map[uint32]bool, len(ms))
		lastQuery := -1

		for _, match := range ms {
			assert.Greater(t, int(match.I), lastQuery, "query indices must ascend")
			lastQuery = int(match.I)

			assert.Less(t, int(match.I), queryLen)
			assert.Less(t, int(match.J), targetLen)

			assert.False(t, seen[match.J], "target index %d claimed twice", match.J)
			seen[match.J] = true
		}
	}
}

func TestNewValidation(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		m, err := New(MethodAuto)
		require.NoError(t, err)
		assert.Equal(t, 0.8, m.opts.Ratio)
		assert.Greater(t, m.opts.Workers, 0)
	})

	t.Run("RatioOutOfRange", func(t *testing.T) {
		for _, ratio := range []float64{0, -0.5, 1.01} {
			_, err := New(MethodExactL2, func(o *Options) { o.Ratio = ratio })
			assert.ErrorIs(t, err, ErrInvalidRatio, "ratio %v", ratio)
		}
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		_, err := New(Method(99))
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})

	t.Run("WorkersNormalized", func(t *testing.T) {
		m, err := New(MethodExactL2, func(o *Options) { o.Workers = -3 })
		require.NoError(t, err)
		assert.Greater(t, m.opts.Workers, 0)
	})
}

func TestMatchRatioBoundary(t *testing.T) {
	// Nearest at squared distance 1, second nearest at 4: with ratio 0.5 the
	// test is 1 < 0.25*4, which must fail because the comparison is strict.
	provider := newScalarProvider(2, map[uint32][][]float32{
		0: {{0, 0}},
		1: {{1, 0}, {2, 0}},
	})

	m := mustMatcher(t, MethodExactL2, func(o *Options) { o.Ratio = 0.5 })

	table, err := m.Match(context.Background(), provider, pairs.NewSet(pairs.New(0, 1)), nil)
	require.NoError(t, err)

	assert.Empty(t, table[pairs.New(0, 1)])
}

func TestMatchRatioIsSquaredForL2(t *testing.T) {
	// Second nearest fixed at squared distance 2.25. A nearest at 1.6 sits
	// between ratio*2.25 = 1.8 and ratio^2*2.25 = 1.44, so it only survives
	// if the squared distances were compared against the plain ratio.
	t.Run("Rejected", func(t *testing.T) {
		provider := newScalarProvider(2, map[uint32][][]float32{
			0: {{0, 0}},
			1: {{1.2, 0.4}, {1.5, 0}},
		})

		m := mustMatcher(t, MethodExactL2)

		table, err := m.Match(context.Background(), provider, pairs.NewSet(pairs.New(0, 1)), nil)
		require.NoError(t, err)
		assert.Empty(t, table[pairs.New(0, 1)])
	})

	t.Run("Accepted", func(t *testing.T) {
		provider := newScalarProvider(2, map[uint32][][]float32{
			0: {{0, 0}},
			1: {{1, 0}, {1.5, 0}},
		})

		m := mustMatcher(t, MethodExactL2)

		table, err := m.Match(context.Background(), provider, pairs.NewSet(pairs.New(0, 1)), nil)
		require.NoError(t, err)
		assert.Equal(t, []putative.IndMatch{{I: 0, J: 0}}, table[pairs.New(0, 1)])
	})
}

func TestMatchHammingRatioIsPlain(t *testing.T) {
	// Hamming distances 3 and 4: the plain ratio accepts (3 < 0.8*4) where a
	// squared one would not (3 > 0.64*4).
	provider := newBinaryProvider(4, map[uint32][][]byte{
		0: {{0x00, 0x00, 0x00, 0x00}},
		1: {{0x07, 0x00, 0x00, 0x00}, {0x0F, 0x00, 0x00, 0x00}},
	})

	m := mustMatcher(t, MethodExactHamming)

	table, err := m.Match(context.Background(), provider, pairs.NewSet(pairs.New(0, 1)), nil)
	require.NoError(t, err)

	assert.Equal(t, []putative.IndMatch{{I: 0, J: 0}}, table[pairs.New(0, 1)])
}

func TestMatchThreeViews(t *testing.T) {
	provider := newScalarProvider(2, map[uint32][][]float32{
		0: {{0, 0}, {10, 0}},
		1: {{0, 0.1}, {10, 0.1}, {50, 50}},
		2: {{100, 100}, {100, -100}},
	})

	set := pairs.NewSet(pairs.New(0, 1), pairs.New(0, 2), pairs.New(1, 2))
	m := mustMatcher(t, MethodExactL2)

	table, err := m.Match(context.Background(), provider, set, nil)
	require.NoError(t, err)

	expected := putative.Matches{
		pairs.New(0, 1): {{I: 0, J: 0}, {I: 1, J: 1}},
		pairs.New(0, 2): {},
		pairs.New(1, 2): {{I: 2, J: 0}},
	}
	assert.True(t, expected.Equal(table), "got %v", table)

	assertTableInvariants(t, provider, set, table)
}

func TestMatchTargetClaimedOnce(t *testing.T) {
	// Both queries prefer target 0; only the first keeps it and the later
	// query is dropped, not rerouted to its second choice.
	provider := newScalarProvider(2, map[uint32][][]float32{
		0: {{0, 0}, {0.2, 0}},
		1: {{0.1, 0}, {100, 0}},
	})

	m := mustMatcher(t, MethodExactL2)

	table, err := m.Match(context.Background(), provider, pairs.NewSet(pairs.New(0, 1)), nil)
	require.NoError(t, err)

	assert.Equal(t, []putative.IndMatch{{I: 0, J: 0}}, table[pairs.New(0, 1)])
}

func TestMatchPermutedLandmarks(t *testing.T) {
	const landmarks = 40

	rng := rand.New(rand.NewSource(7))
	perm := rng.Perm(landmarks)

	noise := func() float32 { return 0.01 * rng.Float32() }

	// Landmark l sits at x = 3l; view 1 stores landmark perm[pos] at pos.
	dim := 4
	view0 := make([][]float32, landmarks)
	view1 := make([][]float32, landmarks)

	for pos := 0; pos < landmarks; pos++ {
		view0[pos] = []float32{3 * float32(pos), noise(), noise(), noise()}
		view1[pos] = []float32{3 * float32(perm[pos]), noise(), noise(), noise()}
	}

	invPerm := make([]uint32, landmarks)
	for pos, l := range perm {
		invPerm[l] = uint32(pos)
	}

	expected := make([]putative.IndMatch, landmarks)
	for l := 0; l < landmarks; l++ {
		expected[l] = putative.IndMatch{I: uint32(l), J: invPerm[l]}
	}

	provider := newScalarProvider(dim, map[uint32][][]float32{0: view0, 1: view1})
	m := mustMatcher(t, MethodExactL2)

	table, err := m.Match(context.Background(), provider, pairs.NewSet(pairs.New(0, 1)), nil)
	require.NoError(t, err)

	assert.Equal(t, expected, table[pairs.New(0, 1)])
}

func TestMatchEmptyViews(t *testing.T) {
	provider := newScalarProvider(2, map[uint32][][]float32{
		0: {{0, 0}, {5, 5}},
		1: {},
		2: {{0, 0}, {7, 7}},
	})

	set := pairs.NewSet(pairs.New(0, 1), pairs.New(1, 2), pairs.New(0, 2))
	m := mustMatcher(t, MethodExactL2)

	table, err := m.Match(context.Background(), provider, set, nil)
	require.NoError(t, err)

	require.Len(t, table, 3)
	assert.Empty(t, table[pairs.New(0, 1)], "empty target view")
	assert.Empty(t, table[pairs.New(1, 2)], "empty query view")

	assertTableInvariants(t, provider, set, table)
}

func TestMatchKindMismatch(t *testing.T) {
	scalar := newScalarProvider(2, map[uint32][][]float32{0: {{0, 0}}, 1: {{1, 1}}})
	binary := newBinaryProvider(2, map[uint32][][]byte{0: {{1, 2}}, 1: {{3, 4}}})
	set := pairs.NewSet(pairs.New(0, 1))

	_, err := mustMatcher(t, MethodExactL2).Match(context.Background(), binary, set, nil)
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = mustMatcher(t, MethodExactHamming).Match(context.Background(), scalar, set, nil)
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestMatchUnknownView(t *testing.T) {
	provider := newScalarProvider(2, map[uint32][][]float32{0: {{0, 0}}, 1: {{1, 1}}})

	m := mustMatcher(t, MethodExactL2)

	_, err := m.Match(context.Background(), provider, pairs.NewSet(pairs.New(0, 2)), nil)
	assert.ErrorIs(t, err, regions.ErrUnknownView)
}

func TestMatchInvariantsAllMethods(t *testing.T) {
	views := clusteredViews(t, 4, 50, 8, 42)
	provider := newScalarProvider(8, views)

	set := pairs.NewSet(
		pairs.New(0, 1), pairs.New(0, 2), pairs.New(0, 3),
		pairs.New(1, 2), pairs.New(1, 3), pairs.New(2, 3),
	)

	methods := []Method{
		MethodExactL2,
		MethodApproxTreeL2,
		MethodApproxGraphL2,
		MethodCascadeHashL2,
		MethodCascadeHashPrecomputedL2,
	}

	for _, method := range methods {
		t.Run(method.String(), func(t *testing.T) {
			m := mustMatcher(t, method)

			table, err := m.Match(context.Background(), provider, set, nil)
			require.NoError(t, err)

			assertTableInvariants(t, provider, set, table)

			if method == MethodExactL2 {
				assert.Equal(t, 6*50, table.Count(), "planted landmarks must all match exactly")
			}

			// Same configuration, same table.
			again, err := mustMatcher(t, method).Match(context.Background(), provider, set, nil)
			require.NoError(t, err)
			assert.True(t, table.Equal(again))
		})
	}

	t.Run(MethodExactHamming.String(), func(t *testing.T) {
		binProvider := newBinaryProvider(16, randomBinaryViews(t, 3, 40, 16, 11))
		binSet := pairs.NewSet(pairs.New(0, 1), pairs.New(0, 2), pairs.New(1, 2))

		m := mustMatcher(t, MethodExactHamming)

		table, err := m.Match(context.Background(), binProvider, binSet, nil)
		require.NoError(t, err)

		assertTableInvariants(t, binProvider, binSet, table)
	})
}

func TestMatchAutoResolution(t *testing.T) {
	t.Run("Scalar", func(t *testing.T) {
		provider := newScalarProvider(8, clusteredViews(t, 3, 30, 8, 5))
		set := pairs.NewSet(pairs.New(0, 1), pairs.New(1, 2))

		auto, err := mustMatcher(t, MethodAuto).Match(context.Background(), provider, set, nil)
		require.NoError(t, err)

		explicit, err := mustMatcher(t, MethodCascadeHashPrecomputedL2).Match(context.Background(), provider, set, nil)
		require.NoError(t, err)

		assert.True(t, auto.Equal(explicit))
	})

	t.Run("Binary", func(t *testing.T) {
		provider := newBinaryProvider(8, randomBinaryViews(t, 2, 30, 8, 3))
		set := pairs.NewSet(pairs.New(0, 1))

		auto, err := mustMatcher(t, MethodAuto).Match(context.Background(), provider, set, nil)
		require.NoError(t, err)

		explicit, err := mustMatcher(t, MethodExactHamming).Match(context.Background(), provider, set, nil)
		require.NoError(t, err)

		assert.True(t, auto.Equal(explicit))
	})
}

func TestMatchCancelled(t *testing.T) {
	provider := newScalarProvider(2, map[uint32][][]float32{0: {{0, 0}}, 1: {{1, 1}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := mustMatcher(t, MethodExactL2)

	table, err := m.Match(ctx, provider, pairs.NewSet(pairs.New(0, 1)), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, table)
}

func TestMatchProgress(t *testing.T) {
	provider := newScalarProvider(8, clusteredViews(t, 4, 10, 8, 9))

	set := pairs.NewSet(
		pairs.New(0, 1), pairs.New(0, 2), pairs.New(0, 3),
		pairs.New(1, 2), pairs.New(1, 3), pairs.New(2, 3),
	)

	var calls, maxDone, total atomic.Uint64

	notify := progress.Func(func(done, tot uint64) {
		calls.Add(1)
		total.Store(tot)

		for {
			prev := maxDone.Load()
			if done <= prev || maxDone.CompareAndSwap(prev, done) {
				break
			}
		}
	})

	m := mustMatcher(t, MethodExactL2, func(o *Options) { o.Workers = 2 })

	_, err := m.Match(context.Background(), provider, set, notify)
	require.NoError(t, err)

	assert.Equal(t, uint64(6), calls.Load())
	assert.Equal(t, uint64(6), maxDone.Load())
	assert.Equal(t, uint64(6), total.Load())
}

func BenchmarkMatchPair(b *testing.B) {
	views := clusteredViews(b, 2, 512, 32, 1)
	provider := newScalarProvider(32, views)
	set := pairs.NewSet(pairs.New(0, 1))

	for _, method := range []Method{MethodExactL2, MethodCascadeHashPrecomputedL2} {
		b.Run(method.String(), func(b *testing.B) {
			m, err := New(method)
			if err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if _, err := m.Match(context.Background(), provider, set, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
