package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/matchgo/pairs"
	"github.com/hupe1980/matchgo/regions"
	"github.com/hupe1980/matchgo/scene"
)

func TestBuild(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		d := Build(t)

		sc, err := scene.Load(d.ScenePath)
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions.Views, sc.Len())

		desc, err := regions.LoadDescriber(filepath.Join(d.MatchesDir, regions.DescriberFileName))
		require.NoError(t, err)
		assert.Equal(t, d.Describer, desc)

		set, err := pairs.Load(d.PairListPath, uint32(sc.Len()))
		require.NoError(t, err)
		assert.Equal(t, 3, set.Len())
	})

	t.Run("RegionsLoadable", func(t *testing.T) {
		d := Build(t)

		provider, err := regions.NewStore(d.MatchesDir, d.Describer)
		require.NoError(t, err)
		require.NoError(t, provider.Load(context.Background(), d.Scene, nil))

		for _, id := range d.Scene.ViewIDs() {
			r, err := provider.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, d.Regions[id], r)
		}
	})

	t.Run("Binary", func(t *testing.T) {
		d := Build(t, func(o *Options) {
			o.Kind = regions.KindBinary
			o.Dimension = 4
		})

		for _, r := range d.Regions {
			require.NoError(t, r.Validate())
			assert.Equal(t, regions.KindBinary, r.Kind)
			assert.Len(t, r.Binary, DefaultOptions.Landmarks)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := Build(t, func(o *Options) { o.Seed = 7 })
		b := Build(t, func(o *Options) { o.Seed = 7 })

		assert.Equal(t, a.Regions, b.Regions)
		assert.Equal(t, a.Pairs, b.Pairs)
	})
}

func TestRNG(t *testing.T) {
	t.Run("Seed", func(t *testing.T) {
		rng := NewRNG(42)
		assert.Equal(t, int64(42), rng.Seed())
	})

	t.Run("Reproducible", func(t *testing.T) {
		a, b := NewRNG(3), NewRNG(3)

		va := make([]float32, 16)
		vb := make([]float32, 16)
		a.FillUniform(va)
		b.FillUniform(vb)

		assert.Equal(t, va, vb)
	})

	t.Run("Range", func(t *testing.T) {
		rng := NewRNG(1)

		for i := 0; i < 100; i++ {
			v := rng.Float32()
			assert.GreaterOrEqual(t, v, float32(0))
			assert.Less(t, v, float32(1))

			assert.Less(t, rng.Intn(10), 10)
		}
	})
}
