package regions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/matchgo/scene"
)

func TestNewCacheStoreValidation(t *testing.T) {
	d := Describer{Name: "sift", Kind: KindScalar, Dimension: 8}

	_, err := NewCacheStore(t.TempDir(), d, 0)
	assert.Error(t, err)

	_, err = NewCacheStore(t.TempDir(), d, -1)
	assert.Error(t, err)

	_, err = NewCacheStore(t.TempDir(), Describer{}, 2)
	assert.Error(t, err)
}

func TestCacheStoreGet(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 4)

	c, err := NewCacheStore(tmp, d, 2)
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background(), sc, nil))

	r, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 6, r.Len())

	// Second access hits the cache and returns the same value.
	again, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Same(t, r, again)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCacheStoreCapacity(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 5)

	c, err := NewCacheStore(tmp, d, 2)
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background(), sc, nil))

	for id := uint32(0); id < 5; id++ {
		_, err := c.Get(context.Background(), id)
		require.NoError(t, err)
		assert.LessOrEqual(t, c.Len(), 2)
	}

	assert.Equal(t, 2, c.Len())
}

func TestCacheStoreEvictsLeastRecentlyUsed(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 3)

	c, err := NewCacheStore(tmp, d, 2)
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background(), sc, nil))

	// Fill with 0 and 1, touch 0, then load 2: 1 must be the evictee.
	_, err = c.Get(context.Background(), 0)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 1)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 0)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 2)
	require.NoError(t, err)

	_, misses := c.Stats()
	require.Equal(t, int64(3), misses)

	// 0 is still resident; fetching it again adds no miss.
	_, err = c.Get(context.Background(), 0)
	require.NoError(t, err)

	_, misses = c.Stats()
	assert.Equal(t, int64(3), misses)

	// 1 was evicted; fetching it is a miss.
	_, err = c.Get(context.Background(), 1)
	require.NoError(t, err)

	_, misses = c.Stats()
	assert.Equal(t, int64(4), misses)
}

func TestCacheStoreMatchesStoreContent(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 4)

	full, err := NewStore(tmp, d)
	require.NoError(t, err)
	require.NoError(t, full.Load(context.Background(), sc, nil))

	cached, err := NewCacheStore(tmp, d, 1)
	require.NoError(t, err)
	require.NoError(t, cached.Load(context.Background(), sc, nil))

	for _, id := range sc.ViewIDs() {
		want, err := full.Get(context.Background(), id)
		require.NoError(t, err)

		got, err := cached.Get(context.Background(), id)
		require.NoError(t, err)

		assert.Equal(t, want, got)
	}
}

func TestCacheStoreCoalescesConcurrentLoads(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 1)

	c, err := NewCacheStore(tmp, d, 1)
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background(), sc, nil))

	const readers = 16

	var wg sync.WaitGroup

	results := make([]*Regions, readers)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := c.Get(context.Background(), 0)
			assert.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	// Every goroutine observed the same loaded value from a single read.
	for _, r := range results {
		assert.Same(t, results[0], r)
	}

	_, misses := c.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestCacheStoreUnknownView(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 1)

	c, err := NewCacheStore(tmp, d, 1)
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background(), sc, nil))

	_, err = c.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestCacheStoreLoadMissingFile(t *testing.T) {
	tmp := t.TempDir()

	d := Describer{Name: "sift", Kind: KindScalar, Dimension: 8}
	sc, err := scene.New(tmp, []scene.View{{ID: 0, Filename: "absent.jpg"}})
	require.NoError(t, err)

	c, err := NewCacheStore(tmp, d, 1)
	require.NoError(t, err)

	assert.Error(t, c.Load(context.Background(), sc, nil))
}
