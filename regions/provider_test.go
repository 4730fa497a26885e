package regions

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/matchgo/progress"
	"github.com/hupe1980/matchgo/scene"
)

// writeDataset writes a describer plus region files for n views into dir and
// returns the catalog. View v gets 5+v regions so sizes are distinguishable.
func writeDataset(tb testing.TB, dir string, n int) (*scene.Scene, Describer) {
	tb.Helper()

	d := Describer{Name: "sift", Kind: KindScalar, Dimension: 8}

	views := make([]scene.View, 0, n)

	for i := 0; i < n; i++ {
		filename := fmt.Sprintf("img_%03d.jpg", i)
		views = append(views, scene.View{ID: uint32(i), Filename: filename, Width: 640, Height: 480})

		featPath, descPath := FilePaths(dir, filename)
		r := makeScalarRegions(tb, 5+i, d.Dimension, int64(i+1))
		require.NoError(tb, Write(featPath, descPath, r))
	}

	sc, err := scene.New(dir, views)
	require.NoError(tb, err)

	return sc, d
}

func TestStoreLoadGet(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 4)

	s, err := NewStore(tmp, d)
	require.NoError(t, err)

	var updates int
	notify := progress.Func(func(done, total uint64) { updates++ })

	require.NoError(t, s.Load(context.Background(), sc, notify))
	assert.Equal(t, 4, updates)

	for i := 0; i < 4; i++ {
		r, err := s.Get(context.Background(), uint32(i))
		require.NoError(t, err)
		assert.Equal(t, 5+i, r.Len())
		assert.Equal(t, KindScalar, r.Kind)
	}

	assert.Equal(t, KindScalar, s.Kind())
	assert.Equal(t, 8, s.Dimension())
}

func TestStoreGetUnknownView(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 2)

	s, err := NewStore(tmp, d)
	require.NoError(t, err)
	require.NoError(t, s.Load(context.Background(), sc, nil))

	_, err = s.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestStoreLoadMissingFiles(t *testing.T) {
	tmp := t.TempDir()

	d := Describer{Name: "sift", Kind: KindScalar, Dimension: 8}
	sc, err := scene.New(tmp, []scene.View{{ID: 0, Filename: "absent.jpg"}})
	require.NoError(t, err)

	s, err := NewStore(tmp, d)
	require.NoError(t, err)

	assert.Error(t, s.Load(context.Background(), sc, nil))
}

func TestStoreLoadCanceled(t *testing.T) {
	tmp := t.TempDir()
	sc, d := writeDataset(t, tmp, 4)

	s, err := NewStore(tmp, d)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Load(ctx, sc, nil))
}

func TestNewStoreRejectsBadDescriber(t *testing.T) {
	_, err := NewStore(t.TempDir(), Describer{})
	assert.Error(t, err)
}
