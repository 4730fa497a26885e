package fs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	assert.NoError(t, f.Close())

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	info2, err := lfs.Stat(newPath)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info2.Size())

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.Error(t, err)
}

func TestWriteAtomic(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "artifact.txt")

	err := WriteAtomic(Default, path, func(w io.Writer) error {
		_, err := w.Write([]byte("payload"))
		return err
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteAtomicOverwrites(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "artifact.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	err := WriteAtomic(Default, path, func(w io.Writer) error {
		_, err := w.Write([]byte("new"))
		return err
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestWriteAtomicFaults(t *testing.T) {
	tests := []struct {
		name  string
		fault Fault
	}{
		{"WriteFails", Fault{FailAfterBytes: 2}},
		{"SyncFails", Fault{FailAfterBytes: -1, FailOnSync: true}},
		{"CloseFails", Fault{FailAfterBytes: -1, FailOnClose: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			path := filepath.Join(tmp, "artifact.txt")
			require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

			ffs := NewFaultyFS(nil)
			ffs.SetFault(tt.fault)

			err := WriteAtomic(ffs, path, func(w io.Writer) error {
				_, err := w.Write([]byte("new payload"))
				return err
			})
			require.ErrorIs(t, err, ErrInjected)

			// The old artifact is untouched and the temp file is cleaned up.
			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "old", string(got))

			_, err = os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err))
		})
	}
}
