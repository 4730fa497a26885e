package fs

import (
	"fmt"
	"io"
	"os"
)

// WriteAtomic writes an artifact by streaming the payload into a temp file
// next to the target and renaming it into place after a successful sync.
// On any failure the temp file is removed and the target is left untouched.
func WriteAtomic(fsys FileSystem, path string, write func(w io.Writer) error) error {
	tmpPath := path + ".tmp"

	f, err := fsys.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}

	if err := write(f); err != nil {
		f.Close()
		fsys.Remove(tmpPath)

		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		fsys.Remove(tmpPath)

		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		fsys.Remove(tmpPath)

		return fmt.Errorf("close temp file: %w", err)
	}

	if err := fsys.Rename(tmpPath, path); err != nil {
		fsys.Remove(tmpPath)

		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
