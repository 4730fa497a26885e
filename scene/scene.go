// Package scene loads and saves the view catalog of a reconstruction project.
//
// The catalog is a small JSON document listing every image (view) of the
// dataset. View ids are dense indexes assigned at ingest time; every other
// artifact of the pipeline (region files, pair lists, match tables) refers to
// views by these ids.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/hupe1980/matchgo/internal/fs"
)

// FileVersion is the current on-disk version of the catalog document.
const FileVersion = 1

var (
	// ErrNoViews is returned when a catalog contains no views.
	ErrNoViews = errors.New("scene: catalog contains no views")

	// ErrDuplicateView is returned when two views share an id.
	ErrDuplicateView = errors.New("scene: duplicate view id")
)

// View describes a single source image.
type View struct {
	ID       uint32 `json:"id"`
	Filename string `json:"filename"`
	Width    uint32 `json:"width"`
	Height   uint32 `json:"height"`
}

// Scene is the loaded view catalog.
type Scene struct {
	rootPath string
	views    map[uint32]View
}

type sceneJSON struct {
	Version  int    `json:"version"`
	RootPath string `json:"root_path"`
	Views    []View `json:"views"`
}

// New creates a catalog from a root path and a list of views.
func New(rootPath string, views []View) (*Scene, error) {
	if len(views) == 0 {
		return nil, ErrNoViews
	}

	s := &Scene{
		rootPath: rootPath,
		views:    make(map[uint32]View, len(views)),
	}

	for _, v := range views {
		if _, ok := s.views[v.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateView, v.ID)
		}

		if v.Filename == "" {
			return nil, fmt.Errorf("scene: view %d has no filename", v.ID)
		}

		s.views[v.ID] = v
	}

	return s, nil
}

// Load reads a catalog from path.
func Load(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open catalog: %w", err)
	}
	defer f.Close()

	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("scene: read catalog %s: %w", path, err)
	}

	return s, nil
}

// Read decodes a catalog document from r.
func Read(r io.Reader) (*Scene, error) {
	var doc sceneJSON

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if doc.Version != FileVersion {
		return nil, fmt.Errorf("unsupported catalog version %d", doc.Version)
	}

	return New(doc.RootPath, doc.Views)
}

// Save writes the catalog to path atomically.
func Save(path string, s *Scene) error {
	return fs.WriteAtomic(fs.Default, path, func(w io.Writer) error {
		return Write(w, s)
	})
}

// Write encodes the catalog document to w. Views are emitted in id order so
// repeated saves of the same catalog are byte-identical.
func Write(w io.Writer, s *Scene) error {
	doc := sceneJSON{
		Version:  FileVersion,
		RootPath: s.rootPath,
		Views:    s.Views(),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(doc)
}

// RootPath returns the directory holding the source images.
func (s *Scene) RootPath() string { return s.rootPath }

// Len returns the number of views.
func (s *Scene) Len() int { return len(s.views) }

// View returns the view with the given id.
func (s *Scene) View(id uint32) (View, bool) {
	v, ok := s.views[id]
	return v, ok
}

// ViewIDs returns all view ids in ascending order.
func (s *Scene) ViewIDs() []uint32 {
	ids := make([]uint32, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Views returns all views ordered by id.
func (s *Scene) Views() []View {
	views := make([]View, 0, len(s.views))
	for _, id := range s.ViewIDs() {
		views = append(views, s.views[id])
	}

	return views
}

// ImagePath returns the absolute path of a view's source image.
func (s *Scene) ImagePath(v View) string {
	return filepath.Join(s.rootPath, v.Filename)
}
