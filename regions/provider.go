package regions

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/matchgo/progress"
	"github.com/hupe1980/matchgo/scene"
)

// ErrUnknownView is returned when a view id has no regions.
var ErrUnknownView = errors.New("regions: unknown view")

// Provider gives the matcher access to per-view regions. Implementations are
// safe for concurrent use after Load has returned.
type Provider interface {
	// Load prepares the provider for the views of the catalog.
	Load(ctx context.Context, sc *scene.Scene, notify progress.Notifier) error

	// Get returns the regions of a view. The result is shared and read-only.
	Get(ctx context.Context, viewID uint32) (*Regions, error)

	// Kind returns the descriptor kind of the dataset.
	Kind() Kind

	// Dimension returns the descriptor dimensionality of the dataset.
	Dimension() int
}

type viewPaths struct {
	feat string
	desc string
}

// Store is the eager Provider: Load reads every view's regions into memory.
// Matching against a store never touches the disk again, at the cost of
// holding the full dataset resident.
type Store struct {
	dir       string
	describer Describer

	mu    sync.RWMutex
	views map[uint32]*Regions
}

// NewStore creates an eager provider reading region files from dir.
func NewStore(dir string, d Describer) (*Store, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &Store{
		dir:       dir,
		describer: d,
		views:     make(map[uint32]*Regions),
	}, nil
}

// Load reads the region files of every view in the catalog, bounded by
// GOMAXPROCS concurrent readers.
func (s *Store) Load(ctx context.Context, sc *scene.Scene, notify progress.Notifier) error {
	notify = progress.OrNop(notify)

	views := sc.Views()
	counter := progress.NewCounter(uint64(len(views)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, v := range views {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			featPath, descPath := FilePaths(s.dir, v.Filename)

			r, err := Read(featPath, descPath, s.describer)
			if err != nil {
				return fmt.Errorf("view %d: %w", v.ID, err)
			}

			s.mu.Lock()
			s.views[v.ID] = r
			s.mu.Unlock()

			notify.Progress(counter.Step(), counter.Total())

			return nil
		})
	}

	return g.Wait()
}

// Get returns the regions of a view.
func (s *Store) Get(ctx context.Context, viewID uint32) (*Regions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.views[viewID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownView, viewID)
	}

	return r, nil
}

// Kind returns the descriptor kind of the dataset.
func (s *Store) Kind() Kind { return s.describer.Kind }

// Dimension returns the descriptor dimensionality of the dataset.
func (s *Store) Dimension() int { return s.describer.Dimension }
