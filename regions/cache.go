package regions

import (
	"container/list"
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/matchgo/progress"
	"github.com/hupe1980/matchgo/scene"
)

// CacheStore is the bounded Provider: at most capacity views are resident at
// once, evicted least-recently-used. Load only verifies that every view's
// region files exist; the files are read on demand, concurrent misses on the
// same view share a single read, and the number of concurrent disk reads is
// bounded by GOMAXPROCS.
//
// An evicted view's Regions stay valid for callers already holding them;
// eviction only drops the cache's own reference.
type CacheStore struct {
	dir       string
	describer Describer
	capacity  int
	readers   *semaphore.Weighted

	mu        sync.Mutex
	items     map[uint32]*list.Element
	evictList *list.List
	loading   map[uint32]*loadCall
	paths     map[uint32]viewPaths

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	id      uint32
	regions *Regions
}

type loadCall struct {
	done    chan struct{}
	regions *Regions
	err     error
}

// NewCacheStore creates a bounded provider reading region files from dir.
// Capacity is the maximum number of views kept resident and must be at
// least 1.
func NewCacheStore(dir string, d Describer, capacity int) (*CacheStore, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if capacity < 1 {
		return nil, fmt.Errorf("regions: cache capacity %d, need at least 1", capacity)
	}

	return &CacheStore{
		dir:       dir,
		describer: d,
		capacity:  capacity,
		readers:   semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		items:     make(map[uint32]*list.Element),
		evictList: list.New(),
		loading:   make(map[uint32]*loadCall),
		paths:     make(map[uint32]viewPaths),
	}, nil
}

// Load registers every view of the catalog and verifies its region files
// exist, so missing data fails the run before matching starts.
func (c *CacheStore) Load(ctx context.Context, sc *scene.Scene, notify progress.Notifier) error {
	notify = progress.OrNop(notify)

	views := sc.Views()
	counter := progress.NewCounter(uint64(len(views)))

	paths := make(map[uint32]viewPaths, len(views))

	for _, v := range views {
		if err := ctx.Err(); err != nil {
			return err
		}

		featPath, descPath := FilePaths(c.dir, v.Filename)

		for _, p := range []string{featPath, descPath} {
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("regions: view %d: %w", v.ID, err)
			}
		}

		paths[v.ID] = viewPaths{feat: featPath, desc: descPath}

		notify.Progress(counter.Step(), counter.Total())
	}

	c.mu.Lock()
	c.paths = paths
	c.mu.Unlock()

	return nil
}

// Get returns the regions of a view, reading them from disk on a miss.
func (c *CacheStore) Get(ctx context.Context, viewID uint32) (*Regions, error) {
	c.mu.Lock()

	if ent, ok := c.items[viewID]; ok {
		c.evictList.MoveToFront(ent)
		c.mu.Unlock()
		c.hits.Add(1)

		return ent.Value.(*cacheEntry).regions, nil
	}

	if call, ok := c.loading[viewID]; ok {
		c.mu.Unlock()

		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if call.err != nil {
			return nil, call.err
		}

		c.hits.Add(1)

		return call.regions, nil
	}

	paths, ok := c.paths[viewID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrUnknownView, viewID)
	}

	call := &loadCall{done: make(chan struct{})}
	c.loading[viewID] = call
	c.mu.Unlock()

	c.misses.Add(1)

	r, err := c.read(ctx, paths)
	if err != nil {
		err = fmt.Errorf("view %d: %w", viewID, err)
	}

	c.mu.Lock()
	delete(c.loading, viewID)

	if err == nil {
		element := c.evictList.PushFront(&cacheEntry{id: viewID, regions: r})
		c.items[viewID] = element

		for c.evictList.Len() > c.capacity {
			c.removeOldest()
		}
	}

	call.regions, call.err = r, err
	close(call.done)
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return r, nil
}

// read pulls a view's region files from disk, holding one reader slot so a
// burst of cache misses cannot saturate the disk.
func (c *CacheStore) read(ctx context.Context, p viewPaths) (*Regions, error) {
	if err := c.readers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.readers.Release(1)

	return Read(p.feat, p.desc, c.describer)
}

func (c *CacheStore) removeOldest() {
	element := c.evictList.Back()
	if element == nil {
		return
	}

	c.evictList.Remove(element)
	delete(c.items, element.Value.(*cacheEntry).id)
}

// Len returns the number of views currently resident.
func (c *CacheStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evictList.Len()
}

// Stats returns cache hit and miss counters.
func (c *CacheStore) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Kind returns the descriptor kind of the dataset.
func (c *CacheStore) Kind() Kind { return c.describer.Kind }

// Dimension returns the descriptor dimensionality of the dataset.
func (c *CacheStore) Dimension() int { return c.describer.Dimension }
