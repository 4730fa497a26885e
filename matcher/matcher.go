// Package matcher computes putative feature correspondences for view pairs.
//
// For a pair (i, j), every descriptor of view i is queried against view j's
// descriptors. A correspondence is kept when the nearest neighbor beats the
// second nearest by the configured distance ratio and its target feature was
// not already claimed by an earlier query of the same pair. Pairs sharing a
// target view reuse one search structure; pairs run concurrently on a
// bounded worker pool.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/matchgo/knn"
	"github.com/hupe1980/matchgo/knn/bruteforce"
	"github.com/hupe1980/matchgo/knn/cascade"
	"github.com/hupe1980/matchgo/knn/hnsw"
	"github.com/hupe1980/matchgo/knn/kdtree"
	"github.com/hupe1980/matchgo/pairs"
	"github.com/hupe1980/matchgo/progress"
	"github.com/hupe1980/matchgo/putative"
	"github.com/hupe1980/matchgo/regions"
)

// ErrInvalidRatio is returned when the distance ratio is outside (0, 1].
var ErrInvalidRatio = errors.New("matcher: distance ratio out of range (0, 1]")

// Options configures a Matcher.
type Options struct {
	// Ratio is the nearest/second-nearest distance ratio a correspondence
	// must beat, in (0, 1]. The ratio is specified on plain distances; the
	// squared-L2 backends compare against its square.
	Ratio float64

	// Workers bounds how many pairs are matched concurrently.
	Workers int

	// Seed drives the seeded randomness of the graph and cascade backends,
	// so equal seeds give equal tables.
	Seed int64
}

// DefaultOptions is the configuration applied by New.
var DefaultOptions = Options{
	Ratio:   0.8,
	Workers: runtime.GOMAXPROCS(0),
	Seed:    1,
}

// Matcher runs pairwise descriptor matching with one configured backend.
type Matcher struct {
	method Method
	opts   Options
}

// New creates a matcher. The method may be MethodAuto; it is resolved
// against the run's descriptor kind when Match runs.
func New(method Method, optFns ...func(o *Options)) (*Matcher, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if method > MethodCascadeHashPrecomputedL2 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}

	if !(opts.Ratio > 0 && opts.Ratio <= 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRatio, opts.Ratio)
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	return &Matcher{method: method, opts: opts}, nil
}

// Method returns the configured matching method.
func (m *Matcher) Method() Method { return m.method }

// Match evaluates every pair of the set and returns the correspondence
// table. Every evaluated pair gets a table entry, matched or empty. The
// notifier sees one update per completed pair. Cancelling ctx aborts the run
// without returning a partial table.
func (m *Matcher) Match(ctx context.Context, provider regions.Provider, set pairs.Set, notify progress.Notifier) (putative.Matches, error) {
	method, err := m.method.Resolve(provider.Kind())
	if err != nil {
		return nil, err
	}

	match, err := m.pairFunc(ctx, method, provider, set)
	if err != nil {
		return nil, err
	}

	notify = progress.OrNop(notify)
	counter := progress.NewCounter(uint64(set.Len()))

	table := make(putative.Matches, set.Len())

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)

	for _, p := range set.Sorted() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			found, err := match(gctx, p)
			if err != nil {
				return fmt.Errorf("matcher: pair (%d, %d): %w", p.I, p.J, err)
			}

			mu.Lock()
			table[p] = found
			mu.Unlock()

			notify.Progress(counter.Step(), counter.Total())

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return table, nil
}

// pairFunc matches one pair: queries from the pair's left view searched
// against its right view.
type pairFunc func(ctx context.Context, p pairs.Pair) ([]putative.IndMatch, error)

func (m *Matcher) pairFunc(ctx context.Context, method Method, provider regions.Provider, set pairs.Set) (pairFunc, error) {
	switch method {
	case MethodExactHamming:
		return m.binaryPairFunc(provider), nil
	case MethodCascadeHashPrecomputedL2:
		return m.precomputedPairFunc(ctx, provider, set)
	default:
		return m.scalarPairFunc(method, provider), nil
	}
}

func (m *Matcher) binaryPairFunc(provider regions.Provider) pairFunc {
	finders := newFinderCache(func(ctx context.Context, viewID uint32) (knn.BinaryFinder, int, error) {
		r, err := provider.Get(ctx, viewID)
		if err != nil {
			return nil, 0, err
		}

		return bruteforce.NewHamming(r.Binary), len(r.Binary), nil
	})

	ratio := float32(m.opts.Ratio)

	return func(ctx context.Context, p pairs.Pair) ([]putative.IndMatch, error) {
		finder, targetLen, err := finders.get(ctx, p.J)
		if err != nil {
			return nil, err
		}

		query, err := provider.Get(ctx, p.I)
		if err != nil {
			return nil, err
		}

		return collect(len(query.Binary), targetLen, ratio, func(qi int) []knn.Neighbor {
			return finder.Search(query.Binary[qi], 2)
		}), nil
	}
}

func (m *Matcher) scalarPairFunc(method Method, provider regions.Provider) pairFunc {
	build := m.scalarFinder(method, provider.Dimension())

	finders := newFinderCache(func(ctx context.Context, viewID uint32) (knn.Finder, int, error) {
		r, err := provider.Get(ctx, viewID)
		if err != nil {
			return nil, 0, err
		}

		return build(r.Scalar), len(r.Scalar), nil
	})

	// The scalar backends report squared L2 distances, so the ratio is
	// squared as well.
	ratio := float32(m.opts.Ratio * m.opts.Ratio)

	return func(ctx context.Context, p pairs.Pair) ([]putative.IndMatch, error) {
		finder, targetLen, err := finders.get(ctx, p.J)
		if err != nil {
			return nil, err
		}

		query, err := provider.Get(ctx, p.I)
		if err != nil {
			return nil, err
		}

		return collect(len(query.Scalar), targetLen, ratio, func(qi int) []knn.Neighbor {
			return finder.Search(query.Scalar[qi], 2)
		}), nil
	}
}

func (m *Matcher) scalarFinder(method Method, dim int) func(descs [][]float32) knn.Finder {
	switch method {
	case MethodApproxTreeL2:
		return func(descs [][]float32) knn.Finder {
			return kdtree.New(descs)
		}
	case MethodApproxGraphL2:
		seed := m.opts.Seed

		return func(descs [][]float32) knn.Finder {
			return hnsw.New(descs, func(o *hnsw.Options) {
				o.Seed = seed
			})
		}
	case MethodCascadeHashL2:
		// Without precomputed tables each target view is centered with its
		// own descriptor mean.
		hasher := cascade.NewHasher(dim, m.opts.Seed)

		return func(descs [][]float32) knn.Finder {
			hashed := hasher.Hash(descs, cascade.MeanDescriptor(dim, descs))
			return cascade.NewFinder(hasher, hashed, descs)
		}
	default:
		return func(descs [][]float32) knn.Finder {
			return bruteforce.NewL2(descs)
		}
	}
}

// precomputedPairFunc hashes every participating view once, all centered
// with one run-wide zero-mean vector, and reuses the tables on both sides of
// every pair.
func (m *Matcher) precomputedPairFunc(ctx context.Context, provider regions.Provider, set pairs.Set) (pairFunc, error) {
	ids := set.ViewIDs()
	dim := provider.Dimension()

	viewMeans := make([][]float32, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)

	for vi, id := range ids {
		g.Go(func() error {
			r, err := provider.Get(gctx, id)
			if err != nil {
				return err
			}

			viewMeans[vi] = cascade.MeanDescriptor(dim, r.Scalar)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zeroMean := cascade.MeanDescriptor(dim, viewMeans)
	hasher := cascade.NewHasher(dim, m.opts.Seed)

	hashed := make(map[uint32]*cascade.HashedRegions, len(ids))

	var mu sync.Mutex

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)

	for _, id := range ids {
		g.Go(func() error {
			r, err := provider.Get(gctx, id)
			if err != nil {
				return err
			}

			hr := hasher.Hash(r.Scalar, zeroMean)

			mu.Lock()
			hashed[id] = hr
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	ratio := float32(m.opts.Ratio * m.opts.Ratio)

	return func(ctx context.Context, p pairs.Pair) ([]putative.IndMatch, error) {
		query, err := provider.Get(ctx, p.I)
		if err != nil {
			return nil, err
		}

		target, err := provider.Get(ctx, p.J)
		if err != nil {
			return nil, err
		}

		finder := cascade.NewFinder(hasher, hashed[p.J], target.Scalar)
		hq := hashed[p.I]

		return collect(len(query.Scalar), len(target.Scalar), ratio, func(qi int) []knn.Neighbor {
			return finder.SearchHashed(hq, qi, query.Scalar[qi], 2)
		}), nil
	}, nil
}

// collect runs one pair's two-nearest-neighbor queries and keeps the
// correspondences that pass the ratio and uniqueness filters. Queries run in
// ascending feature order and the first query claiming a target feature
// keeps it, so the result has unique indices on both sides.
func collect(queryCount, targetCount int, ratio float32, search func(qi int) []knn.Neighbor) []putative.IndMatch {
	used := bitset.New(uint(targetCount))

	var out []putative.IndMatch

	for qi := 0; qi < queryCount; qi++ {
		found := search(qi)
		if len(found) < 2 {
			continue
		}

		if !(found[0].Distance < ratio*found[1].Distance) {
			continue
		}

		if used.Test(uint(found[0].Index)) {
			continue
		}

		used.Set(uint(found[0].Index))

		out = append(out, putative.IndMatch{I: uint32(qi), J: found[0].Index})
	}

	return out
}

// finderCache builds one finder per target view and coalesces concurrent
// requests so each view is indexed exactly once.
type finderCache[F any] struct {
	build func(ctx context.Context, viewID uint32) (F, int, error)

	mu      sync.Mutex
	entries map[uint32]*finderEntry[F]
}

type finderEntry[F any] struct {
	once      sync.Once
	finder    F
	targetLen int
	err       error
}

func newFinderCache[F any](build func(ctx context.Context, viewID uint32) (F, int, error)) *finderCache[F] {
	return &finderCache[F]{
		build:   build,
		entries: make(map[uint32]*finderEntry[F]),
	}
}

func (c *finderCache[F]) get(ctx context.Context, viewID uint32) (F, int, error) {
	c.mu.Lock()

	e, ok := c.entries[viewID]
	if !ok {
		e = &finderEntry[F]{}
		c.entries[viewID] = e
	}

	c.mu.Unlock()

	e.once.Do(func() {
		e.finder, e.targetLen, e.err = c.build(ctx, viewID)
	})

	return e.finder, e.targetLen, e.err
}
