package matchgo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/matchgo/export"
	"github.com/hupe1980/matchgo/matcher"
	"github.com/hupe1980/matchgo/pairs"
	"github.com/hupe1980/matchgo/putative"
	"github.com/hupe1980/matchgo/regions"
	"github.com/hupe1980/matchgo/scene"
)

// State reports how a run produced its match table.
type State uint8

const (
	// StateLoaded marks a table reused from a previous run's output file.
	StateLoaded State = iota
	// StatePersisted marks a freshly computed table written to the output file.
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StatePersisted:
		return "persisted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Result is the outcome of a pipeline run.
type Result struct {
	// State tells whether the table was reused or freshly computed.
	State State

	// Matches is the putative match table.
	Matches putative.Matches

	// Views is the number of views in the scene catalog.
	Views int

	// Pairs is the number of pair entries in the table, empty ones included.
	Pairs int

	// MatchedPairs is the number of pairs with at least one correspondence.
	MatchedPairs int

	// TotalMatches is the number of correspondences over all pairs.
	TotalMatches int

	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// Reused reports whether the table came from a previous run's output file.
func (r *Result) Reused() bool { return r.State == StateLoaded }

// Pipeline computes the putative match table of one dataset: it loads the
// scene catalog and the per-view region files, matches every requested pair,
// persists the table, and writes the diagnostic artifacts next to it.
type Pipeline struct {
	scenePath    string
	outputPath   string
	pairListPath string

	matcher *matcher.Matcher
	opts    options
}

// New creates a pipeline. scenePath names the view catalog, outputPath the
// match table to produce (.txt or .bin), and pairListPath the pairs to
// evaluate. The region files and the describer declaration are expected in
// outputPath's directory. Configuration errors (unknown method, ratio out of
// range) surface here, before any file is touched.
func New(scenePath, outputPath, pairListPath string, optFns ...Option) (*Pipeline, error) {
	opts := applyOptions(optFns)

	switch {
	case scenePath == "":
		return nil, fmt.Errorf("%w: scene catalog", ErrMissingPath)
	case outputPath == "":
		return nil, fmt.Errorf("%w: match table output", ErrMissingPath)
	case pairListPath == "":
		return nil, fmt.Errorf("%w: pair list", ErrMissingPath)
	}

	m, err := matcher.New(opts.method, func(o *matcher.Options) {
		o.Ratio = opts.ratio
		o.Workers = opts.workers
		o.Seed = opts.seed
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		scenePath:    scenePath,
		outputPath:   outputPath,
		pairListPath: pairListPath,
		matcher:      m,
		opts:         opts,
	}, nil
}

// Run executes the pipeline. Unless the pipeline was created with
// WithForce(true), an existing output file is loaded and returned as is;
// otherwise the table is computed, persisted, and exported. Cancelling ctx
// aborts between pairs without touching a previously persisted table.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	sc, err := scene.Load(p.scenePath)
	if err != nil {
		return nil, err
	}

	p.opts.logger.LogSceneLoaded(ctx, p.scenePath, sc.Len())

	if !p.opts.force {
		m, ok, err := p.loadPrevious(ctx)
		if err != nil {
			return nil, err
		}

		if ok {
			p.export(ctx, sc, m)

			return p.result(StateLoaded, sc, m, start), nil
		}
	}

	m, err := p.compute(ctx, sc)
	if err != nil {
		return nil, err
	}

	p.export(ctx, sc, m)

	return p.result(StatePersisted, sc, m, start), nil
}

// loadPrevious returns the table persisted by a previous run, if any. A
// table that exists but cannot be read is an error, not a recompute trigger.
func (p *Pipeline) loadPrevious(ctx context.Context) (putative.Matches, bool, error) {
	if _, err := os.Stat(p.outputPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("matchgo: stat %s: %w", p.outputPath, err)
	}

	m, err := putative.Load(p.outputPath)
	if err != nil {
		return nil, false, err
	}

	p.opts.logger.LogReuse(ctx, p.outputPath, m.Count())

	return m, true, nil
}

func (p *Pipeline) compute(ctx context.Context, sc *scene.Scene) (putative.Matches, error) {
	matchesDir := filepath.Dir(p.outputPath)

	describer, err := regions.LoadDescriber(filepath.Join(matchesDir, regions.DescriberFileName))
	if err != nil {
		return nil, err
	}

	provider, err := p.newProvider(matchesDir, describer)
	if err != nil {
		return nil, err
	}

	loadStart := time.Now()
	err = provider.Load(ctx, sc, p.opts.notifier)
	p.opts.metricsCollector.RecordRegionsLoad(time.Since(loadStart), err)
	p.opts.logger.LogRegionsLoaded(ctx, sc.Len(), describer.Kind, time.Since(loadStart), err)

	if err != nil {
		return nil, err
	}

	set, err := pairs.Load(p.pairListPath, sc.Len())
	if err != nil {
		return nil, err
	}

	p.opts.logger.LogMatchStart(ctx, p.matcher.Method(), set.Len())

	matchStart := time.Now()
	m, err := p.matcher.Match(ctx, provider, set, p.opts.notifier)
	p.opts.metricsCollector.RecordMatch(set.Len(), time.Since(matchStart), err)
	p.opts.logger.LogMatchDone(ctx, m.Count(), time.Since(matchStart), err)

	if err != nil {
		return nil, err
	}

	persistStart := time.Now()
	err = putative.Save(p.outputPath, m)
	p.opts.metricsCollector.RecordPersist(time.Since(persistStart), err)
	p.opts.logger.LogPersist(ctx, p.outputPath, m.Count(), err)

	if err != nil {
		return nil, err
	}

	return m, nil
}

// newProvider picks the region provider: zero cache size loads every view up
// front, anything else bounds residency with an LRU cache.
func (p *Pipeline) newProvider(dir string, d regions.Describer) (regions.Provider, error) {
	if p.opts.cacheSize == 0 {
		return regions.NewStore(dir, d)
	}

	return regions.NewCacheStore(dir, d, int(p.opts.cacheSize))
}

// export writes the diagnostic artifacts. Failures are logged at warn level
// and never fail the run.
func (p *Pipeline) export(ctx context.Context, sc *scene.Scene, m putative.Matches) {
	dir := p.opts.exportDir
	if dir == "" {
		dir = filepath.Dir(p.outputPath)
	}

	start := time.Now()

	svgPath := filepath.Join(dir, export.AdjacencyFileName)
	svgErr := export.SaveAdjacencySVG(svgPath, sc.Len(), m)
	p.opts.logger.LogExport(ctx, svgPath, svgErr)

	dotPath := filepath.Join(dir, export.GraphFileName)
	dotErr := export.SaveGraphDot(dotPath, sc.ViewIDs(), m)
	p.opts.logger.LogExport(ctx, dotPath, dotErr)

	p.opts.logger.LogGraphStats(ctx, export.ComputeStats(sc.ViewIDs(), m))

	p.opts.metricsCollector.RecordExport(time.Since(start), errors.Join(svgErr, dotErr))
}

func (p *Pipeline) result(state State, sc *scene.Scene, m putative.Matches, start time.Time) *Result {
	matched := 0

	for _, found := range m {
		if len(found) > 0 {
			matched++
		}
	}

	return &Result{
		State:        state,
		Matches:      m,
		Views:        sc.Len(),
		Pairs:        len(m),
		MatchedPairs: matched,
		TotalMatches: m.Count(),
		Elapsed:      time.Since(start),
	}
}
