package testutil

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hupe1980/matchgo/pairs"
	"github.com/hupe1980/matchgo/regions"
	"github.com/hupe1980/matchgo/scene"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), // nolint gosec
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float32 in a loop).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// FillBytes fills dst with random bytes.
func (r *RNG) FillBytes(dst []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Read(dst) // never fails
}

// Options configures a generated dataset.
type Options struct {
	// Views is the number of images in the catalog.
	Views int

	// Landmarks is the number of features per view. Every view observes the
	// same landmarks, so corresponding indices agree across views.
	Landmarks int

	// Dimension is the descriptor dimensionality.
	Dimension int

	// Kind selects scalar or binary descriptors.
	Kind regions.Kind

	// Noise scales the per-view perturbation of scalar descriptors. Binary
	// descriptors flip a single bit per view instead.
	Noise float32

	// Seed drives all randomness; equal seeds give equal datasets.
	Seed int64
}

// DefaultOptions holds the defaults used by Build.
var DefaultOptions = Options{
	Views:     3,
	Landmarks: 24,
	Dimension: 8,
	Kind:      regions.KindScalar,
	Noise:     0.01,
	Seed:      1,
}

// Dataset is a matching dataset written to a temporary directory.
type Dataset struct {
	ScenePath    string
	MatchesDir   string
	PairListPath string

	Scene     *scene.Scene
	Describer regions.Describer
	Regions   map[uint32]*regions.Regions
	Pairs     pairs.Set
}

// OutputPath returns a match table path inside the matches directory with
// the given extension.
func (d *Dataset) OutputPath(ext string) string {
	return filepath.Join(d.MatchesDir, "matches.putative"+ext)
}

// Build writes a dataset under tb's temporary directory: the scene catalog,
// the describer declaration, one region file pair per view, and an
// exhaustive pair list.
func Build(tb testing.TB, optFns ...func(o *Options)) *Dataset {
	tb.Helper()

	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	rng := NewRNG(opts.Seed)
	dir := tb.TempDir()

	d := &Dataset{
		ScenePath:    filepath.Join(dir, "scene.json"),
		MatchesDir:   filepath.Join(dir, "matches"),
		PairListPath: filepath.Join(dir, "pairs.txt"),
		Regions:      make(map[uint32]*regions.Regions, opts.Views),
	}

	if err := os.MkdirAll(d.MatchesDir, 0o755); err != nil {
		tb.Fatal(err)
	}

	views := make([]scene.View, opts.Views)
	for v := range views {
		views[v] = scene.View{
			ID:       uint32(v),
			Filename: fmt.Sprintf("IMG_%04d.jpg", v),
			Width:    640,
			Height:   480,
		}
	}

	sc, err := scene.New(filepath.Join(dir, "images"), views)
	if err != nil {
		tb.Fatal(err)
	}

	d.Scene = sc

	if err := scene.Save(d.ScenePath, sc); err != nil {
		tb.Fatal(err)
	}

	d.Describer = regions.Describer{Name: "planted", Kind: opts.Kind, Dimension: opts.Dimension}
	if err := regions.SaveDescriber(filepath.Join(d.MatchesDir, regions.DescriberFileName), d.Describer); err != nil {
		tb.Fatal(err)
	}

	writeRegions(tb, d, opts, rng)

	d.Pairs = exhaustivePairs(opts.Views)
	if err := pairs.Save(d.PairListPath, d.Pairs); err != nil {
		tb.Fatal(err)
	}

	return d
}

func writeRegions(tb testing.TB, d *Dataset, opts Options, rng *RNG) {
	tb.Helper()

	scalarBase := make([][]float32, opts.Landmarks)
	binaryBase := make([][]byte, opts.Landmarks)

	for l := 0; l < opts.Landmarks; l++ {
		if opts.Kind == regions.KindBinary {
			b := make([]byte, opts.Dimension)
			rng.FillBytes(b)
			binaryBase[l] = b

			continue
		}

		v := make([]float32, opts.Dimension)
		rng.FillUniform(v)
		scalarBase[l] = v
	}

	for _, view := range d.Scene.Views() {
		r := &regions.Regions{
			Kind:      opts.Kind,
			Dimension: opts.Dimension,
			Features:  make([]regions.PointFeature, opts.Landmarks),
		}

		for l := 0; l < opts.Landmarks; l++ {
			r.Features[l] = regions.PointFeature{
				X:           rng.Float32() * float32(view.Width),
				Y:           rng.Float32() * float32(view.Height),
				Scale:       1 + rng.Float32(),
				Orientation: rng.Float32(),
			}
		}

		if opts.Kind == regions.KindBinary {
			r.Binary = make([][]byte, opts.Landmarks)
			for l, base := range binaryBase {
				desc := append([]byte(nil), base...)
				desc[rng.Intn(len(desc))] ^= 1 << rng.Intn(8)

				r.Binary[l] = desc
			}
		} else {
			r.Scalar = make([][]float32, opts.Landmarks)
			for l, base := range scalarBase {
				desc := make([]float32, opts.Dimension)
				for j, b := range base {
					desc[j] = b + opts.Noise*rng.Float32()
				}

				r.Scalar[l] = desc
			}
		}

		featPath, descPath := regions.FilePaths(d.MatchesDir, view.Filename)
		if err := regions.Write(featPath, descPath, r); err != nil {
			tb.Fatal(err)
		}

		d.Regions[view.ID] = r
	}
}

func exhaustivePairs(viewCount int) pairs.Set {
	set := make(pairs.Set)

	for i := 0; i < viewCount; i++ {
		for j := i + 1; j < viewCount; j++ {
			set.Add(pairs.New(uint32(i), uint32(j)))
		}
	}

	return set
}
