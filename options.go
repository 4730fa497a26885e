package matchgo

import (
	"log/slog"

	"github.com/hupe1980/matchgo/matcher"
	"github.com/hupe1980/matchgo/progress"
)

type options struct {
	ratio            float64
	method           matcher.Method
	force            bool
	cacheSize        uint
	workers          int
	seed             int64
	exportDir        string
	notifier         progress.Notifier
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Pipeline behavior.
type Option func(*options)

// WithRatio configures the nearest/second-nearest distance ratio a
// correspondence must beat, in (0, 1]. The default is 0.8.
func WithRatio(ratio float64) Option {
	return func(o *options) {
		o.ratio = ratio
	}
}

// WithMethod configures the matching method. The default is MethodAuto,
// which resolves against the dataset's descriptor kind.
func WithMethod(method matcher.Method) Option {
	return func(o *options) {
		o.method = method
	}
}

// WithForce configures whether an existing match table is recomputed
// instead of reused.
func WithForce(force bool) Option {
	return func(o *options) {
		o.force = force
	}
}

// WithCacheSize bounds how many views' regions stay resident during
// matching. Zero, the default, loads every view up front.
func WithCacheSize(size uint) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithWorkers bounds how many pairs are matched concurrently.
// Values below 1 fall back to GOMAXPROCS.
func WithWorkers(workers int) Option {
	return func(o *options) {
		o.workers = workers
	}
}

// WithSeed configures the seed of the randomized backends, so equal seeds
// give equal tables.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithExportDir overrides where the diagnostic artifacts are written.
// The default is the match table's directory.
func WithExportDir(dir string) Option {
	return func(o *options) {
		o.exportDir = dir
	}
}

// WithNotifier configures a progress notifier for the load and match stages.
// Pass nil to disable progress reporting.
func WithNotifier(n progress.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring the
// pipeline stages. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &matchgo.BasicMetricsCollector{}
//	p, _ := matchgo.New(scenePath, outputPath, pairListPath, matchgo.WithMetricsCollector(metrics))
//	// ... run ...
//	stats := metrics.GetStats()
//	fmt.Printf("Pairs: %d, Avg match time: %dns\n", stats.MatchPairs, stats.MatchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for the pipeline stages.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := matchgo.NewJSONLogger(slog.LevelInfo)
//	p, _ := matchgo.New(scenePath, outputPath, pairListPath, matchgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		ratio:            matcher.DefaultOptions.Ratio,
		method:           matcher.MethodAuto,
		seed:             matcher.DefaultOptions.Seed,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	return o
}
