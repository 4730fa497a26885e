package matchgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    matchCounter   prometheus.Counter
//	    matchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordMatch(pairs int, duration time.Duration, err error) {
//	    p.matchCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordRegionsLoad is called after the region provider finishes loading.
	// duration is the total time taken, err is nil if successful.
	RecordRegionsLoad(duration time.Duration, err error)

	// RecordMatch is called after the pairwise matching stage.
	// pairs is the number of pairs evaluated, duration is the total time
	// taken, err is nil if successful.
	RecordMatch(pairs int, duration time.Duration, err error)

	// RecordPersist is called after the match table write.
	RecordPersist(duration time.Duration, err error)

	// RecordExport is called after the diagnostic artifacts are written.
	RecordExport(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRegionsLoad(time.Duration, error) {}
func (NoopMetricsCollector) RecordMatch(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordPersist(time.Duration, error)     {}
func (NoopMetricsCollector) RecordExport(time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RegionsLoadCount      atomic.Int64
	RegionsLoadErrors     atomic.Int64
	RegionsLoadTotalNanos atomic.Int64
	MatchCount            atomic.Int64
	MatchErrors           atomic.Int64
	MatchPairs            atomic.Int64
	MatchTotalNanos       atomic.Int64
	PersistCount          atomic.Int64
	PersistErrors         atomic.Int64
	ExportCount           atomic.Int64
	ExportErrors          atomic.Int64
}

// RecordRegionsLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegionsLoad(duration time.Duration, err error) {
	b.RegionsLoadCount.Add(1)
	b.RegionsLoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RegionsLoadErrors.Add(1)
	}
}

// RecordMatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatch(pairs int, duration time.Duration, err error) {
	b.MatchCount.Add(1)
	b.MatchPairs.Add(int64(pairs))
	b.MatchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MatchErrors.Add(1)
	}
}

// RecordPersist implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPersist(duration time.Duration, err error) {
	b.PersistCount.Add(1)
	if err != nil {
		b.PersistErrors.Add(1)
	}
}

// RecordExport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExport(duration time.Duration, err error) {
	b.ExportCount.Add(1)
	if err != nil {
		b.ExportErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		RegionsLoadCount:    b.RegionsLoadCount.Load(),
		RegionsLoadErrors:   b.RegionsLoadErrors.Load(),
		RegionsLoadAvgNanos: b.getAvgRegionsLoadNanos(),
		MatchCount:          b.MatchCount.Load(),
		MatchErrors:         b.MatchErrors.Load(),
		MatchPairs:          b.MatchPairs.Load(),
		MatchAvgNanos:       b.getAvgMatchNanos(),
		PersistCount:        b.PersistCount.Load(),
		PersistErrors:       b.PersistErrors.Load(),
		ExportCount:         b.ExportCount.Load(),
		ExportErrors:        b.ExportErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgRegionsLoadNanos() int64 {
	count := b.RegionsLoadCount.Load()
	if count == 0 {
		return 0
	}

	return b.RegionsLoadTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgMatchNanos() int64 {
	count := b.MatchCount.Load()
	if count == 0 {
		return 0
	}

	return b.MatchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RegionsLoadCount    int64
	RegionsLoadErrors   int64
	RegionsLoadAvgNanos int64
	MatchCount          int64
	MatchErrors         int64
	MatchPairs          int64
	MatchAvgNanos       int64
	PersistCount        int64
	PersistErrors       int64
	ExportCount         int64
	ExportErrors        int64
}
