// Package progress reports completion of long-running pipeline stages.
//
// Stages that iterate over many units of work (views to load, pairs to
// match) publish (done, total) updates through a Notifier. The LogNotifier
// rate-limits what it forwards so a million-pair run does not flood the log,
// while the final update is always emitted.
package progress

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Notifier receives progress updates from a pipeline stage.
type Notifier interface {
	Progress(done, total uint64)
}

// Nop is a Notifier that discards all updates.
type Nop struct{}

func (Nop) Progress(done, total uint64) {}

// OrNop returns n, or a Nop notifier when n is nil.
func OrNop(n Notifier) Notifier {
	if n == nil {
		return Nop{}
	}

	return n
}

// Func adapts a plain function to the Notifier interface.
type Func func(done, total uint64)

func (f Func) Progress(done, total uint64) { f(done, total) }

// Counter tracks completed work units across goroutines.
type Counter struct {
	total uint64
	done  atomic.Uint64
}

// NewCounter creates a counter for the given number of work units.
func NewCounter(total uint64) *Counter {
	return &Counter{total: total}
}

// Step records one completed unit and returns the new done count.
func (c *Counter) Step() uint64 { return c.done.Add(1) }

// Done returns the number of completed units.
func (c *Counter) Done() uint64 { return c.done.Load() }

// Total returns the number of work units.
func (c *Counter) Total() uint64 { return c.total }

// LogNotifier logs progress updates at a bounded rate. The update that
// completes the stage (done >= total) is always logged.
type LogNotifier struct {
	logger  *slog.Logger
	msg     string
	limiter *rate.Limiter
}

// NewLogNotifier creates a notifier logging under the given message at most
// every interval. A non-positive interval falls back to one second.
func NewLogNotifier(logger *slog.Logger, msg string, interval time.Duration) *LogNotifier {
	if interval <= 0 {
		interval = time.Second
	}

	return &LogNotifier{
		logger:  logger,
		msg:     msg,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (n *LogNotifier) Progress(done, total uint64) {
	if done < total && !n.limiter.Allow() {
		return
	}

	percent := 100.0
	if total > 0 {
		percent = float64(done) * 100 / float64(total)
	}

	n.logger.Info(n.msg,
		"done", done,
		"total", total,
		"percent", fmt.Sprintf("%.1f", percent),
	)
}
