package rtnn

import (
	"log/slog"

	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/device"
)

type options struct {
	provider         device.Provider
	backend          backend.Backend
	metricsCollector MetricsCollector
	logger           *Logger
	trace            TraceSink
	endToEnd         bool
	deterministic    bool
}

// Option configures a Searcher.
type Option func(*options)

// WithProvider configures the device provider. Defaults to device.NewCPU().
func WithProvider(p device.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithBackend configures the spatial index backend. Defaults to a
// gridindex backend on the configured provider.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithMetricsCollector configures a metrics collector for monitoring runs.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &rtnn.BasicMetricsCollector{}
//	s, _ := rtnn.NewSearcher(cfg, rtnn.WithMetricsCollector(metrics))
//	// ... run searches ...
//	stats := metrics.GetStats()
//	fmt.Printf("Runs: %d, Avg latency: %dns\n", stats.RunCount, stats.RunAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for runs.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
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

// WithTraceSink receives phase events and reorder maps.
func WithTraceSink(sink TraceSink) Option {
	return func(o *options) {
		o.trace = sink
	}
}

// WithEndToEnd suppresses per-phase synchronization. Batches only meet at
// the final barrier, so phase timings measure enqueue-to-completion on each
// stream rather than isolated phases.
func WithEndToEnd() Option {
	return func(o *options) {
		o.endToEnd = true
	}
}

// WithDeterministicSort makes the intra-cell order of grid sorts follow the
// input order, so repeated runs are bit-identical.
func WithDeterministicSort() Option {
	return func(o *options) {
		o.deterministic = true
	}
}

func applyOptions(optFns []Option) options {
	o := options{}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.provider == nil {
		o.provider = device.NewCPU()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.trace == nil {
		o.trace = NoopTraceSink{}
	}
	return o
}
