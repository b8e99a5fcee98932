package rtnn

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordPhase is called after each pipeline phase of a batch.
	// batch is NoBatch for phases that run before batching.
	RecordPhase(phase Phase, batch int, duration time.Duration, err error)

	// RecordSort is called after a particle set has been sorted.
	// target is "points" or "queries", n the number of particles.
	RecordSort(target string, n int, duration time.Duration)

	// RecordRun is called after each Run with the number of searched queries.
	RecordRun(queries int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPhase(Phase, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSort(string, int, time.Duration)        {}
func (NoopMetricsCollector) RecordRun(int, time.Duration, error)          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	RunCount       atomic.Int64
	RunErrors      atomic.Int64
	RunTotalNanos  atomic.Int64
	QueriesTotal   atomic.Int64
	SortCount      atomic.Int64
	SortedTotal    atomic.Int64
	SortTotalNanos atomic.Int64
	PhaseErrors    atomic.Int64

	mu     sync.Mutex
	phases map[Phase]*phaseStats
}

type phaseStats struct {
	count int64
	nanos int64
}

// RecordPhase implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPhase(phase Phase, _ int, duration time.Duration, err error) {
	if err != nil {
		b.PhaseErrors.Add(1)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phases == nil {
		b.phases = make(map[Phase]*phaseStats)
	}
	s, ok := b.phases[phase]
	if !ok {
		s = &phaseStats{}
		b.phases[phase] = s
	}
	s.count++
	s.nanos += duration.Nanoseconds()
}

// RecordSort implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSort(_ string, n int, duration time.Duration) {
	b.SortCount.Add(1)
	b.SortedTotal.Add(int64(n))
	b.SortTotalNanos.Add(duration.Nanoseconds())
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(queries int, duration time.Duration, err error) {
	b.RunCount.Add(1)
	b.RunTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RunErrors.Add(1)
		return
	}
	b.QueriesTotal.Add(int64(queries))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	stats := BasicMetricsStats{
		RunCount:     b.RunCount.Load(),
		RunErrors:    b.RunErrors.Load(),
		RunAvgNanos:  avg(b.RunTotalNanos.Load(), b.RunCount.Load()),
		QueriesTotal: b.QueriesTotal.Load(),
		SortCount:    b.SortCount.Load(),
		SortedTotal:  b.SortedTotal.Load(),
		PhaseErrors:  b.PhaseErrors.Load(),
		PhaseCounts:  make(map[Phase]int64),
		PhaseAvgNano: make(map[Phase]int64),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for p, s := range b.phases {
		stats.PhaseCounts[p] = s.count
		stats.PhaseAvgNano[p] = avg(s.nanos, s.count)
	}
	return stats
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RunCount     int64
	RunErrors    int64
	RunAvgNanos  int64
	QueriesTotal int64
	SortCount    int64
	SortedTotal  int64
	PhaseErrors  int64
	PhaseCounts  map[Phase]int64
	PhaseAvgNano map[Phase]int64
}
