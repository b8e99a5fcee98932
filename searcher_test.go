package rtnn

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/backend/gridindex"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/grid"
	"github.com/hupe1980/rtnn/internal/resource"
	"github.com/hupe1980/rtnn/search"
	"github.com/hupe1980/rtnn/sorter"
	"github.com/hupe1980/rtnn/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(rc *resource.Controller) *device.CPU {
	return device.NewCPU(func(o *device.CPUOptions) {
		o.Workers = 4
		o.Grain = 64
		o.Resources = rc
	})
}

// neighborSets maps every searched query (by input index) to the sorted input
// ids of its neighbors.
func neighborSets(res *Result) map[uint32][]uint32 {
	sets := make(map[uint32][]uint32)
	for bi := range res.Batches {
		b := &res.Batches[bi]
		for row := 0; row < b.Len(); row++ {
			ids := res.InputIDs(b.Found(row))
			slices.Sort(ids)
			sets[b.QueryIndex[row]] = ids
		}
	}
	return sets
}

func scenarioAConfig() Config {
	cfg := DefaultConfig()
	cfg.Radius = 0.05
	cfg.K = 64
	cfg.Mode = RangeSearch
	cfg.SameSet = true
	cfg.PointSort = sorter.ModeRaster
	cfg.Reorder = search.NoReorder
	return cfg
}

func TestRun_ScenarioA(t *testing.T) {
	pts := testutil.NewRNG(42).UniformPoints(1000, 0, 1)
	orig := append([]geom.Vec3(nil), pts...)

	s, err := NewSearcher(scenarioAConfig(), WithProvider(newTestProvider(nil)), WithDeterministicSort())
	require.NoError(t, err)

	res, err := s.Run(t.Context(), pts, nil)
	require.NoError(t, err)
	assert.Equal(t, orig, pts, "input must not be modified")
	assert.Equal(t, 1000, res.ActiveQueries)
	assert.Equal(t, 1000, res.OriginalQueries)
	require.Len(t, res.Batches, 1)

	sets := neighborSets(res)
	require.Len(t, sets, 1000)
	for q, ids := range sets {
		assert.Contains(t, ids, q, "query %d must find itself", q)
		assert.Equal(t, testutil.RangeNeighbors(orig, orig[q], 0.05), ids)
	}

	again, err := s.Run(t.Context(), pts, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Batches, again.Batches)
	assert.Equal(t, res.PointIndex, again.PointIndex)
	assert.NotEqual(t, res.RunID, again.RunID)
}

func TestRun_ScenarioANondeterministicCellsSameSets(t *testing.T) {
	pts := testutil.NewRNG(42).UniformPoints(1000, 0, 1)
	s, err := NewSearcher(scenarioAConfig(), WithProvider(newTestProvider(nil)))
	require.NoError(t, err)

	a, err := s.Run(t.Context(), pts, nil)
	require.NoError(t, err)
	b, err := s.Run(t.Context(), pts, nil)
	require.NoError(t, err)
	assert.Equal(t, neighborSets(a), neighborSets(b))
}

func TestRun_ScenarioB(t *testing.T) {
	const radius, k, cellRatio = 0.45, 10, 2
	pts := testutil.NewRNG(7).UniformPoints(1000, 0, 1)

	cfg := DefaultConfig()
	cfg.Radius = radius
	cfg.K = k
	cfg.Mode = KNNSearch
	cfg.CellRatio = cellRatio
	cfg.SameSet = true
	cfg.Partition = true
	cfg.PointSort = sorter.ModeMorton

	s, err := NewSearcher(cfg, WithProvider(newTestProvider(nil)))
	require.NoError(t, err)
	res, err := s.Run(t.Context(), pts, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, res.ActiveQueries, res.OriginalQueries)
	assert.Equal(t, 1000, res.OriginalQueries)
	require.Positive(t, res.ActiveQueries)
	assert.Positive(t, res.ActiveCells)

	info, err := grid.New(res.Bounds, radius, cellRatio)
	require.NoError(t, err)
	counts := make([]uint32, info.NumCells())
	for _, p := range pts {
		counts[info.Key(info.CellOf(p), grid.Raster)]++
	}
	maxWidth := float32(radius / math.Sqrt2 * 2)

	sets := neighborSets(res)
	assert.Len(t, sets, res.ActiveQueries)
	for q, ids := range sets {
		c := info.CellOf(pts[q])
		satisfied := false
		for ring := 0; float32(2*ring+1)*info.CellSize <= maxWidth; ring++ {
			if info.CubeCount(c, ring, counts, grid.Raster) >= k {
				satisfied = ring+1 <= 2
				break
			}
		}
		assert.True(t, satisfied, "query %d kept without a satisfying ring", q)

		want := testutil.KNN(pts, pts[q], k, radius)
		slices.Sort(want)
		assert.Equal(t, want, ids)
	}
}

func TestRun_ScenarioC(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	p := newTestProvider(rc)
	rec := testutil.NewRecordingBackend(gridindex.New(p))

	cfg := DefaultConfig()
	cfg.Radius = 0.2
	cfg.K = 8
	cfg.SameSet = true
	cfg.BuildRatio = 4
	cfg.Reorder = search.ByCoordinate

	s, err := NewSearcher(cfg, WithProvider(p), WithBackend(rec))
	require.NoError(t, err)
	_, err = s.Run(t.Context(), testutil.NewRNG(3).UniformPoints(400, 0, 1), nil)
	require.NoError(t, err)

	builds := rec.Builds()
	require.Len(t, builds, 2)
	assert.Equal(t, float32(0.2)/4, builds[0])
	assert.Equal(t, float32(0.2), builds[1])

	launches := rec.Launches()
	require.Len(t, launches, 2)
	assert.True(t, launches[0].Params.Approximate)
	assert.Equal(t, 1, launches[0].Params.Limit)
	assert.Equal(t, float32(0.2)/4, launches[0].BuildRadius)
	assert.False(t, launches[1].Params.Approximate)
	assert.Equal(t, float32(0.2), launches[1].BuildRadius)
	assert.Equal(t, float32(0.2), launches[1].Params.Radius)
	assert.Len(t, launches[1].Params.ReorderMap, 400)

	assert.Equal(t, 2, rec.Closed())
	assert.Zero(t, rc.MemoryUsage())
}

func TestRun_NoRebuildAtRatioOne(t *testing.T) {
	rec := testutil.NewRecordingBackend(gridindex.New(nil))
	cfg := DefaultConfig()
	cfg.Radius = 0.2
	cfg.K = 4
	cfg.SameSet = true

	s, err := NewSearcher(cfg, WithBackend(rec))
	require.NoError(t, err)
	_, err = s.Run(t.Context(), testutil.NewRNG(1).UniformPoints(200, 0, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.2}, rec.Builds())
}

func TestRun_OrderingsAgree(t *testing.T) {
	rng := testutil.NewRNG(5)
	pts := rng.UniformPoints(1200, 0, 1)
	queries := rng.UniformPoints(500, 0, 1)

	cfg := DefaultConfig()
	cfg.Radius = 0.1
	cfg.K = 6
	cfg.BatchCount = 3
	cfg.BuildRatio = 2
	cfg.QuerySort = sorter.ModeLinear

	var results []*Result
	for _, interleave := range []bool{false, true} {
		for _, e2e := range []bool{false, true} {
			c := cfg
			c.Interleave = interleave
			opts := []Option{WithProvider(newTestProvider(nil)), WithDeterministicSort()}
			if e2e {
				opts = append(opts, WithEndToEnd())
			}
			s, err := NewSearcher(c, opts...)
			require.NoError(t, err)
			res, err := s.Run(t.Context(), pts, queries)
			require.NoError(t, err)
			require.Len(t, res.Batches, 3)
			results = append(results, res)
		}
	}
	for _, res := range results[1:] {
		assert.Equal(t, results[0].Batches, res.Batches)
	}

	sets := neighborSets(results[0])
	require.Len(t, sets, len(queries))
	for q, ids := range sets {
		want := testutil.KNN(pts, queries[q], 6, 0.1)
		slices.Sort(want)
		assert.Equal(t, want, ids)
	}
}

func TestRun_GatherMatchesReorderMap(t *testing.T) {
	pts := testutil.NewRNG(9).UniformPoints(800, 0, 1)

	cfg := DefaultConfig()
	cfg.Radius = 0.12
	cfg.K = 12
	cfg.SameSet = true
	cfg.BuildRatio = 2

	run := func(mutate func(*Config)) map[uint32][]uint32 {
		c := cfg
		mutate(&c)
		s, err := NewSearcher(c, WithProvider(newTestProvider(nil)))
		require.NoError(t, err)
		res, err := s.Run(t.Context(), pts, nil)
		require.NoError(t, err)
		return neighborSets(res)
	}

	base := run(func(c *Config) { c.Reorder = search.NoReorder })
	assert.Equal(t, base, run(func(c *Config) {}))
	assert.Equal(t, base, run(func(c *Config) { c.Gather = true }))
	assert.Equal(t, base, run(func(c *Config) { c.Reorder = search.ByCoordinate; c.Gather = true }))
	assert.Equal(t, base, run(func(c *Config) { c.Gather = true; c.ReorderPoints = true }))
	assert.Equal(t, base, run(func(c *Config) { c.PointSort = sorter.ModeNone }))
}

func TestRun_ReleasesDeviceMemory(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	p := newTestProvider(rc)

	cfg := DefaultConfig()
	cfg.Radius = 0.3
	cfg.K = 10
	cfg.CellRatio = 2
	cfg.SameSet = true
	cfg.Partition = true
	cfg.Gather = true

	s, err := NewSearcher(cfg, WithProvider(p))
	require.NoError(t, err)
	_, err = s.Run(t.Context(), testutil.NewRNG(2).UniformPoints(700, 0, 1), nil)
	require.NoError(t, err)

	assert.Zero(t, rc.MemoryUsage())
	assert.Positive(t, rc.PeakMemoryUsage())
}

func TestRun_BackendError(t *testing.T) {
	boom := backend.BuildError("injected")
	rec := testutil.NewRecordingBackend(gridindex.New(nil))
	rec.FailBuild = boom
	rec.FailBuildAt = 2

	cfg := DefaultConfig()
	cfg.Radius = 0.2
	cfg.K = 4
	cfg.SameSet = true
	cfg.BuildRatio = 2

	metrics := &BasicMetricsCollector{}
	s, err := NewSearcher(cfg, WithBackend(rec), WithMetricsCollector(metrics))
	require.NoError(t, err)

	res, err := s.Run(t.Context(), testutil.NewRNG(1).UniformPoints(100, 0, 1), nil)
	assert.Nil(t, res)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PhaseRebuild, be.Phase)
	assert.Equal(t, 0, be.Batch)
	assert.ErrorIs(t, err, backend.ErrBuildFailure)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.RunErrors)
	assert.Equal(t, int64(1), stats.PhaseErrors)
}

func TestRun_LaunchErrorInterleaved(t *testing.T) {
	rec := testutil.NewRecordingBackend(gridindex.New(nil))
	rec.FailLaunch = backend.LaunchError(errors.New("injected"))
	rec.FailLaunchAt = 1

	cfg := DefaultConfig()
	cfg.Radius = 0.2
	cfg.K = 4
	cfg.SameSet = true
	cfg.Interleave = true
	cfg.BatchCount = 2

	s, err := NewSearcher(cfg, WithBackend(rec), WithEndToEnd())
	require.NoError(t, err)
	res, err := s.Run(t.Context(), testutil.NewRNG(1).UniformPoints(100, 0, 1), nil)
	assert.Nil(t, res)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PhaseApproximate, be.Phase)
	assert.ErrorIs(t, err, backend.ErrLaunchFailure)
}

func TestRun_ResourceError(t *testing.T) {
	rc := resource.NewController(resource.Config{DeviceMemoryBytes: 1024})
	s, err := NewSearcher(scenarioAConfig(), WithProvider(newTestProvider(rc)))
	require.NoError(t, err)

	res, err := s.Run(t.Context(), testutil.NewRNG(1).UniformPoints(1000, 0, 1), nil)
	assert.Nil(t, res)

	var re *ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, PhaseUpload, re.Phase)
	assert.ErrorIs(t, err, device.ErrOutOfMemory)
	assert.Zero(t, rc.MemoryUsage())
}

func TestRun_Cancelled(t *testing.T) {
	s, err := NewSearcher(scenarioAConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	res, err := s.Run(ctx, testutil.NewRNG(1).UniformPoints(100, 0, 1), nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidInput(t *testing.T) {
	s, err := NewSearcher(scenarioAConfig())
	require.NoError(t, err)

	var ce *ConfigurationError
	_, err = s.Run(t.Context(), nil, nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "points", ce.Field)

	nan := float32(math.NaN())
	_, err = s.Run(t.Context(), []geom.Vec3{{X: nan}}, nil)
	assert.ErrorAs(t, err, &ce)

	cfg := scenarioAConfig()
	cfg.SameSet = false
	s, err = NewSearcher(cfg)
	require.NoError(t, err)
	_, err = s.Run(t.Context(), []geom.Vec3{{}}, nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "queries", ce.Field)
}

type recordingSink struct {
	mu       sync.Mutex
	phases   []PhaseEvent
	reorders int
}

func (r *recordingSink) OnPhase(ev PhaseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, ev)
}

func (r *recordingSink) OnReorder(_ uuid.UUID, _ int, order []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reorders++
}

func TestRun_TraceAndMetrics(t *testing.T) {
	sink := &recordingSink{}
	metrics := &BasicMetricsCollector{}

	cfg := DefaultConfig()
	cfg.Radius = 0.2
	cfg.K = 4
	cfg.SameSet = true
	cfg.BatchCount = 2

	s, err := NewSearcher(cfg, WithTraceSink(sink), WithMetricsCollector(metrics))
	require.NoError(t, err)
	res, err := s.Run(t.Context(), testutil.NewRNG(1).UniformPoints(300, 0, 1), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, sink.reorders)
	seen := map[Phase]int{}
	for _, ev := range sink.phases {
		assert.Equal(t, res.RunID, ev.Run)
		assert.NoError(t, ev.Err)
		seen[ev.Phase]++
	}
	assert.Equal(t, 1, seen[PhaseUpload])
	assert.Equal(t, 1, seen[PhaseSortPoints])
	assert.Zero(t, seen[PhaseSortQueries])
	assert.Equal(t, 2, seen[PhaseBuild])
	assert.Equal(t, 2, seen[PhaseApproximate])
	assert.Equal(t, 2, seen[PhaseReorder])
	assert.Equal(t, 2, seen[PhaseSearch])
	assert.Equal(t, 1, seen[PhaseBarrier])
	assert.Len(t, res.Timings, len(sink.phases))
	assert.Positive(t, res.PhaseTotal(PhaseSearch))

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.RunCount)
	assert.Equal(t, int64(300), stats.QueriesTotal)
	assert.Equal(t, int64(1), stats.SortCount)
	assert.Equal(t, int64(2), stats.PhaseCounts[PhaseBuild])
}

func TestRun_EmptyBatchesSkipped(t *testing.T) {
	rec := testutil.NewRecordingBackend(gridindex.New(nil))
	cfg := DefaultConfig()
	cfg.Radius = 0.5
	cfg.K = 2
	cfg.SameSet = true
	cfg.BatchCount = 5

	s, err := NewSearcher(cfg, WithBackend(rec))
	require.NoError(t, err)
	res, err := s.Run(t.Context(), testutil.NewRNG(1).UniformPoints(3, 0, 1), nil)
	require.NoError(t, err)
	assert.Len(t, res.Batches, 3)
	assert.Len(t, rec.Builds(), 3)
}

// eventLog orders events reported from streams and the controller.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// freeLoggingProvider logs, after a delay, every Free of watch bytes.
type freeLoggingProvider struct {
	*device.CPU
	log   *eventLog
	watch int64
}

func (p *freeLoggingProvider) Free(bytes int64) {
	if bytes == p.watch {
		time.Sleep(10 * time.Millisecond)
		p.log.add("free-result-ids")
	}
	p.CPU.Free(bytes)
}

type barrierSink struct {
	NoopTraceSink
	log *eventLog
}

func (s barrierSink) OnPhase(ev PhaseEvent) {
	if ev.Phase == PhaseBarrier {
		s.log.add("barrier")
	}
}

type slowBackend struct {
	backend.Backend
	delay time.Duration
}

func (b slowBackend) Launch(ctx context.Context, h backend.Handle, queries []geom.Vec3, p backend.LaunchParams, out []uint32) error {
	time.Sleep(b.delay)
	return b.Backend.Launch(ctx, h, queries, p, out)
}

func TestRun_BarrierCoversResultCopy(t *testing.T) {
	const n, k = 200, 7
	pts := testutil.NewRNG(3).UniformPoints(n, 0, 1)

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "end to end", opts: []Option{WithEndToEnd()}},
		{name: "per phase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &eventLog{}
			p := &freeLoggingProvider{CPU: newTestProvider(nil), log: log, watch: n * k * 4}

			cfg := DefaultConfig()
			cfg.Radius = 0.2
			cfg.K = k
			cfg.SameSet = true
			cfg.Reorder = search.NoReorder

			opts := append([]Option{
				WithProvider(p),
				WithBackend(slowBackend{Backend: gridindex.New(nil), delay: 30 * time.Millisecond}),
				WithTraceSink(barrierSink{log: log}),
			}, tt.opts...)
			s, err := NewSearcher(cfg, opts...)
			require.NoError(t, err)

			res, err := s.Run(t.Context(), pts, nil)
			require.NoError(t, err)

			events := log.snapshot()
			freed := slices.Index(events, "free-result-ids")
			barrier := slices.Index(events, "barrier")
			require.NotEqual(t, -1, freed, "events: %v", events)
			require.NotEqual(t, -1, barrier, "events: %v", events)
			assert.Less(t, freed, barrier, "events: %v", events)

			// Every query finds at least itself.
			require.Len(t, res.Batches, 1)
			for row := 0; row < res.Batches[0].Len(); row++ {
				assert.NotEmpty(t, res.Batches[0].Found(row))
			}
		})
	}
}
