package rtnn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/rtnn/activeset"
	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/backend/gridindex"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/search"
	"github.com/hupe1980/rtnn/sorter"
)

// Searcher runs configured searches. It is safe for concurrent use; every
// Run has its own state.
type Searcher struct {
	cfg       Config
	opts      options
	exec      *search.Executor
	reorderer *search.Reorderer
}

// NewSearcher validates cfg and creates a Searcher.
func NewSearcher(cfg Config, optFns ...Option) (*Searcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := applyOptions(optFns)
	if opts.backend == nil {
		opts.backend = gridindex.New(opts.provider)
	}
	return &Searcher{
		cfg:       cfg,
		opts:      opts,
		exec:      search.NewExecutor(opts.provider, opts.backend),
		reorderer: search.NewReorderer(opts.provider, cfg.Reorder, cfg.ReorderAxis),
	}, nil
}

// Config returns the validated configuration.
func (s *Searcher) Config() Config {
	return s.cfg
}

// run is the state of one Run.
type run struct {
	s      *Searcher
	id     uuid.UUID
	logger *Logger

	points     *device.Mirror[geom.Vec3]
	pointIndex []uint32

	mu      sync.Mutex
	timings []PhaseTiming
}

// Run searches queries against points. In same-set mode queries is ignored
// and the points are searched against themselves. The inputs are not
// modified. On error no partial result is returned.
func (s *Searcher) Run(ctx context.Context, points, queries []geom.Vec3) (*Result, error) {
	start := time.Now()
	r := &run{s: s, id: uuid.New()}
	r.logger = s.opts.logger.WithRun(r.id)

	res, err := r.execute(ctx, points, queries)
	d := time.Since(start)

	n := 0
	if res != nil {
		n = res.ActiveQueries
		res.Duration = d
	}
	s.opts.metricsCollector.RecordRun(n, d, err)
	r.logger.LogRun(ctx, len(points), n, batchCount(res), d, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func batchCount(res *Result) int {
	if res == nil {
		return 0
	}
	return len(res.Batches)
}

func checkInput(field string, pts []geom.Vec3) error {
	if len(pts) == 0 {
		return configError(field, "empty")
	}
	if uint64(len(pts)) >= uint64(backend.NoNeighbor) {
		return configError(field, "%d entries exceed 32-bit ids", len(pts))
	}
	for i, v := range pts {
		if !v.Finite() {
			return configError(field, "entry %d is not finite", i)
		}
	}
	return nil
}

func identity(n int) []uint32 {
	idx := make([]uint32, n)
	for i := range idx {
		idx[i] = uint32(i)
	}
	return idx
}

func compose(index, perm []uint32) []uint32 {
	out := make([]uint32, len(perm))
	for i, p := range perm {
		out[i] = index[p]
	}
	return out
}

func (r *run) execute(ctx context.Context, points, queries []geom.Vec3) (*Result, error) {
	cfg := r.s.cfg
	p := r.s.opts.provider

	if err := checkInput("points", points); err != nil {
		return nil, err
	}
	if !cfg.SameSet {
		if err := checkInput("queries", queries); err != nil {
			return nil, err
		}
	}

	// upload
	start := time.Now()
	var err error
	r.points, err = device.NewMirror(p, append([]geom.Vec3(nil), points...))
	if err != nil {
		return nil, r.fail(ctx, PhaseUpload, start, err)
	}
	defer func() { _ = r.points.Release() }()
	r.pointIndex = identity(len(points))

	var q *device.Mirror[geom.Vec3]
	if cfg.SameSet {
		q = r.points.Share()
	} else if q, err = device.NewMirror(p, append([]geom.Vec3(nil), queries...)); err != nil {
		return nil, r.fail(ctx, PhaseUpload, start, err)
	}
	defer func() { _ = q.Release() }()
	r.record(ctx, PhaseUpload, NoBatch, q.Len(), time.Since(start), nil)

	res := &Result{RunID: r.id, OriginalQueries: q.Len()}

	// sort points, and queries with them in same-set mode
	grid, perm, err := r.sort(ctx, PhaseSortPoints, "points", r.points, cfg.PointSort)
	if err != nil {
		return nil, err
	}
	if perm != nil {
		r.pointIndex = compose(r.pointIndex, perm)
	}
	if grid != nil {
		res.Bounds = grid.Info.Bounds
	}

	queryIndex := r.pointIndex
	if !cfg.SameSet {
		queryIndex = identity(q.Len())
		_, qperm, err := r.sort(ctx, PhaseSortQueries, "queries", q, cfg.QuerySort)
		if err != nil {
			return nil, err
		}
		if qperm != nil {
			queryIndex = compose(queryIndex, qperm)
		}
	}

	if cfg.Partition {
		start := time.Now()
		sel, err := activeset.NewSelector(p, cfg.Radius, cfg.K)
		if err != nil {
			return nil, r.fail(ctx, PhaseActiveSet, start, err)
		}
		rep, _, err := sel.Select(ctx, q, grid)
		if err != nil {
			return nil, r.fail(ctx, PhaseActiveSet, start, err)
		}
		queryIndex = compose(queryIndex, rep.Kept)
		res.ActiveCells = rep.ActiveCells
		res.Histogram = rep.Histogram
		r.logger.LogActiveSet(ctx, rep.ActiveCells, rep.ActiveQueries, rep.OriginalQueries)
		r.record(ctx, PhaseActiveSet, NoBatch, rep.ActiveQueries, time.Since(start), nil)
	}

	batches := r.makeBatches(q, queryIndex)
	defer func() {
		for _, b := range batches {
			_ = b.release()
		}
	}()

	if err := r.schedule(ctx, batches); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, b := range batches {
		if b.size() == 0 {
			continue
		}
		res.Batches = append(res.Batches, b.result(cfg.K))
		res.ActiveQueries += b.size()
	}
	res.Points = r.points.Host()
	res.PointIndex = r.pointIndex

	r.mu.Lock()
	res.Timings = append([]PhaseTiming(nil), r.timings...)
	r.mu.Unlock()
	return res, nil
}

// sort orders m by mode and returns the grid (grid modes only) and the
// permutation sorted position → prior position (nil for ModeNone).
func (r *run) sort(ctx context.Context, phase Phase, target string, m *device.Mirror[geom.Vec3], mode sorter.Mode) (*sorter.GridResult, []uint32, error) {
	cfg := r.s.cfg
	p := r.s.opts.provider
	start := time.Now()

	var (
		grid *sorter.GridResult
		perm []uint32
		err  error
	)
	switch {
	case mode.UsesGrid():
		var sortOpts []sorter.GridSorterOption
		if r.s.opts.deterministic {
			sortOpts = append(sortOpts, sorter.WithDeterministicCells())
		}
		grid, err = sorter.NewGridSorter(p, mode.Ordering(), sortOpts...).Sort(ctx, m, cfg.Radius, cfg.CellRatio)
		if err == nil {
			perm = grid.Perm
		}
	case mode == sorter.ModeLinear:
		perm, err = sorter.NewLinearSorter(p, cfg.LinearAxis).Sort(ctx, m)
	default:
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, r.fail(ctx, phase, start, err)
	}

	d := time.Since(start)
	r.s.opts.metricsCollector.RecordSort(target, m.Len(), d)
	r.record(ctx, phase, NoBatch, m.Len(), d, nil)
	return grid, perm, nil
}

// makeBatches splits the queries into batches. Each batch owns a handle to
// its slice of the query buffer and a stream.
func (r *run) makeBatches(q *device.Mirror[geom.Vec3], queryIndex []uint32) []*batch {
	cfg := r.s.cfg
	p := r.s.opts.provider

	count := cfg.BatchCount
	if cfg.Partition {
		count = 1
	}

	var batches []*batch
	for i, rg := range splitRanges(q.Len(), count) {
		n := rg[1] - rg[0]
		b := &batch{
			id:         i,
			radius:     cfg.Radius,
			queries:    q.Slice(rg[0], rg[1]),
			queryIndex: append([]uint32(nil), queryIndex[rg[0]:rg[1]]...),
			stream:     p.NewStream(i),
		}
		b.host = make([]uint32, n*cfg.K)
		batches = append(batches, b)
	}
	return batches
}

func (r *run) fail(ctx context.Context, phase Phase, start time.Time, err error) error {
	err = translateError(phase, NoBatch, err)
	r.record(ctx, phase, NoBatch, 0, time.Since(start), err)
	return err
}

// record reports a finished phase to timings, metrics, logs and trace.
func (r *run) record(ctx context.Context, phase Phase, batch, queries int, d time.Duration, err error) {
	if err == nil {
		r.mu.Lock()
		r.timings = append(r.timings, PhaseTiming{Phase: phase, Batch: batch, Queries: queries, Duration: d})
		r.mu.Unlock()
	}
	r.s.opts.metricsCollector.RecordPhase(phase, batch, d, err)
	r.logger.LogPhase(ctx, phase, batch, queries, d, err)
	r.s.opts.trace.OnPhase(PhaseEvent{
		Run:      r.id,
		Phase:    phase,
		Batch:    batch,
		Queries:  queries,
		Duration: d,
		Err:      err,
	})
}

// Batch phases. They run on the batch stream.

func (r *run) build(ctx context.Context, b *batch) error {
	return r.buildAt(ctx, b, r.s.cfg.buildRadius())
}

func (r *run) buildAt(ctx context.Context, b *batch, radius float32) error {
	h, err := r.s.opts.backend.Build(ctx, r.points.Device().Data(), radius)
	if err != nil {
		return err
	}
	b.handle = h
	return nil
}

func (r *run) approximate(ctx context.Context, b *batch) error {
	hits, err := r.s.exec.ApproximateTraverse(ctx, b.handle, b.queries.Device(), b.radius)
	if err != nil {
		return err
	}
	b.hits = hits
	return nil
}

func (r *run) reorder(ctx context.Context, b *batch) error {
	order, err := r.s.reorderer.Order(ctx, b.hits, r.points.Device().Data())
	if err != nil {
		return err
	}
	releaseErr := b.hits.Release()
	b.hits = nil
	b.order = order
	r.s.opts.trace.OnReorder(r.id, b.id, order.Data())
	return releaseErr
}

func (r *run) gather(ctx context.Context, b *batch) error {
	if err := search.GatherQueries(ctx, r.s.opts.provider, b.order, b.queries); err != nil {
		return err
	}
	b.queryIndex = compose(b.queryIndex, b.order.Data())

	if r.s.cfg.ReorderPoints {
		if err := r.points.Adopt(b.queries); err != nil {
			return err
		}
		r.pointIndex = append([]uint32(nil), b.queryIndex...)
	}

	err := b.order.Release()
	b.order = nil
	return err
}

func (r *run) rebuild(ctx context.Context, b *batch) error {
	if err := b.closeHandle(); err != nil {
		return err
	}
	return r.buildAt(ctx, b, b.radius)
}

func (r *run) exact(ctx context.Context, b *batch) error {
	if b.handle == nil {
		return errors.New("no index")
	}
	// The task already runs on b.stream. Copying synchronously inside it
	// keeps the result transfer ahead of any barrier queued behind the task.
	return r.s.exec.ExactSearch(ctx, b.handle, search.ExactRequest{
		Queries:    b.queries.Device(),
		Radius:     b.radius,
		Limit:      r.s.cfg.K,
		KNN:        r.s.cfg.Mode == KNNSearch,
		ReorderMap: b.order,
		Host:       b.host,
	})
}
