package rtnn

import (
	"context"
	"time"

	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/search"
)

// Phase groups. Interleaved ordering runs a group for every batch before
// the next group starts.
const (
	groupBuild = iota
	groupLocality
	groupRebuild
	groupSearch
)

type step struct {
	group int
	phase Phase
	fn    func(ctx context.Context, b *batch) error
}

// steps returns the phases every batch runs, in stream order.
func (r *run) steps() []step {
	cfg := r.s.cfg
	steps := []step{{groupBuild, PhaseBuild, r.build}}
	if cfg.Reorder != search.NoReorder {
		steps = append(steps,
			step{groupLocality, PhaseApproximate, r.approximate},
			step{groupLocality, PhaseReorder, r.reorder},
		)
		if cfg.Gather {
			steps = append(steps, step{groupLocality, PhaseGather, r.gather})
		}
	}
	if cfg.needsRebuild() {
		steps = append(steps, step{groupRebuild, PhaseRebuild, r.rebuild})
	}
	return append(steps, step{groupSearch, PhaseSearch, r.exact})
}

// schedule enqueues the phases of all batches in the configured ordering.
// Without end-to-end mode every phase is synchronized before the next one is
// enqueued; the final barrier waits for all streams in any case.
func (r *run) schedule(ctx context.Context, batches []*batch) error {
	steps := r.steps()

	enqueue := func(st step, b *batch) error {
		if b.size() == 0 {
			return nil
		}
		if err := b.stream.Enqueue(ctx, r.task(st.phase, b, st.fn)); err != nil {
			return translateError(st.phase, b.id, err)
		}
		if r.s.opts.endToEnd {
			return nil
		}
		return b.stream.Synchronize()
	}

	var err error
	if r.s.cfg.Interleave {
		err = r.interleaved(steps, batches, enqueue)
	} else {
		err = r.sequential(steps, batches, enqueue)
	}

	start := time.Now()
	streams := make([]*device.Stream, len(batches))
	for i, b := range batches {
		streams[i] = b.stream
	}
	barrierErr := device.SynchronizeAll(streams...)
	if err != nil {
		// Already reported by the failing phase.
		return err
	}
	r.record(ctx, PhaseBarrier, NoBatch, r.queries(batches), time.Since(start), barrierErr)
	return barrierErr
}

func (r *run) sequential(steps []step, batches []*batch, enqueue func(step, *batch) error) error {
	for _, b := range batches {
		for _, st := range steps {
			if err := enqueue(st, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) interleaved(steps []step, batches []*batch, enqueue func(step, *batch) error) error {
	for g := groupBuild; g <= groupSearch; g++ {
		for _, b := range batches {
			for _, st := range steps {
				if st.group != g {
					continue
				}
				if err := enqueue(st, b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// task wraps a phase for a stream: it times the phase, reports it and
// translates its error.
func (r *run) task(phase Phase, b *batch, fn func(context.Context, *batch) error) device.Task {
	return func(ctx context.Context) error {
		start := time.Now()
		err := translateError(phase, b.id, fn(ctx, b))
		r.record(ctx, phase, b.id, b.size(), time.Since(start), err)
		return err
	}
}

func (r *run) queries(batches []*batch) int {
	n := 0
	for _, b := range batches {
		n += b.size()
	}
	return n
}
