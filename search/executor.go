package search

import (
	"context"
	"fmt"

	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
)

// Executor issues launches for one provider and backend.
type Executor struct {
	p device.Provider
	b backend.Backend
}

// NewExecutor creates an Executor.
func NewExecutor(p device.Provider, b backend.Backend) *Executor {
	return &Executor{p: p, b: b}
}

// ApproximateTraverse returns the first box hit of every query, or
// backend.NoHit. The ids only serve as locality keys.
func (e *Executor) ApproximateTraverse(ctx context.Context, h backend.Handle, queries *device.Buffer[geom.Vec3], radius float32) (*device.Buffer[uint32], error) {
	hits, err := device.Alloc[uint32](e.p, queries.Len())
	if err != nil {
		return nil, err
	}
	params := backend.LaunchParams{
		Radius:      radius,
		Limit:       1,
		Approximate: true,
	}
	if err := e.b.Launch(ctx, h, queries.Data(), params, hits.Data()); err != nil {
		_ = hits.Release()
		return nil, err
	}
	return hits, nil
}

// ExactRequest describes one exact search.
type ExactRequest struct {
	Queries *device.Buffer[geom.Vec3]
	Radius  float32
	Limit   int
	KNN     bool
	// ReorderMap, if set, is the launch order of the queries.
	ReorderMap *device.Buffer[uint32]
	// Host receives the Len(Queries)×Limit ids once Stream is synchronized.
	Host []uint32
	// Stream, if set, receives the copy as a separate item. Callers that
	// already run on a stream leave it nil.
	Stream *device.Stream
}

// ExactSearch launches req and enqueues the device-to-host copy of the ids
// on req.Stream. Without a stream the copy is synchronous. Rows of req.Host
// follow query order, also when a reorder map is given.
func (e *Executor) ExactSearch(ctx context.Context, h backend.Handle, req ExactRequest) error {
	n := req.Queries.Len()
	if len(req.Host) < n*req.Limit {
		return fmt.Errorf("search: host buffer holds %d ids, need %d", len(req.Host), n*req.Limit)
	}

	ids, err := device.Alloc[uint32](e.p, n*req.Limit)
	if err != nil {
		return err
	}
	params := backend.LaunchParams{
		Radius: req.Radius,
		Limit:  req.Limit,
		KNN:    req.KNN,
	}
	if req.ReorderMap != nil {
		params.ReorderMap = req.ReorderMap.Data()
	}
	if err := e.b.Launch(ctx, h, req.Queries.Data(), params, ids.Data()); err != nil {
		_ = ids.Release()
		return err
	}

	if req.Stream == nil {
		defer ids.Release()
		return device.CopyToHost(req.Host, ids)
	}
	if err := device.CopyToHostAsync(ctx, req.Stream, req.Host, ids); err != nil {
		_ = ids.Release()
		return err
	}
	return req.Stream.Finally(func() { _ = ids.Release() })
}
