package search

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
)

// Strategy selects how first hits are turned into a query order.
type Strategy int

const (
	// NoReorder keeps the query order.
	NoReorder Strategy = iota
	// ByCoordinate orders queries by one coordinate of their first-hit point.
	ByCoordinate
	// ByFirstHitID orders queries by the id of their first-hit point.
	ByFirstHitID
)

func (s Strategy) String() string {
	switch s {
	case NoReorder:
		return "none"
	case ByCoordinate:
		return "coordinate"
	case ByFirstHitID:
		return "id"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses the textual form of a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "none", "0":
		return NoReorder, nil
	case "coordinate", "coord", "1":
		return ByCoordinate, nil
	case "id", "2":
		return ByFirstHitID, nil
	}
	return NoReorder, fmt.Errorf("unknown reorder strategy %q", s)
}

// Reorderer derives query orders from first hits.
type Reorderer struct {
	p        device.Provider
	strategy Strategy
	axis     geom.Axis
}

// NewReorderer creates a Reorderer. axis is used by ByCoordinate.
func NewReorderer(p device.Provider, strategy Strategy, axis geom.Axis) *Reorderer {
	return &Reorderer{p: p, strategy: strategy, axis: axis}
}

// Order returns the permutation new launch position → query index that
// stably sorts the queries by the strategy key of hits. points is the point
// set the hit ids refer to. Queries without a hit go last.
func (r *Reorderer) Order(ctx context.Context, hits *device.Buffer[uint32], points []geom.Vec3) (*device.Buffer[uint32], error) {
	n := hits.Len()
	order, err := device.Sequence(ctx, r.p, n)
	if err != nil {
		return nil, err
	}

	switch r.strategy {
	case ByCoordinate:
		err = r.sortByCoordinate(ctx, hits, points, order)
	case ByFirstHitID:
		err = r.sortByID(hits, order)
	case NoReorder:
	default:
		err = fmt.Errorf("search: %v", r.strategy)
	}
	if err != nil {
		_ = order.Release()
		return nil, err
	}
	return order, nil
}

func (r *Reorderer) sortByCoordinate(ctx context.Context, hits *device.Buffer[uint32], points []geom.Vec3, order *device.Buffer[uint32]) error {
	keys, err := device.Alloc[float32](r.p, hits.Len())
	if err != nil {
		return err
	}
	defer keys.Release()

	h, k := hits.Data(), keys.Data()
	inf := float32(math.Inf(1))
	if err := r.p.Parallel(ctx, len(h), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if id := h[i]; id != backend.NoHit && int(id) < len(points) {
				k[i] = points[id].Component(r.axis)
			} else {
				k[i] = inf
			}
		}
	}); err != nil {
		return err
	}
	return device.SortByKey(keys, order)
}

func (r *Reorderer) sortByID(hits *device.Buffer[uint32], order *device.Buffer[uint32]) error {
	keys, err := device.FromHost(r.p, hits.Data())
	if err != nil {
		return err
	}
	defer keys.Release()
	return device.SortByKey(keys, order)
}

// GatherQueries materializes m in the launch order given by order, replacing
// its device buffer and host copy. Aliases of m keep the previous order.
func GatherQueries(ctx context.Context, p device.Provider, order *device.Buffer[uint32], m *device.Mirror[geom.Vec3]) error {
	dst, err := device.Alloc[geom.Vec3](p, order.Len())
	if err != nil {
		return err
	}
	if err := device.Gather(ctx, p, order, m.Device(), dst); err != nil {
		_ = dst.Release()
		return err
	}
	return m.Replace(dst)
}
