// Package gridindex is the reference Backend: an exact CPU emulation of a
// bounding-volume traversal over per-point boxes.
//
// Every point becomes an axis-aligned box of half-width equal to the build
// radius. A query hits a box when its Chebyshev distance to the point is at
// most the build radius; non-approximate launches additionally require
// dist² < radius². Boxes are bucketed in a uniform hash grid with cells of
// the build radius, so a query only visits its own and the 26 adjacent cells.
// Cells are visited in a fixed order and points inside a cell by ascending
// id, which makes first-hit and first-limit results reproducible.
package gridindex

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"unsafe"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/internal/queue"
)

const (
	coordBits = 21
	coordMax  = 1 << coordBits
)

// Index implements backend.Backend.
type Index struct {
	p device.Provider
}

var _ backend.Backend = (*Index)(nil)

// New creates an Index that parallelizes launches on p. A nil provider uses
// a default CPU provider.
func New(p device.Provider) *Index {
	if p == nil {
		p = device.NewCPU()
	}
	return &Index{p: p}
}

type span struct {
	lo, hi uint32
}

type handle struct {
	owner  *Index
	radius float32
	origin geom.Vec3
	pts    []geom.Vec3
	ids    []uint32
	cells  map[uint64]span
	bytes  int64
	closed atomic.Bool
}

func (h *handle) Radius() float32 { return h.radius }

func (h *handle) Len() int { return len(h.pts) }

func (h *handle) Close() error {
	if h.closed.Swap(true) {
		return backend.ErrInvalidHandle
	}
	h.owner.p.Free(h.bytes)
	return nil
}

func (h *handle) cell(v geom.Vec3) [3]int64 {
	return [3]int64{
		int64(math.Floor(float64((v.X - h.origin.X) / h.radius))),
		int64(math.Floor(float64((v.Y - h.origin.Y) / h.radius))),
		int64(math.Floor(float64((v.Z - h.origin.Z) / h.radius))),
	}
}

func pack(c [3]int64) (uint64, bool) {
	for _, v := range c {
		if v < 0 || v >= coordMax {
			return 0, false
		}
	}
	return uint64(c[0])<<(2*coordBits) | uint64(c[1])<<coordBits | uint64(c[2]), true
}

// Build implements backend.Backend.
func (x *Index) Build(ctx context.Context, points []geom.Vec3, radius float32) (backend.Handle, error) {
	if len(points) == 0 {
		return nil, backend.BuildError("empty point set")
	}
	if uint64(len(points)) >= math.MaxUint32 {
		return nil, backend.BuildError("%d points exceed 32-bit ids", len(points))
	}
	if !(radius > 0) || math.IsInf(float64(radius), 0) {
		return nil, backend.BuildError("radius %g", radius)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrBuildFailure, err)
	}

	n := len(points)
	bytes := int64(n) * int64(unsafe.Sizeof(geom.Vec3{})+2*unsafe.Sizeof(uint32(0)))
	if err := x.p.Alloc(bytes); err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrBuildFailure, err)
	}

	h := &handle{owner: x, radius: radius, bytes: bytes}
	h.origin = points[0]
	for _, v := range points[1:] {
		h.origin.X = min(h.origin.X, v.X)
		h.origin.Y = min(h.origin.Y, v.Y)
		h.origin.Z = min(h.origin.Z, v.Z)
	}

	keys := make([]uint64, n)
	order := make([]uint32, n)
	var bad atomic.Bool
	if err := x.p.Parallel(ctx, n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			k, ok := pack(h.cell(points[i]))
			if !ok {
				bad.Store(true)
				return
			}
			keys[i] = k
			order[i] = uint32(i)
		}
	}); err != nil {
		x.p.Free(bytes)
		return nil, fmt.Errorf("%w: %w", backend.ErrBuildFailure, err)
	}
	if bad.Load() {
		x.p.Free(bytes)
		return nil, backend.BuildError("point extent exceeds %d cells of radius %g per axis", coordMax, radius)
	}

	slices.SortStableFunc(order, func(a, b uint32) int {
		switch {
		case keys[a] < keys[b]:
			return -1
		case keys[a] > keys[b]:
			return 1
		}
		return 0
	})

	h.pts = make([]geom.Vec3, n)
	h.ids = make([]uint32, n)
	h.cells = make(map[uint64]span)
	for pos, id := range order {
		h.pts[pos] = points[id]
		h.ids[pos] = id
		k := keys[id]
		s, ok := h.cells[k]
		if !ok {
			s.lo = uint32(pos)
		}
		s.hi = uint32(pos + 1)
		h.cells[k] = s
	}
	return h, nil
}

// Launch implements backend.Backend.
func (x *Index) Launch(ctx context.Context, hd backend.Handle, queries []geom.Vec3, p backend.LaunchParams, out []uint32) error {
	h, ok := hd.(*handle)
	if !ok || h.owner != x || h.closed.Load() {
		return backend.LaunchError(backend.ErrInvalidHandle)
	}
	n := len(queries)
	if err := p.Validate(n); err != nil {
		return backend.LaunchError(err)
	}
	if len(out) < n*p.Limit {
		return backend.LaunchError(fmt.Errorf("output holds %d slots, need %d", len(out), n*p.Limit))
	}
	if m := p.ReorderMap; m != nil {
		seen := bitset.New(uint(n))
		for i, q := range m {
			if int(q) >= n || seen.Test(uint(q)) {
				return backend.LaunchError(fmt.Errorf("reorder map[%d]=%d is not a permutation of %d queries", i, q, n))
			}
			seen.Set(uint(q))
		}
	}

	r2 := p.Radius * p.Radius
	err := x.p.Parallel(ctx, n, func(lo, hi int) {
		var heap *queue.KNN
		if p.KNN && !p.Approximate {
			heap = queue.NewKNN(p.Limit)
		}
		for i := lo; i < hi; i++ {
			q := i
			if p.ReorderMap != nil {
				q = int(p.ReorderMap[i])
			}
			row := out[q*p.Limit : (q+1)*p.Limit]
			for j := range row {
				row[j] = backend.NoNeighbor
			}
			if heap != nil {
				h.knn(queries[q], r2, heap, row)
			} else {
				h.firstHits(queries[q], r2, p.Approximate, row)
			}
		}
	})
	if err != nil {
		return backend.LaunchError(err)
	}
	return nil
}

// visit calls fn for every point whose box contains q, in traversal order,
// until fn returns false.
func (h *handle) visit(q geom.Vec3, fn func(id uint32, p geom.Vec3) bool) {
	c := h.cell(q)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				k, ok := pack([3]int64{c[0] + dx, c[1] + dy, c[2] + dz})
				if !ok {
					continue
				}
				s, ok := h.cells[k]
				if !ok {
					continue
				}
				for pos := s.lo; pos < s.hi; pos++ {
					pt := h.pts[pos]
					if !q.ChebyshevWithin(pt, h.radius) {
						continue
					}
					if !fn(h.ids[pos], pt) {
						return
					}
				}
			}
		}
	}
}

func (h *handle) firstHits(q geom.Vec3, r2 float32, approx bool, row []uint32) {
	j := 0
	h.visit(q, func(id uint32, p geom.Vec3) bool {
		if !approx && q.Dist2(p) >= r2 {
			return true
		}
		row[j] = id
		j++
		return j < len(row)
	})
}

func (h *handle) knn(q geom.Vec3, r2 float32, heap *queue.KNN, row []uint32) {
	heap.Reset()
	h.visit(q, func(id uint32, p geom.Vec3) bool {
		if d := q.Dist2(p); d < r2 {
			heap.Offer(queue.Candidate{ID: id, Dist2: d})
		}
		return true
	})
	heap.Drain(row)
}
