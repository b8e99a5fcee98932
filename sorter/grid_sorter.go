package sorter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/grid"
)

// ErrEmpty is returned when a grid is requested for an empty particle set.
var ErrEmpty = errors.New("sorter: empty particle set")

// GridResult describes one grid sort.
type GridResult struct {
	// Info is the grid the particles were binned into.
	Info *grid.Info
	// Ordering is the cell serialization used for keys.
	Ordering grid.Ordering
	// Perm maps sorted position to the particle's position before the sort.
	Perm []uint32
	// Counts holds the population of every cell, indexed by key.
	Counts []uint32
	// Offsets holds the first sorted position of every cell, indexed by key.
	Offsets []uint32
	// SortedKeys holds the cell key of the particle at every sorted position.
	SortedKeys []uint32
}

// GridSorter implements the grid counting sort.
type GridSorter struct {
	p             device.Provider
	ordering      grid.Ordering
	deterministic bool
}

// GridSorterOption configures a GridSorter.
type GridSorterOption func(*GridSorter)

// WithDeterministicCells ranks particles inside a cell by input position
// instead of by the arrival order of concurrent counter increments.
func WithDeterministicCells() GridSorterOption {
	return func(s *GridSorter) {
		s.deterministic = true
	}
}

// NewGridSorter creates a GridSorter for ordering o.
func NewGridSorter(p device.Provider, o grid.Ordering, optFns ...GridSorterOption) *GridSorter {
	s := &GridSorter{p: p, ordering: o}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// ComputeBounds returns the padded integer-floored bounding box of pts.
func ComputeBounds(ctx context.Context, p device.Provider, pts []geom.Vec3) (geom.Bounds, error) {
	b, err := device.Reduce(ctx, p, pts, geom.EmptyBounds(),
		func(acc geom.Bounds, v geom.Vec3) geom.Bounds {
			acc.Extend(v)
			return acc
		},
		geom.Bounds.Union,
	)
	if err != nil {
		return geom.Bounds{}, err
	}
	return b.Pad(), nil
}

// Sort sizes a grid over m with cells of radius/cellRatio and sorts m into it.
func (s *GridSorter) Sort(ctx context.Context, m *device.Mirror[geom.Vec3], radius, cellRatio float32) (*GridResult, error) {
	if m.Len() == 0 {
		return nil, ErrEmpty
	}
	bounds, err := ComputeBounds(ctx, s.p, m.Device().Data())
	if err != nil {
		return nil, err
	}
	info, err := grid.New(bounds, radius, cellRatio)
	if err != nil {
		return nil, err
	}
	return s.AssignAndSort(ctx, m, info)
}

// AssignAndSort bins the particles of m into info's cells and reorders m so
// that cell keys ascend. Cross-cell order is deterministic; intra-cell order
// follows counter arrival unless WithDeterministicCells is set.
func (s *GridSorter) AssignAndSort(ctx context.Context, m *device.Mirror[geom.Vec3], info *grid.Info) (*GridResult, error) {
	dev := m.Device()
	pts := dev.Data()
	n := len(pts)
	numCells := info.NumCells()

	keysBuf, err := device.Alloc[uint32](s.p, n)
	if err != nil {
		return nil, err
	}
	defer keysBuf.Release()
	ranksBuf, err := device.Alloc[uint32](s.p, n)
	if err != nil {
		return nil, err
	}
	defer ranksBuf.Release()
	countsBuf, err := device.Alloc[uint32](s.p, numCells)
	if err != nil {
		return nil, err
	}
	defer countsBuf.Release()

	keys, ranks, counts := keysBuf.Data(), ranksBuf.Data(), countsBuf.Data()
	insert := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			k := info.Key(info.CellOf(pts[i]), s.ordering)
			keys[i] = k
			ranks[i] = atomic.AddUint32(&counts[k], 1) - 1
		}
	}
	if s.deterministic {
		insert(0, n)
	} else if err := s.p.Parallel(ctx, n, insert); err != nil {
		return nil, err
	}

	offsetsBuf, err := device.Alloc[uint32](s.p, numCells)
	if err != nil {
		return nil, err
	}
	defer offsetsBuf.Release()
	total, err := device.ExclusiveScan(countsBuf, offsetsBuf)
	if err != nil {
		return nil, err
	}
	if int(total) != n {
		return nil, fmt.Errorf("sorter: %d particles binned, want %d", total, n)
	}

	permBuf, err := device.Alloc[uint32](s.p, n)
	if err != nil {
		return nil, err
	}
	defer permBuf.Release()

	offsets, perm := offsetsBuf.Data(), permBuf.Data()
	sortedKeys := make([]uint32, n)
	if err := s.p.Parallel(ctx, n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			pos := offsets[keys[i]] + ranks[i]
			perm[pos] = uint32(i)
			sortedKeys[pos] = keys[i]
		}
	}); err != nil {
		return nil, err
	}

	if err := permute(ctx, s.p, permBuf, dev); err != nil {
		return nil, err
	}
	if err := m.SyncHost(); err != nil {
		return nil, err
	}

	return &GridResult{
		Info:       info,
		Ordering:   s.ordering,
		Perm:       append([]uint32(nil), perm...),
		Counts:     append([]uint32(nil), counts...),
		Offsets:    append([]uint32(nil), offsets...),
		SortedKeys: sortedKeys,
	}, nil
}

// permute rewrites dst in place so that dst'[i] = dst[perm[i]].
func permute[T any](ctx context.Context, p device.Provider, perm *device.Buffer[uint32], dst *device.Buffer[T]) error {
	tmp, err := device.Alloc[T](p, dst.Len())
	if err != nil {
		return err
	}
	defer tmp.Release()

	if err := device.Gather(ctx, p, perm, dst, tmp); err != nil {
		return err
	}
	copy(dst.Data(), tmp.Data())
	return nil
}
