// Package activeset selects the queries whose neighborhoods are cheaply
// satisfiable in same-set partition mode.
//
// Every nonempty cell is classified by growing a cube of cells around it
// ring by ring. Ring r covers (2r+1) cells per axis. The first ring whose
// clipped cube holds at least k particles gives the cell class r+1, unless
// the ring is already wider than the largest cube inscribed in the search
// sphere (2·radius/√2), in which case the cell gets class 0 and needs a full
// search. Cells of class 1 and 2 are active.
package activeset

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/grid"
	"github.com/hupe1980/rtnn/sorter"
)

// MaxActiveClass is the largest class treated as active.
const MaxActiveClass = 2

// ErrInvalidParams is returned for a non-positive radius or k.
var ErrInvalidParams = errors.New("activeset: invalid parameters")

// Classes holds the class of every cell, indexed by cell key. Empty cells
// hold Empty.
type Classes []int32

// Empty marks a cell without particles.
const Empty int32 = -1

// Report summarizes one selection.
type Report struct {
	// ActiveCells is the number of active cells.
	ActiveCells int
	// ActiveQueries is the number of queries kept.
	ActiveQueries int
	// OriginalQueries is the number of queries before compaction.
	OriginalQueries int
	// Histogram counts nonempty cells per class.
	Histogram map[int32]int
	// Kept lists the pre-compaction positions of the kept queries, ascending.
	Kept []uint32
}

// Selector classifies cells and compacts queries.
type Selector struct {
	p      device.Provider
	radius float32
	k      int
}

// NewSelector creates a Selector for a search of radius with k neighbors.
func NewSelector(p device.Provider, radius float32, k int) (*Selector, error) {
	if !(radius > 0) || math.IsInf(float64(radius), 0) || k < 1 {
		return nil, fmt.Errorf("%w: radius %g, k %d", ErrInvalidParams, radius, k)
	}
	return &Selector{p: p, radius: radius, k: k}, nil
}

// MaxWidth returns the edge of the largest cube inscribed in the search
// sphere.
func (s *Selector) MaxWidth() float32 {
	return s.radius / float32(math.Sqrt2) * 2
}

// Classify computes the class of every nonempty cell of res.
func (s *Selector) Classify(ctx context.Context, res *sorter.GridResult) (Classes, error) {
	info := res.Info
	classes := make(Classes, info.NumCells())
	maxWidth := s.MaxWidth()
	k := uint64(s.k)

	err := s.p.Parallel(ctx, info.NumCells(), func(lo, hi int) {
		for idx := lo; idx < hi; idx++ {
			c := info.CellAt(idx)
			key := info.Key(c, res.Ordering)
			if res.Counts[key] == 0 {
				classes[key] = Empty
				continue
			}
			classes[key] = s.classify(info, c, res, maxWidth, k)
		}
	})
	if err != nil {
		return nil, err
	}
	return classes, nil
}

func (s *Selector) classify(info *grid.Info, c grid.Cell, res *sorter.GridResult, maxWidth float32, k uint64) int32 {
	for ring := 0; ; ring++ {
		if float32(2*ring+1)*info.CellSize > maxWidth {
			return 0
		}
		if info.CubeCount(c, ring, res.Counts, res.Ordering) >= k {
			return int32(ring + 1)
		}
	}
}

// Mask returns the active cells of classes.
func Mask(classes Classes) *grid.CellMask {
	m := grid.NewCellMask()
	for key, c := range classes {
		if c > 0 && c <= MaxActiveClass {
			m.Set(uint32(key))
		}
	}
	return m
}

// Select classifies the cells of res, keeps the queries that fall into active
// cells and replaces the query buffer of queries with the compacted set.
// queries must be in the sorted order described by res.
func (s *Selector) Select(ctx context.Context, queries *device.Mirror[geom.Vec3], res *sorter.GridResult) (*Report, *grid.CellMask, error) {
	n := queries.Len()
	if n != len(res.SortedKeys) {
		return nil, nil, fmt.Errorf("activeset: %d queries, %d sorted keys", n, len(res.SortedKeys))
	}

	classes, err := s.Classify(ctx, res)
	if err != nil {
		return nil, nil, err
	}
	mask := Mask(classes)

	keep := bitset.New(uint(n))
	for i, key := range res.SortedKeys {
		if mask.Active(key) {
			keep.Set(uint(i))
		}
	}

	compact, err := device.StableCompact(ctx, s.p, queries.Device(), func(i int) bool {
		return keep.Test(uint(i))
	})
	if err != nil {
		return nil, nil, err
	}
	if err := queries.Replace(compact); err != nil {
		return nil, nil, err
	}

	rep := &Report{
		ActiveCells:     mask.Count(),
		ActiveQueries:   int(keep.Count()),
		OriginalQueries: n,
		Histogram:       histogram(classes),
		Kept:            make([]uint32, 0, keep.Count()),
	}
	for i, ok := keep.NextSet(0); ok; i, ok = keep.NextSet(i + 1) {
		rep.Kept = append(rep.Kept, uint32(i))
	}
	return rep, mask, nil
}

func histogram(classes Classes) map[int32]int {
	h := make(map[int32]int)
	for _, c := range classes {
		if c != Empty {
			h[c]++
		}
	}
	return h
}
