package grid

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/hupe1980/rtnn/geom"
)

var (
	// ErrDegenerateCell is returned when radius/cellRatio is not a positive
	// finite cell size.
	ErrDegenerateCell = errors.New("grid: degenerate cell size")

	// ErrTooManyCells is returned when the grid does not fit 32-bit cell keys.
	ErrTooManyCells = errors.New("grid: cell count exceeds 32-bit keys")
)

// Ordering is the serialization of cells inside a meta-grid block.
type Ordering int

const (
	// Raster orders cells row-major with x slowest and z fastest.
	Raster Ordering = iota
	// Morton orders cells along a bit-interleaved Z-curve inside each block.
	Morton
)

func (o Ordering) String() string {
	switch o {
	case Raster:
		return "raster"
	case Morton:
		return "morton"
	default:
		return fmt.Sprintf("ordering(%d)", int(o))
	}
}

// Cell is an integer cell coordinate.
type Cell struct {
	X, Y, Z int
}

// Info describes one grid over a particle set.
type Info struct {
	// Bounds is the padded bounding box; Min inclusive, Max exclusive.
	Bounds geom.Bounds
	// CellSize is the edge length of one cell.
	CellSize float32
	// Dims is the per-axis cell count, a multiple of MetaDim.
	Dims [3]int
	// MetaDim is the edge length of a meta-grid block in cells.
	MetaDim int
	// MetaDims is the per-axis meta-grid block count.
	MetaDims [3]int

	rankOnce sync.Once
	rank     []uint32
}

// New sizes a grid for bounds with cells of radius/cellRatio.
func New(bounds geom.Bounds, radius, cellRatio float32) (*Info, error) {
	cellSize := radius / cellRatio
	if !(cellSize > 0) || math.IsInf(float64(cellSize), 0) {
		return nil, fmt.Errorf("%w: radius %g / ratio %g", ErrDegenerateCell, radius, cellRatio)
	}

	g := &Info{Bounds: bounds, CellSize: cellSize}

	extent := bounds.Extent()
	var raw [3]int
	for i := 0; i < 3; i++ {
		raw[i] = max(1, int(math.Ceil(float64(extent[i])/float64(cellSize))))
	}

	g.MetaDim = min(raw[0], raw[1], raw[2])
	for i := 0; i < 3; i++ {
		g.MetaDims[i] = (raw[i] + g.MetaDim - 1) / g.MetaDim
		g.Dims[i] = g.MetaDims[i] * g.MetaDim
	}

	if n := uint64(g.Dims[0]) * uint64(g.Dims[1]) * uint64(g.Dims[2]); n > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d cells", ErrTooManyCells, n)
	}
	return g, nil
}

// NumCells returns MetaBlocks × MetaDim³.
func (g *Info) NumCells() int {
	return g.MetaBlocks() * g.MetaDim * g.MetaDim * g.MetaDim
}

// MetaBlocks returns the number of meta-grid blocks.
func (g *Info) MetaBlocks() int {
	return g.MetaDims[0] * g.MetaDims[1] * g.MetaDims[2]
}

// CellOf returns the cell containing v. Coordinates outside the grid are
// clamped onto the border cells.
func (g *Info) CellOf(v geom.Vec3) Cell {
	return Cell{
		X: g.axisCell(v.X, 0),
		Y: g.axisCell(v.Y, 1),
		Z: g.axisCell(v.Z, 2),
	}
}

func (g *Info) axisCell(f float32, axis int) int {
	c := int(math.Floor(float64((f - float32(g.Bounds.Min[axis])) / g.CellSize)))
	return min(max(c, 0), g.Dims[axis]-1)
}

// Contains reports whether c lies inside the grid.
func (g *Info) Contains(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.Z >= 0 &&
		c.X < g.Dims[0] && c.Y < g.Dims[1] && c.Z < g.Dims[2]
}

// Index returns the global row-major index of c.
func (g *Info) Index(c Cell) int {
	return (c.X*g.Dims[1]+c.Y)*g.Dims[2] + c.Z
}

// Key returns the sort key of c under ordering o. Raster keys are the global
// row-major Index and ignore MetaDim, so cells of one meta block are not
// contiguous. Morton keys are block-major.
func (g *Info) Key(c Cell, o Ordering) uint32 {
	if o != Morton {
		return uint32(g.Index(c))
	}

	d := g.MetaDim
	meta := (c.X/d*g.MetaDims[1]+c.Y/d)*g.MetaDims[2] + c.Z/d
	lx, ly, lz := c.X%d, c.Y%d, c.Z%d
	return uint32(meta*d*d*d) + g.localRank(lx, ly, lz)
}

// localRank maps an in-block coordinate to the position of its Morton code
// among all in-block codes, keeping keys dense when MetaDim is not a power
// of two.
func (g *Info) localRank(x, y, z int) uint32 {
	d := g.MetaDim
	if d&(d-1) == 0 {
		return uint32(Encode(uint32(x), uint32(y), uint32(z)))
	}
	g.rankOnce.Do(g.buildRank)
	return g.rank[(x*d+y)*d+z]
}

func (g *Info) buildRank() {
	d := g.MetaDim
	n := d * d * d
	order := make([]uint32, n)
	codes := make([]uint64, n)
	for i := range order {
		order[i] = uint32(i)
		x, y, z := i/(d*d), (i/d)%d, i%d
		codes[i] = Encode(uint32(x), uint32(y), uint32(z))
	}
	slices.SortFunc(order, func(a, b uint32) int {
		switch {
		case codes[a] < codes[b]:
			return -1
		case codes[a] > codes[b]:
			return 1
		}
		return 0
	})
	g.rank = make([]uint32, n)
	for r, i := range order {
		g.rank[i] = uint32(r)
	}
}

// ForEachInCube calls fn for every in-grid cell of the cube of half-width r
// centred at c.
func (g *Info) ForEachInCube(c Cell, r int, fn func(Cell)) {
	x0, x1 := max(c.X-r, 0), min(c.X+r, g.Dims[0]-1)
	y0, y1 := max(c.Y-r, 0), min(c.Y+r, g.Dims[1]-1)
	z0, z1 := max(c.Z-r, 0), min(c.Z+r, g.Dims[2]-1)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				fn(Cell{x, y, z})
			}
		}
	}
}

// CubeCount sums counts over the cube of half-width r centred at c. counts is
// indexed by Key under ordering o.
func (g *Info) CubeCount(c Cell, r int, counts []uint32, o Ordering) uint64 {
	var total uint64
	g.ForEachInCube(c, r, func(n Cell) {
		total += uint64(counts[g.Key(n, o)])
	})
	return total
}

// CellAt inverts Index.
func (g *Info) CellAt(index int) Cell {
	yz := g.Dims[1] * g.Dims[2]
	return Cell{X: index / yz, Y: (index % yz) / g.Dims[2], Z: index % g.Dims[2]}
}
