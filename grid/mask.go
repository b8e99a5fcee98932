package grid

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// CellMask is the set of cells whose neighborhood is cheaply satisfiable.
// Keys follow the ordering the mask was built with.
type CellMask struct {
	bm *roaring.Bitmap
}

// NewCellMask returns an empty mask.
func NewCellMask() *CellMask {
	return &CellMask{bm: roaring.New()}
}

// Set marks key active.
func (m *CellMask) Set(key uint32) {
	m.bm.Add(key)
}

// Active reports whether key is active.
func (m *CellMask) Active(key uint32) bool {
	return m.bm.Contains(key)
}

// Count returns the number of active cells.
func (m *CellMask) Count() int {
	return int(m.bm.GetCardinality())
}

// Keys returns the active keys in ascending order.
func (m *CellMask) Keys() []uint32 {
	return m.bm.ToArray()
}
