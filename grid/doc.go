// Package grid implements the uniform cell grid used to serialize particles
// into locality-preserving orders.
//
// The grid covers the integer-floored bounding box of a particle set with
// cubic cells of size radius/cellRatio. Cells are tiled into cubic meta-grid
// blocks of MetaDim³ cells. Blocks are visited in raster order; inside a block
// the cells are visited in raster or Morton (Z-curve) order. Every cell maps
// to a dense key in [0, NumCells), so keys double as counting-sort bins.
//
//	info, _ := grid.New(bounds, radius, 2)
//	key := info.Key(info.CellOf(p), grid.Morton)
package grid
