// Package sorter reorders particle buffers into locality-preserving orders.
//
// GridSorter bins particles into the cells of a uniform grid with a parallel
// counting sort and serializes cells in Morton or raster order. LinearSorter
// is the fallback that orders particles by a single coordinate.
//
// Both sort the device buffer in place and mirror the new order to the host
// copy, so aliases of the same particle set observe it.
package sorter
