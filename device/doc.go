// Package device models the parallel-primitives provider the search pipeline
// runs on.
//
// A Provider owns device memory accounting, parallel execution and command
// streams. Device data lives in reference-counted Buffers; the primitives the
// pipeline needs (sort-by-key, exclusive scan, gather, stable compaction,
// count, async device-to-host copy) are generic functions over Buffers.
//
// CPU is the reference Provider. It executes kernels on goroutines and
// streams on dedicated worker goroutines, so cross-stream overlap behaves the
// way it does on an accelerator.
//
// # Ownership
//
// Alloc returns a Buffer holding one reference to its allocation. Share and
// Slice add references; Release drops one. Memory returns to the Provider when
// the last reference is released:
//
//	pts, _ := device.FromHost(p, points)
//	qs := pts.Share() // same-set mode: queries alias points
//	_ = qs.Release()  // points stay valid
//	_ = pts.Release() // allocation freed
package device
