// Package rtnn provides fixed-radius range and k-nearest-neighbor search over
// 3-D point sets on top of a ray-tracing style spatial index.
//
// A Searcher runs the whole pipeline for one point set and one query set:
// points and queries are uploaded to the device, spatially sorted along a
// uniform grid (Morton or raster order) or one coordinate, optionally pruned
// to an active set, split into batches and searched through a
// backend.Backend.
//
// # Quick Start
//
//	cfg := rtnn.DefaultConfig()
//	cfg.Radius = 0.05
//	cfg.K = 10
//	cfg.SameSet = true
//
//	s, err := rtnn.NewSearcher(cfg)
//	if err != nil {
//	    return err
//	}
//	res, err := s.Run(ctx, points, nil)
//	for _, b := range res.Batches {
//	    for row := range b.Len() {
//	        fmt.Println(b.QueryIndex[row], res.InputIDs(b.Found(row)))
//	    }
//	}
//
// # Batch Pipeline
//
// Every batch runs BUILD at Radius/BuildRatio, then, when a reorder strategy
// is configured, an approximate first-hit traversal whose hits drive a query
// reorder (optionally materialized by a gather), a REBUILD at the true radius
// when needed, and finally the exact search. Batches run on their own
// device.Stream. WithEndToEnd drops the per-phase synchronization in favor of
// one barrier before the results are read.
//
// # Backends
//
// The default backend is gridindex, an exact CPU emulation of a box
// traversal. Any backend.Backend can be injected with WithBackend.
package rtnn
