// Package backend defines the spatial index interface the search pipeline
// builds and launches against.
//
// A Backend indexes a point set as axis-aligned boxes of half-width equal to
// the build radius and answers per-query launches:
//
//	h, err := b.Build(ctx, points, radius)
//	defer h.Close()
//	err = b.Launch(ctx, h, queries, backend.LaunchParams{Radius: radius, Limit: k}, out)
//
// Package gridindex provides the reference CPU implementation.
package backend
