package testutil

import (
	"math/rand"
	"slices"
	"sync"

	"github.com/hupe1980/rtnn/geom"
)

// RNG is a seeded, mutex-guarded random source.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// UniformPoints returns n points uniformly distributed in [lo, hi)³.
func (r *RNG) UniformPoints(n int, lo, hi float32) []geom.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()

	span := hi - lo
	pts := make([]geom.Vec3, n)
	for i := range pts {
		pts[i] = geom.Vec3{
			X: lo + r.rand.Float32()*span,
			Y: lo + r.rand.Float32()*span,
			Z: lo + r.rand.Float32()*span,
		}
	}
	return pts
}

// ClusteredPoints returns n points scattered around k random centres with
// the given spread, all inside [lo, hi)³.
func (r *RNG) ClusteredPoints(n, k int, spread, lo, hi float32) []geom.Vec3 {
	centres := r.UniformPoints(k, lo, hi)

	r.mu.Lock()
	defer r.mu.Unlock()

	clamp := func(f float32) float32 {
		return min(max(f, lo), hi-1e-6)
	}
	pts := make([]geom.Vec3, n)
	for i := range pts {
		c := centres[r.rand.Intn(k)]
		pts[i] = geom.Vec3{
			X: clamp(c.X + float32(r.rand.NormFloat64())*spread),
			Y: clamp(c.Y + float32(r.rand.NormFloat64())*spread),
			Z: clamp(c.Z + float32(r.rand.NormFloat64())*spread),
		}
	}
	return pts
}

// RangeNeighbors returns the ids of all points strictly within radius of q,
// ascending.
func RangeNeighbors(points []geom.Vec3, q geom.Vec3, radius float32) []uint32 {
	r2 := radius * radius
	var ids []uint32
	for i, p := range points {
		if q.Dist2(p) < r2 {
			ids = append(ids, uint32(i))
		}
	}
	return ids
}

// KNN returns the ids of the k nearest points strictly within radius of q,
// nearest first, ties broken by id.
func KNN(points []geom.Vec3, q geom.Vec3, k int, radius float32) []uint32 {
	ids := RangeNeighbors(points, q, radius)
	slices.SortStableFunc(ids, func(a, b uint32) int {
		da, db := q.Dist2(points[a]), q.Dist2(points[b])
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}

// Row returns the non-sentinel ids of one fixed-width result row.
func Row(ids []uint32, row, width int, sentinel uint32) []uint32 {
	var out []uint32
	for _, id := range ids[row*width : (row+1)*width] {
		if id != sentinel {
			out = append(out, id)
		}
	}
	return out
}
