package rtnn

import (
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/geom"
)

// BatchResult holds the neighbors of one batch.
type BatchResult struct {
	// ID is the batch id.
	ID int
	// Radius is the launch radius.
	Radius float32
	// Limit is the number of slots per row.
	Limit int
	// Queries holds the queries in row order.
	Queries []geom.Vec3
	// QueryIndex maps a row to the index of its query in the Run input. In
	// same-set mode this is an index into the input points.
	QueryIndex []uint32
	// Neighbors holds Len()×Limit ids into Result.Points. Unused slots hold
	// backend.NoNeighbor.
	Neighbors []uint32
}

// Len returns the number of rows.
func (b *BatchResult) Len() int {
	return len(b.Queries)
}

// Row returns the Limit slots of row.
func (b *BatchResult) Row(row int) []uint32 {
	return b.Neighbors[row*b.Limit : (row+1)*b.Limit]
}

// Found returns the neighbor ids of row without empty slots.
func (b *BatchResult) Found(row int) []uint32 {
	var ids []uint32
	for _, id := range b.Row(row) {
		if id != backend.NoNeighbor {
			ids = append(ids, id)
		}
	}
	return ids
}

// Result is the outcome of one Run.
type Result struct {
	// RunID identifies the run in logs and traces.
	RunID uuid.UUID
	// Batches holds one entry per batch that had queries.
	Batches []BatchResult
	// Points holds the points in the order neighbor ids refer to.
	Points []geom.Vec3
	// PointIndex maps a neighbor id to the index of the point in the Run
	// input.
	PointIndex []uint32
	// Bounds is the padded bounding box of the point grid. It is zero when
	// points were not grid sorted.
	Bounds geom.Bounds
	// ActiveCells is the number of active grid cells in partition mode.
	ActiveCells int
	// ActiveQueries is the number of queries searched.
	ActiveQueries int
	// OriginalQueries is the number of queries before active set selection.
	OriginalQueries int
	// Histogram counts nonempty cells per active set class in partition mode.
	Histogram map[int32]int
	// Timings lists every phase in completion order.
	Timings []PhaseTiming
	// Duration is the wall time of the run.
	Duration time.Duration
}

// InputIDs maps neighbor ids to input point indices. Empty slots are
// dropped.
func (r *Result) InputIDs(ids []uint32) []uint32 {
	out := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if id != backend.NoNeighbor {
			out = append(out, r.PointIndex[id])
		}
	}
	return out
}

// PhaseTotal sums the durations of phase over all batches.
func (r *Result) PhaseTotal(phase Phase) time.Duration {
	var d time.Duration
	for _, t := range r.Timings {
		if t.Phase == phase {
			d += t.Duration
		}
	}
	return d
}
