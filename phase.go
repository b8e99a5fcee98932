package rtnn

import "time"

// Phase names one step of a run.
type Phase string

const (
	PhaseUpload      Phase = "upload"
	PhaseSortPoints  Phase = "sort_points"
	PhaseSortQueries Phase = "sort_queries"
	PhaseActiveSet   Phase = "active_set"
	PhaseBuild       Phase = "build"
	PhaseApproximate Phase = "approximate_traverse"
	PhaseReorder     Phase = "reorder"
	PhaseGather      Phase = "gather"
	PhaseRebuild     Phase = "rebuild"
	PhaseSearch      Phase = "exact_search"
	PhaseBarrier     Phase = "barrier"
)

// NoBatch is the batch id of phases that run before batching.
const NoBatch = -1

// PhaseTiming is the wall time of one phase run.
type PhaseTiming struct {
	Phase    Phase
	Batch    int
	Queries  int
	Duration time.Duration
}
