package rtnn

import (
	"fmt"
	"math"

	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/search"
	"github.com/hupe1980/rtnn/sorter"
)

// SearchMode selects range or k-nearest-neighbor search.
type SearchMode int

const (
	// RangeSearch returns up to K neighbors within Radius in traversal order.
	RangeSearch SearchMode = iota
	// KNNSearch returns the K nearest neighbors within Radius.
	KNNSearch
)

func (m SearchMode) String() string {
	switch m {
	case RangeSearch:
		return "radius"
	case KNNSearch:
		return "knn"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseSearchMode parses "radius" or "knn".
func ParseSearchMode(s string) (SearchMode, error) {
	switch s {
	case "radius", "range":
		return RangeSearch, nil
	case "knn":
		return KNNSearch, nil
	}
	return RangeSearch, fmt.Errorf("unknown search mode %q", s)
}

// Config holds the numeric parameters and modes of a search run.
type Config struct {
	// Radius is the search radius. Neighbors satisfy dist² < Radius².
	Radius float32
	// K is the number of result slots per query.
	K int
	// Mode selects range or KNN search.
	Mode SearchMode

	// SameSet searches the point set against itself.
	SameSet bool
	// Partition restricts the run to the active set. Requires SameSet and a
	// grid point sort.
	Partition bool
	// Interleave runs each phase for all batches before the next phase.
	Interleave bool

	// PointSort orders the points. With SameSet it orders the queries too.
	PointSort sorter.Mode
	// QuerySort orders the queries when SameSet is off.
	QuerySort sorter.Mode
	// LinearAxis is the key of sorter.ModeLinear.
	LinearAxis geom.Axis
	// CellRatio is radius / grid cell size.
	CellRatio float32

	// Reorder selects the first-hit locality reorder of the queries.
	Reorder search.Strategy
	// ReorderAxis is the key of search.ByCoordinate.
	ReorderAxis geom.Axis
	// BuildRatio shrinks the index used for the approximate traversal to
	// Radius/BuildRatio.
	BuildRatio float32
	// Gather materializes the reordered queries instead of passing a
	// reorder map to the exact search.
	Gather bool
	// ReorderPoints reorders the points along with the gathered queries.
	// Requires SameSet, Gather and a single batch.
	ReorderPoints bool

	// BatchCount splits the queries into contiguous batches.
	BatchCount int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Radius:      2,
		K:           50,
		Mode:        KNNSearch,
		PointSort:   sorter.ModeMorton,
		QuerySort:   sorter.ModeMorton,
		LinearAxis:  geom.AxisX,
		CellRatio:   8,
		Reorder:     search.ByFirstHitID,
		ReorderAxis: geom.AxisZ,
		BuildRatio:  1,
		BatchCount:  1,
	}
}

func finitePositive(f float32) bool {
	return f > 0 && !math.IsInf(float64(f), 0)
}

func validSortMode(m sorter.Mode) bool {
	return m >= sorter.ModeNone && m <= sorter.ModeLinear
}

// Validate checks c for invalid values and inconsistent combinations.
// It returns a *ConfigurationError.
func (c Config) Validate() error {
	switch {
	case !finitePositive(c.Radius):
		return configError("Radius", "must be positive and finite, got %g", c.Radius)
	case c.K < 1:
		return configError("K", "must be at least 1, got %d", c.K)
	case c.Mode != RangeSearch && c.Mode != KNNSearch:
		return configError("Mode", "unknown search mode %v", c.Mode)
	case !validSortMode(c.PointSort):
		return configError("PointSort", "unknown sort mode %v", c.PointSort)
	case !validSortMode(c.QuerySort):
		return configError("QuerySort", "unknown sort mode %v", c.QuerySort)
	case !c.LinearAxis.Valid():
		return configError("LinearAxis", "unknown axis %v", c.LinearAxis)
	case !c.ReorderAxis.Valid():
		return configError("ReorderAxis", "unknown axis %v", c.ReorderAxis)
	case c.Reorder < search.NoReorder || c.Reorder > search.ByFirstHitID:
		return configError("Reorder", "unknown reorder strategy %v", c.Reorder)
	case c.BatchCount < 1:
		return configError("BatchCount", "must be at least 1, got %d", c.BatchCount)
	case !finitePositive(c.BuildRatio):
		return configError("BuildRatio", "must be positive and finite, got %g", c.BuildRatio)
	}

	if !(c.CellRatio >= 1) || math.IsInf(float64(c.CellRatio), 0) {
		return configError("CellRatio", "must be at least 1, got %g", c.CellRatio)
	}
	if !finitePositive(c.Radius / c.CellRatio) {
		return configError("CellRatio", "radius %g / ratio %g is a degenerate cell size", c.Radius, c.CellRatio)
	}

	if c.Partition {
		if !c.SameSet {
			return configError("Partition", "requires SameSet")
		}
		if !c.PointSort.UsesGrid() {
			return configError("Partition", "requires a grid point sort, got %v", c.PointSort)
		}
		if c.BatchCount > 1 {
			return configError("BatchCount", "must be 1 with Partition, got %d", c.BatchCount)
		}
	}
	if c.Gather && c.Reorder == search.NoReorder {
		return configError("Gather", "requires a reorder strategy")
	}
	if c.ReorderPoints {
		if !c.SameSet || !c.Gather || c.BatchCount != 1 {
			return configError("ReorderPoints", "requires SameSet, Gather and a single batch")
		}
		if c.Partition {
			return configError("ReorderPoints", "cannot be combined with Partition")
		}
	}
	return nil
}

// buildRadius is the radius of the first index of a batch.
func (c Config) buildRadius() float32 {
	if c.Reorder == search.NoReorder {
		return c.Radius
	}
	return c.Radius / c.BuildRatio
}

// needsRebuild reports whether the exact search needs a new index.
func (c Config) needsRebuild() bool {
	return c.Reorder != search.NoReorder && (c.BuildRatio != 1 || c.ReorderPoints)
}
