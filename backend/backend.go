package backend

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/rtnn/geom"
)

const (
	// NoNeighbor fills result slots that hold no neighbor.
	NoNeighbor uint32 = math.MaxUint32

	// NoHit is the first-hit id of a query whose approximate traversal
	// found nothing.
	NoHit = NoNeighbor
)

var (
	// ErrBuildFailure is wrapped by every Build error.
	ErrBuildFailure = errors.New("backend: build failed")

	// ErrLaunchFailure is wrapped by every Launch error.
	ErrLaunchFailure = errors.New("backend: launch failed")

	// ErrInvalidHandle is returned for a handle of another backend or one
	// that has been closed.
	ErrInvalidHandle = errors.New("backend: invalid handle")
)

// Handle is an index built at one radius.
type Handle interface {
	// Radius returns the build radius.
	Radius() float32
	// Len returns the number of indexed points.
	Len() int
	// Close frees the index.
	Close() error
}

// LaunchParams configures one launch. It is passed by value per call.
type LaunchParams struct {
	// Radius is the search radius; neighbors satisfy dist² < Radius².
	Radius float32
	// Limit is the number of result slots per query (k in KNN mode).
	Limit int
	// KNN keeps the Limit nearest neighbors instead of the first Limit hits.
	KNN bool
	// Approximate reports the first box hit without the sphere test.
	Approximate bool
	// ReorderMap, when set, makes launch position i process query
	// ReorderMap[i]. Result rows are still indexed by query.
	ReorderMap []uint32
}

// Validate checks p against a launch over n queries.
func (p LaunchParams) Validate(n int) error {
	if !(p.Radius > 0) || math.IsInf(float64(p.Radius), 0) {
		return fmt.Errorf("radius %g", p.Radius)
	}
	if p.Limit < 1 {
		return fmt.Errorf("limit %d", p.Limit)
	}
	if p.ReorderMap != nil && len(p.ReorderMap) != n {
		return fmt.Errorf("reorder map covers %d of %d queries", len(p.ReorderMap), n)
	}
	return nil
}

// Backend builds spatial indexes and launches queries against them.
type Backend interface {
	// Build indexes points as boxes of half-width radius.
	Build(ctx context.Context, points []geom.Vec3, radius float32) (Handle, error)

	// Launch searches every query and writes len(queries)×p.Limit ids into
	// out, row per query, unused slots set to NoNeighbor.
	Launch(ctx context.Context, h Handle, queries []geom.Vec3, p LaunchParams, out []uint32) error
}

// BuildError wraps a failure of Build.
func BuildError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBuildFailure, fmt.Sprintf(format, args...))
}

// LaunchError wraps a failure of Launch.
func LaunchError(cause error) error {
	if errors.Is(cause, ErrLaunchFailure) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrLaunchFailure, cause)
}
