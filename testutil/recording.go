package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/geom"
)

// LaunchRecord captures one Launch call.
type LaunchRecord struct {
	BuildRadius float32
	Queries     int
	Params      backend.LaunchParams
}

// RecordingBackend wraps a Backend and records every call.
type RecordingBackend struct {
	backend.Backend

	// FailBuild, when set, is returned by the n-th Build (1-based) instead of
	// calling the wrapped backend.
	FailBuild   error
	FailBuildAt int

	// FailLaunch, when set, is returned by the n-th Launch (1-based).
	FailLaunch   error
	FailLaunchAt int

	mu       sync.Mutex
	builds   []float32
	launches []LaunchRecord
	closed   int
}

// NewRecordingBackend wraps b.
func NewRecordingBackend(b backend.Backend) *RecordingBackend {
	return &RecordingBackend{Backend: b}
}

type recordedHandle struct {
	backend.Handle
	rec *RecordingBackend
}

func (h *recordedHandle) Close() error {
	h.rec.mu.Lock()
	h.rec.closed++
	h.rec.mu.Unlock()
	return h.Handle.Close()
}

// Build records radius and delegates.
func (r *RecordingBackend) Build(ctx context.Context, points []geom.Vec3, radius float32) (backend.Handle, error) {
	r.mu.Lock()
	r.builds = append(r.builds, radius)
	n := len(r.builds)
	r.mu.Unlock()

	if r.FailBuild != nil && n == r.FailBuildAt {
		return nil, r.FailBuild
	}
	h, err := r.Backend.Build(ctx, points, radius)
	if err != nil {
		return nil, err
	}
	return &recordedHandle{Handle: h, rec: r}, nil
}

// Launch records the call and delegates.
func (r *RecordingBackend) Launch(ctx context.Context, h backend.Handle, queries []geom.Vec3, p backend.LaunchParams, out []uint32) error {
	rh := h.(*recordedHandle)

	rec := LaunchRecord{BuildRadius: rh.Radius(), Queries: len(queries), Params: p}
	if p.ReorderMap != nil {
		rec.Params.ReorderMap = append([]uint32(nil), p.ReorderMap...)
	}
	r.mu.Lock()
	r.launches = append(r.launches, rec)
	n := len(r.launches)
	r.mu.Unlock()

	if r.FailLaunch != nil && n == r.FailLaunchAt {
		return r.FailLaunch
	}
	return r.Backend.Launch(ctx, rh.Handle, queries, p, out)
}

// Builds returns the build radii in call order.
func (r *RecordingBackend) Builds() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float32(nil), r.builds...)
}

// Launches returns the recorded launches in call order.
func (r *RecordingBackend) Launches() []LaunchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LaunchRecord(nil), r.launches...)
}

// Closed returns the number of closed handles.
func (r *RecordingBackend) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
