package search

import (
	"math"
	"testing"

	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/backend/gridindex"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	p       *device.CPU
	exec    *Executor
	handle  backend.Handle
	points  []geom.Vec3
	queries *device.Mirror[geom.Vec3]
}

func newFixture(t *testing.T, buildRadius float32) *fixture {
	t.Helper()
	p := device.NewCPU(func(o *device.CPUOptions) {
		o.Workers = 4
		o.Grain = 16
	})
	rng := testutil.NewRNG(11)
	points := rng.UniformPoints(600, 0, 1)

	b := gridindex.New(p)
	h, err := b.Build(t.Context(), points, buildRadius)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	queries, err := device.NewMirror(p, rng.UniformPoints(120, -0.2, 1.2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = queries.Release() })

	return &fixture{p: p, exec: NewExecutor(p, b), handle: h, points: points, queries: queries}
}

func assertPermutation(t *testing.T, order []uint32) {
	t.Helper()
	seen := make([]bool, len(order))
	for _, q := range order {
		require.False(t, seen[q])
		seen[q] = true
	}
}

func TestReorder_GatherRoundTrip(t *testing.T) {
	for _, strategy := range []Strategy{ByCoordinate, ByFirstHitID} {
		t.Run(strategy.String(), func(t *testing.T) {
			f := newFixture(t, 0.05)
			orig := append([]geom.Vec3(nil), f.queries.Host()...)

			hits, err := f.exec.ApproximateTraverse(t.Context(), f.handle, f.queries.Device(), 0.1)
			require.NoError(t, err)
			defer hits.Release()
			h := hits.Data()

			order, err := NewReorderer(f.p, strategy, geom.AxisZ).Order(t.Context(), hits, f.points)
			require.NoError(t, err)
			defer order.Release()
			o := order.Data()
			assertPermutation(t, o)

			key := func(q uint32) float64 {
				id := h[q]
				if id == backend.NoHit {
					return math.Inf(1)
				}
				if strategy == ByFirstHitID {
					return float64(id)
				}
				return float64(f.points[id].Z)
			}
			for i := 1; i < len(o); i++ {
				require.LessOrEqual(t, key(o[i-1]), key(o[i]))
				if key(o[i-1]) == key(o[i]) {
					require.Less(t, o[i-1], o[i])
				}
			}

			require.NoError(t, GatherQueries(t.Context(), f.p, order, f.queries))
			for i, q := range o {
				assert.Equal(t, orig[q], f.queries.Host()[i])
			}
			assert.Equal(t, f.queries.Device().Data(), f.queries.Host())
		})
	}
}

func TestApproximateTraverse_NoHitForFarQueries(t *testing.T) {
	f := newFixture(t, 0.05)
	far, err := device.FromHost(f.p, []geom.Vec3{{X: 9, Y: 9, Z: 9}, f.points[3]})
	require.NoError(t, err)
	defer far.Release()

	hits, err := f.exec.ApproximateTraverse(t.Context(), f.handle, far, 0.05)
	require.NoError(t, err)
	defer hits.Release()
	assert.Equal(t, backend.NoHit, hits.Data()[0])
	assert.NotEqual(t, backend.NoHit, hits.Data()[1])
}

func TestExactSearch_ReorderMapMatchesGather(t *testing.T) {
	f := newFixture(t, 0.1)
	const radius, k = 0.1, 8

	plain := make([]uint32, f.queries.Len()*k)
	require.NoError(t, f.exec.ExactSearch(t.Context(), f.handle, ExactRequest{
		Queries: f.queries.Device(), Radius: radius, Limit: k, KNN: true, Host: plain,
	}))

	hits, err := f.exec.ApproximateTraverse(t.Context(), f.handle, f.queries.Device(), radius)
	require.NoError(t, err)
	defer hits.Release()
	order, err := NewReorderer(f.p, ByCoordinate, geom.AxisZ).Order(t.Context(), hits, f.points)
	require.NoError(t, err)
	defer order.Release()

	stream := f.p.NewStream(0)
	defer stream.Close()

	mapped := make([]uint32, len(plain))
	require.NoError(t, f.exec.ExactSearch(t.Context(), f.handle, ExactRequest{
		Queries: f.queries.Device(), Radius: radius, Limit: k, KNN: true,
		ReorderMap: order, Host: mapped, Stream: stream,
	}))
	require.NoError(t, stream.Synchronize())
	assert.Equal(t, plain, mapped)

	require.NoError(t, GatherQueries(t.Context(), f.p, order, f.queries))
	gathered := make([]uint32, len(plain))
	require.NoError(t, f.exec.ExactSearch(t.Context(), f.handle, ExactRequest{
		Queries: f.queries.Device(), Radius: radius, Limit: k, KNN: true, Host: gathered, Stream: stream,
	}))
	require.NoError(t, stream.Synchronize())
	for i, q := range order.Data() {
		assert.Equal(t, plain[int(q)*k:int(q+1)*k], gathered[i*k:(i+1)*k])
	}
}

func TestExactSearch_HostTooSmall(t *testing.T) {
	f := newFixture(t, 0.1)
	err := f.exec.ExactSearch(t.Context(), f.handle, ExactRequest{
		Queries: f.queries.Device(), Radius: 0.1, Limit: 4, Host: make([]uint32, 3),
	})
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("1")
	require.NoError(t, err)
	assert.Equal(t, ByCoordinate, s)
	s, err = ParseStrategy("id")
	require.NoError(t, err)
	assert.Equal(t, ByFirstHitID, s)
	_, err = ParseStrategy("3")
	assert.Error(t, err)
}
