package sorter

import (
	"testing"

	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/grid"
	"github.com/hupe1980/rtnn/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCPU() *device.CPU {
	return device.NewCPU(func(o *device.CPUOptions) {
		o.Workers = 4
		o.Grain = 32
	})
}

func TestGridSorter_Raster(t *testing.T) {
	p := newTestCPU()
	pts := testutil.NewRNG(1).UniformPoints(2000, 0, 3)
	orig := append([]geom.Vec3(nil), pts...)

	m, err := device.NewMirror(p, pts)
	require.NoError(t, err)
	defer m.Release()

	res, err := NewGridSorter(p, grid.Raster).Sort(t.Context(), m, 0.5, 2)
	require.NoError(t, err)

	d := res.Info.MetaDim
	assert.Zero(t, res.Info.NumCells()%(d*d*d))
	assert.Len(t, res.Counts, res.Info.NumCells())

	var sum uint32
	for _, c := range res.Counts {
		sum += c
	}
	assert.Equal(t, uint32(len(pts)), sum)

	seen := make([]bool, len(pts))
	for _, src := range res.Perm {
		require.False(t, seen[src])
		seen[src] = true
	}

	host := m.Host()
	assert.Equal(t, m.Device().Data(), host)
	for i := range host {
		assert.Equal(t, orig[res.Perm[i]], host[i])
		assert.Equal(t, res.Info.Key(res.Info.CellOf(host[i]), grid.Raster), res.SortedKeys[i])
		if i > 0 {
			require.LessOrEqual(t, res.SortedKeys[i-1], res.SortedKeys[i])
		}
	}

	for k, c := range res.Counts {
		for pos := res.Offsets[k]; pos < res.Offsets[k]+c; pos++ {
			assert.Equal(t, uint32(k), res.SortedKeys[pos])
		}
	}
}

func TestGridSorter_MortonKeysAscend(t *testing.T) {
	p := newTestCPU()
	pts := testutil.NewRNG(2).UniformPoints(1500, 0, 5)

	m, err := device.NewMirror(p, pts)
	require.NoError(t, err)
	defer m.Release()

	res, err := NewGridSorter(p, grid.Morton).Sort(t.Context(), m, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, grid.Morton, res.Ordering)

	for i := 1; i < len(res.SortedKeys); i++ {
		require.LessOrEqual(t, res.SortedKeys[i-1], res.SortedKeys[i])
	}
	for i, v := range m.Host() {
		assert.Equal(t, res.Info.Key(res.Info.CellOf(v), grid.Morton), res.SortedKeys[i])
	}
}

func TestGridSorter_SharedMirrorSeesOrder(t *testing.T) {
	p := newTestCPU()
	points, err := device.NewMirror(p, testutil.NewRNG(3).UniformPoints(500, 0, 2))
	require.NoError(t, err)
	defer points.Release()

	queries := points.Share()
	defer queries.Release()

	_, err = NewGridSorter(p, grid.Raster).Sort(t.Context(), points, 0.25, 1)
	require.NoError(t, err)

	assert.True(t, queries.Aliases(points))
	assert.Equal(t, points.Host(), queries.Host())
	assert.Equal(t, points.Device().Data(), queries.Device().Data())
}

func TestGridSorter_Deterministic(t *testing.T) {
	p := newTestCPU()
	pts := testutil.NewRNG(4).UniformPoints(3000, 0, 2)

	run := func() []uint32 {
		m, err := device.NewMirror(p, append([]geom.Vec3(nil), pts...))
		require.NoError(t, err)
		defer m.Release()

		res, err := NewGridSorter(p, grid.Morton, WithDeterministicCells()).Sort(t.Context(), m, 0.5, 1)
		require.NoError(t, err)
		return res.Perm
	}

	first := run()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, run())
	}

	// Sequential ranking keeps input order inside a cell.
	m, err := device.NewMirror(p, append([]geom.Vec3(nil), pts...))
	require.NoError(t, err)
	defer m.Release()
	res, err := NewGridSorter(p, grid.Raster, WithDeterministicCells()).Sort(t.Context(), m, 0.5, 1)
	require.NoError(t, err)
	for i := 1; i < len(res.Perm); i++ {
		if res.SortedKeys[i] == res.SortedKeys[i-1] {
			assert.Less(t, res.Perm[i-1], res.Perm[i])
		}
	}
}

func TestGridSorter_Empty(t *testing.T) {
	p := newTestCPU()
	m, err := device.NewMirror(p, []geom.Vec3{})
	require.NoError(t, err)

	_, err = NewGridSorter(p, grid.Raster).Sort(t.Context(), m, 1, 1)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestComputeBounds(t *testing.T) {
	p := newTestCPU()
	pts := []geom.Vec3{{X: -0.5, Y: 2.2, Z: 0}, {X: 3.9, Y: 0.1, Z: 1.5}}

	b, err := ComputeBounds(t.Context(), p, pts)
	require.NoError(t, err)
	assert.Equal(t, geom.Int3{-1, 0, 0}, b.Min)
	assert.Equal(t, geom.Int3{4, 3, 2}, b.Max)
	for _, v := range pts {
		assert.True(t, b.Contains(v))
	}
}

func TestLinearSorter(t *testing.T) {
	p := newTestCPU()
	pts := testutil.NewRNG(5).UniformPoints(300, -1, 1)
	orig := append([]geom.Vec3(nil), pts...)
	m, err := device.NewMirror(p, pts)
	require.NoError(t, err)
	defer m.Release()

	perm, err := NewLinearSorter(p, geom.AxisX).Sort(t.Context(), m)
	require.NoError(t, err)

	host := m.Host()
	for i := 1; i < len(host); i++ {
		require.LessOrEqual(t, host[i-1].X, host[i].X)
	}
	for i, src := range perm {
		assert.Equal(t, orig[src], host[i])
	}
	assert.Equal(t, m.Device().Data(), host)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"none": ModeNone, "morton": ModeMorton, "2": ModeRaster, "1d": ModeLinear,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("hilbert")
	assert.Error(t, err)

	assert.True(t, ModeRaster.UsesGrid())
	assert.False(t, ModeLinear.UsesGrid())
	assert.Equal(t, grid.Morton, ModeMorton.Ordering())
}
