package sorter

import (
	"context"

	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
)

// LinearSorter orders particles by one coordinate. It gives the weakest
// locality and is used when grid sorting is disabled.
type LinearSorter struct {
	p    device.Provider
	axis geom.Axis
}

// NewLinearSorter creates a LinearSorter keyed on axis.
func NewLinearSorter(p device.Provider, axis geom.Axis) *LinearSorter {
	return &LinearSorter{p: p, axis: axis}
}

// Sort stably sorts m by the configured coordinate and returns the
// permutation sorted position → position before the sort.
func (s *LinearSorter) Sort(ctx context.Context, m *device.Mirror[geom.Vec3]) ([]uint32, error) {
	dev := m.Device()
	pts := dev.Data()

	keys, err := device.Alloc[float32](s.p, len(pts))
	if err != nil {
		return nil, err
	}
	defer keys.Release()

	k := keys.Data()
	if err := s.p.Parallel(ctx, len(pts), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			k[i] = pts[i].Component(s.axis)
		}
	}); err != nil {
		return nil, err
	}

	perm, err := device.Sequence(ctx, s.p, len(pts))
	if err != nil {
		return nil, err
	}
	defer perm.Release()

	if err := device.SortByKey(keys, perm); err != nil {
		return nil, err
	}
	if err := permute(ctx, s.p, perm, dev); err != nil {
		return nil, err
	}
	if err := m.SyncHost(); err != nil {
		return nil, err
	}
	return append([]uint32(nil), perm.Data()...), nil
}
