package rtnn

import (
	"errors"

	"github.com/hupe1980/rtnn/backend"
	"github.com/hupe1980/rtnn/device"
	"github.com/hupe1980/rtnn/geom"
)

// batch is the per-batch state shared by the phases on its stream.
type batch struct {
	id         int
	radius     float32
	queries    *device.Mirror[geom.Vec3]
	queryIndex []uint32
	stream     *device.Stream

	handle backend.Handle
	hits   *device.Buffer[uint32]
	order  *device.Buffer[uint32]

	host []uint32
}

func (b *batch) size() int {
	return b.queries.Len()
}

func (b *batch) result(limit int) BatchResult {
	return BatchResult{
		ID:         b.id,
		Radius:     b.radius,
		Limit:      limit,
		Queries:    b.queries.Host(),
		QueryIndex: b.queryIndex,
		Neighbors:  b.host,
	}
}

// closeHandle closes the current index, if any.
func (b *batch) closeHandle() error {
	if b.handle == nil {
		return nil
	}
	err := b.handle.Close()
	b.handle = nil
	return err
}

// release frees everything the batch owns. It runs after the barrier.
func (b *batch) release() error {
	if b.stream != nil {
		// The sticky stream error has already been reported by the barrier.
		_ = b.stream.Close()
	}
	errs := []error{b.closeHandle()}
	if b.hits != nil {
		errs = append(errs, b.hits.Release())
	}
	if b.order != nil {
		errs = append(errs, b.order.Release())
	}
	errs = append(errs, b.queries.Release())
	return errors.Join(errs...)
}

// splitRanges splits [0, n) into count contiguous ranges whose sizes differ
// by at most one. Ranges may be empty when count > n.
func splitRanges(n, count int) [][2]int {
	ranges := make([][2]int, count)
	base, rem := n/count, n%count
	lo := 0
	for i := range ranges {
		size := base
		if i < rem {
			size++
		}
		ranges[i] = [2]int{lo, lo + size}
		lo += size
	}
	return ranges
}
