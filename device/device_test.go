package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/rtnn/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCPU(limit int64) (*CPU, *resource.Controller) {
	rc := resource.NewController(resource.Config{DeviceMemoryBytes: limit})
	return NewCPU(func(o *CPUOptions) {
		o.Workers = 4
		o.Grain = 8
		o.Resources = rc
	}), rc
}

func TestBuffer_ShareAndRelease(t *testing.T) {
	p, rc := newTestCPU(0)

	b, err := FromHost(p, []uint32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, int64(16), rc.MemoryUsage())

	alias := b.Share()
	assert.True(t, alias.Aliases(b))
	view := b.Slice(1, 3)
	assert.Equal(t, []uint32{2, 3}, view.Data())

	require.NoError(t, b.Release())
	assert.Nil(t, b.Data())
	assert.Equal(t, []uint32{1, 2, 3, 4}, alias.Data())
	assert.Equal(t, int64(16), rc.MemoryUsage())

	assert.ErrorIs(t, b.Release(), ErrReleased)

	require.NoError(t, alias.Release())
	require.NoError(t, view.Release())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestAlloc_OutOfMemory(t *testing.T) {
	p, _ := newTestCPU(64)

	_, err := Alloc[uint64](p, 16)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
}

func TestSortByKey_Stable(t *testing.T) {
	p, _ := newTestCPU(0)

	keys, err := FromHost(p, []float32{3, 1, 2, 1, 3})
	require.NoError(t, err)
	vals, err := FromHost(p, []uint32{0, 1, 2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, SortByKey(keys, vals))
	assert.Equal(t, []float32{1, 1, 2, 3, 3}, keys.Data())
	assert.Equal(t, []uint32{1, 3, 2, 0, 4}, vals.Data())
}

func TestSortByKey_LengthMismatch(t *testing.T) {
	p, _ := newTestCPU(0)
	keys, _ := Alloc[uint32](p, 3)
	vals, _ := Alloc[uint32](p, 2)
	assert.ErrorIs(t, SortByKey(keys, vals), ErrLengthMismatch)
}

func TestExclusiveScan(t *testing.T) {
	p, _ := newTestCPU(0)
	in, _ := FromHost(p, []uint32{2, 0, 3, 1})
	out, _ := Alloc[uint32](p, 4)

	total, err := ExclusiveScan(in, out)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), total)
	assert.Equal(t, []uint32{0, 2, 2, 5}, out.Data())
}

func TestGather(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestCPU(0)

	src, _ := FromHost(p, []string{"a", "b", "c"})
	idx, _ := FromHost(p, []uint32{2, 0, 1, 2})
	dst, _ := Alloc[string](p, 4)

	require.NoError(t, Gather(ctx, p, idx, src, dst))
	assert.Equal(t, []string{"c", "a", "b", "c"}, dst.Data())

	badIdx, _ := FromHost(p, []uint32{0, 0, 0, 7})
	assert.ErrorIs(t, Gather(ctx, p, badIdx, src, dst), ErrIndexOutOfRange)
}

func TestStableCompact(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestCPU(0)

	data := make([]int, 100)
	for i := range data {
		data[i] = i
	}
	src, _ := FromHost(p, data)

	dst, err := StableCompact(ctx, p, src, func(i int) bool { return i%3 == 0 })
	require.NoError(t, err)
	require.Equal(t, 34, dst.Len())
	for i, v := range dst.Data() {
		assert.Equal(t, i*3, v)
	}
}

func TestReduce(t *testing.T) {
	p, _ := newTestCPU(0)
	src := make([]int, 1000)
	for i := range src {
		src[i] = i
	}
	sum, err := Reduce(context.Background(), p, src, 0,
		func(a, v int) int { return a + v },
		func(a, b int) int { return a + b })
	require.NoError(t, err)
	assert.Equal(t, 499500, sum)
}

func TestStream_OrderAndBarrier(t *testing.T) {
	p, _ := newTestCPU(0)
	s := p.NewStream(0)
	defer s.Close()

	var seq []int
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Enqueue(t.Context(), func(context.Context) error {
			seq = append(seq, i)
			return nil
		}))
	}
	require.NoError(t, s.Synchronize())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seq)
}

func TestStream_StickyError(t *testing.T) {
	p, _ := newTestCPU(0)
	s := p.NewStream(3)
	defer s.Close()

	boom := errors.New("boom")
	var ran atomic.Int32
	require.NoError(t, s.Enqueue(t.Context(), func(context.Context) error { return boom }))
	require.NoError(t, s.Enqueue(t.Context(), func(context.Context) error {
		ran.Add(1)
		return nil
	}))

	var cleaned atomic.Int32
	require.NoError(t, s.Finally(func() { cleaned.Add(1) }))

	assert.ErrorIs(t, s.Synchronize(), boom)
	assert.Equal(t, int32(0), ran.Load())
	assert.Equal(t, int32(1), cleaned.Load())
	assert.ErrorIs(t, SynchronizeAll(s, nil), boom)
}

func TestCopyToHostAsync(t *testing.T) {
	p, _ := newTestCPU(0)
	s := p.NewStream(1)
	defer s.Close()

	src, _ := FromHost(p, []uint32{9, 8, 7})
	dst := make([]uint32, 3)
	require.NoError(t, CopyToHostAsync(t.Context(), s, dst, src))
	require.NoError(t, s.Synchronize())
	assert.Equal(t, []uint32{9, 8, 7}, dst)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Enqueue(t.Context(), func(context.Context) error { return nil }), ErrStreamClosed)
}
