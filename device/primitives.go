package device

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Sequence returns a buffer holding 0, 1, ..., n-1.
func Sequence(ctx context.Context, p Provider, n int) (*Buffer[uint32], error) {
	b, err := Alloc[uint32](p, n)
	if err != nil {
		return nil, err
	}
	data := b.data
	if err := p.Parallel(ctx, n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			data[i] = uint32(i)
		}
	}); err != nil {
		_ = b.Release()
		return nil, err
	}
	return b, nil
}

// SortByKey stably sorts keys ascending and applies the same permutation to
// vals, both in place.
func SortByKey[K cmp.Ordered, V any](keys *Buffer[K], vals *Buffer[V]) error {
	if !keys.Live() || !vals.Live() {
		return ErrReleased
	}
	k, v := keys.Data(), vals.Data()
	if len(k) != len(v) {
		return fmt.Errorf("%w: %d keys, %d values", ErrLengthMismatch, len(k), len(v))
	}

	perm := make([]uint32, len(k))
	for i := range perm {
		perm[i] = uint32(i)
	}
	slices.SortStableFunc(perm, func(a, b uint32) int {
		return cmp.Compare(k[a], k[b])
	})

	sortedK := make([]K, len(k))
	sortedV := make([]V, len(v))
	for i, src := range perm {
		sortedK[i] = k[src]
		sortedV[i] = v[src]
	}
	copy(k, sortedK)
	copy(v, sortedV)
	return nil
}

// ExclusiveScan writes the exclusive prefix sum of in to out and returns the
// total.
func ExclusiveScan(in, out *Buffer[uint32]) (uint32, error) {
	src, dst := in.Data(), out.Data()
	if len(src) != len(dst) {
		return 0, fmt.Errorf("%w: scan %d into %d", ErrLengthMismatch, len(src), len(dst))
	}
	var sum uint32
	for i, c := range src {
		dst[i] = sum
		sum += c
	}
	return sum, nil
}

// Gather writes dst[i] = src[indices[i]].
func Gather[T any](ctx context.Context, p Provider, indices *Buffer[uint32], src, dst *Buffer[T]) error {
	idx, s, d := indices.Data(), src.Data(), dst.Data()
	if len(idx) != len(d) {
		return fmt.Errorf("%w: %d indices, %d destination slots", ErrLengthMismatch, len(idx), len(d))
	}

	var bad atomic.Int64
	bad.Store(-1)
	if err := p.Parallel(ctx, len(idx), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			j := idx[i]
			if int(j) >= len(s) {
				bad.Store(int64(i))
				return
			}
			d[i] = s[j]
		}
	}); err != nil {
		return err
	}
	if i := bad.Load(); i >= 0 {
		return fmt.Errorf("%w: indices[%d]=%d, len(src)=%d", ErrIndexOutOfRange, i, idx[i], len(s))
	}
	return nil
}

// CountTrue counts the positions in [0, n) for which pred holds.
func CountTrue(ctx context.Context, p Provider, n int, pred func(i int) bool) (int, error) {
	var total atomic.Int64
	if err := p.Parallel(ctx, n, func(lo, hi int) {
		c := 0
		for i := lo; i < hi; i++ {
			if pred(i) {
				c++
			}
		}
		total.Add(int64(c))
	}); err != nil {
		return 0, err
	}
	return int(total.Load()), nil
}

// StableCompact copies the elements of src for which pred holds into a new
// buffer, preserving their relative order.
func StableCompact[T any](ctx context.Context, p Provider, src *Buffer[T], pred func(i int) bool) (*Buffer[T], error) {
	s := src.Data()
	n, err := CountTrue(ctx, p, len(s), pred)
	if err != nil {
		return nil, err
	}
	dst, err := Alloc[T](p, n)
	if err != nil {
		return nil, err
	}
	j := 0
	for i := range s {
		if pred(i) {
			dst.data[j] = s[i]
			j++
		}
	}
	return dst, nil
}

// Reduce folds src in parallel. fold combines an element into a partial
// result, merge combines two partial results; both must be associative with
// identity as neutral element.
func Reduce[T, A any](ctx context.Context, p Provider, src []T, identity A, fold func(A, T) A, merge func(A, A) A) (A, error) {
	var (
		mu  sync.Mutex
		acc = identity
	)
	if err := p.Parallel(ctx, len(src), func(lo, hi int) {
		part := identity
		for i := lo; i < hi; i++ {
			part = fold(part, src[i])
		}
		mu.Lock()
		acc = merge(acc, part)
		mu.Unlock()
	}); err != nil {
		return identity, err
	}
	return acc, nil
}

// CopyToHost copies src into dst synchronously.
func CopyToHost[T any](dst []T, src *Buffer[T]) error {
	s := src.Data()
	if len(dst) < len(s) {
		return fmt.Errorf("%w: host %d < device %d", ErrLengthMismatch, len(dst), len(s))
	}
	copy(dst, s)
	return nil
}

// CopyToHostAsync enqueues a device-to-host copy on stream. dst must not be
// read before the stream has been synchronized.
func CopyToHostAsync[T any](ctx context.Context, stream *Stream, dst []T, src *Buffer[T]) error {
	return stream.Enqueue(ctx, func(context.Context) error {
		return CopyToHost(dst, src)
	})
}
