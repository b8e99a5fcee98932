package device

import (
	"sync/atomic"
	"unsafe"
)

type allocation struct {
	provider Provider
	bytes    int64
	refs     atomic.Int64
}

func (a *allocation) drop() {
	if a.refs.Add(-1) == 0 {
		a.provider.Free(a.bytes)
	}
}

// Buffer is one handle to a reference-counted device allocation.
type Buffer[T any] struct {
	data     []T
	alloc    *allocation
	released atomic.Bool
}

// Alloc allocates a zeroed buffer of n elements.
func Alloc[T any](p Provider, n int) (*Buffer[T], error) {
	var zero T
	bytes := int64(n) * int64(unsafe.Sizeof(zero))
	if err := p.Alloc(bytes); err != nil {
		return nil, err
	}
	a := &allocation{provider: p, bytes: bytes}
	a.refs.Store(1)
	return &Buffer[T]{data: make([]T, n), alloc: a}, nil
}

// FromHost allocates a buffer and uploads src into it.
func FromHost[T any](p Provider, src []T) (*Buffer[T], error) {
	b, err := Alloc[T](p, len(src))
	if err != nil {
		return nil, err
	}
	copy(b.data, src)
	return b, nil
}

// Data returns the device view. It is nil once the handle is released.
func (b *Buffer[T]) Data() []T {
	if b == nil || b.released.Load() {
		return nil
	}
	return b.data
}

// Len returns the element count of the view.
func (b *Buffer[T]) Len() int {
	if b == nil || b.released.Load() {
		return 0
	}
	return len(b.data)
}

// Share returns a new handle aliasing the same memory.
func (b *Buffer[T]) Share() *Buffer[T] {
	return b.view(b.data)
}

// Slice returns a handle viewing elements [lo, hi) of b.
func (b *Buffer[T]) Slice(lo, hi int) *Buffer[T] {
	return b.view(b.data[lo:hi:hi])
}

func (b *Buffer[T]) view(data []T) *Buffer[T] {
	b.alloc.refs.Add(1)
	return &Buffer[T]{data: data, alloc: b.alloc}
}

// Aliases reports whether b and o share an allocation.
func (b *Buffer[T]) Aliases(o *Buffer[T]) bool {
	return b != nil && o != nil && b.alloc == o.alloc
}

// Release drops this handle's reference.
func (b *Buffer[T]) Release() error {
	if b == nil {
		return nil
	}
	if b.released.Swap(true) {
		return ErrReleased
	}
	b.alloc.drop()
	return nil
}

// Live reports whether the handle has not been released.
func (b *Buffer[T]) Live() bool {
	return b != nil && !b.released.Load()
}
