package device

// Mirror pairs a device buffer with its host-resident copy.
//
// Mirrors created with Share alias both the device allocation and the host
// slice, so in-place updates through one are visible through the other.
// Replace installs a new device buffer and gives the mirror a fresh host
// slice; aliases keep the old data.
type Mirror[T any] struct {
	dev  *Buffer[T]
	host []T
}

// NewMirror uploads host into a new device buffer. The mirror keeps host as
// its host copy.
func NewMirror[T any](p Provider, host []T) (*Mirror[T], error) {
	dev, err := FromHost(p, host)
	if err != nil {
		return nil, err
	}
	return &Mirror[T]{dev: dev, host: host}, nil
}

// Device returns the device buffer.
func (m *Mirror[T]) Device() *Buffer[T] {
	return m.dev
}

// Host returns the host copy.
func (m *Mirror[T]) Host() []T {
	return m.host
}

// Len returns the element count.
func (m *Mirror[T]) Len() int {
	return m.dev.Len()
}

// Share returns a mirror aliasing m.
func (m *Mirror[T]) Share() *Mirror[T] {
	return &Mirror[T]{dev: m.dev.Share(), host: m.host}
}

// Slice returns a mirror of elements [lo, hi).
func (m *Mirror[T]) Slice(lo, hi int) *Mirror[T] {
	return &Mirror[T]{dev: m.dev.Slice(lo, hi), host: m.host[lo:hi:hi]}
}

// Aliases reports whether m and o share device memory.
func (m *Mirror[T]) Aliases(o *Mirror[T]) bool {
	return m.dev.Aliases(o.dev)
}

// SyncHost copies the device contents into the host copy in place.
func (m *Mirror[T]) SyncHost() error {
	if !m.dev.Live() {
		return ErrReleased
	}
	return CopyToHost(m.host, m.dev)
}

// Replace takes ownership of dev, releases the previous device handle and
// downloads dev into a newly allocated host copy.
func (m *Mirror[T]) Replace(dev *Buffer[T]) error {
	old := m.dev
	m.dev = dev
	m.host = make([]T, dev.Len())
	copy(m.host, dev.Data())
	return old.Release()
}

// Adopt makes m an alias of o, releasing m's previous device handle.
func (m *Mirror[T]) Adopt(o *Mirror[T]) error {
	old := m.dev
	m.dev = o.dev.Share()
	m.host = o.host
	return old.Release()
}

// Release drops the device handle.
func (m *Mirror[T]) Release() error {
	return m.dev.Release()
}
