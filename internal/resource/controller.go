package resource

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would exceed the
// device memory budget.
var ErrMemoryLimitExceeded = errors.New("device memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// DeviceMemoryBytes is the device memory budget. 0 means track only.
	DeviceMemoryBytes int64

	// MaxActiveStreams bounds the streams that execute work at the same time.
	// 0 means unlimited.
	MaxActiveStreams int64

	// IOBytesPerSec throttles dataset reads. 0 means unlimited.
	IOBytesPerSec int64
}

// Controller enforces a Config.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted
	memUsed atomic.Int64
	memPeak atomic.Int64

	streamSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.DeviceMemoryBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.DeviceMemoryBytes)
	}
	if cfg.MaxActiveStreams > 0 {
		c.streamSem = semaphore.NewWeighted(cfg.MaxActiveStreams)
	}
	if cfg.IOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSec), int(cfg.IOBytesPerSec))
	}

	return c
}

// ReserveMemory reserves bytes of device memory without blocking.
func (c *Controller) ReserveMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}

	used := c.memUsed.Add(bytes)
	for {
		peak := c.memPeak.Load()
		if used <= peak || c.memPeak.CompareAndSwap(peak, used) {
			break
		}
	}
	return nil
}

// ReleaseMemory returns bytes to the budget.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// PeakMemoryUsage returns the high-water mark of reserved bytes.
func (c *Controller) PeakMemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memPeak.Load()
}

// MemoryLimit returns the configured budget (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.DeviceMemoryBytes
}

// AcquireStream blocks until a stream execution slot is free.
func (c *Controller) AcquireStream(ctx context.Context) error {
	if c == nil || c.streamSem == nil {
		return nil
	}
	return c.streamSem.Acquire(ctx, 1)
}

// ReleaseStream frees a slot taken by AcquireStream.
func (c *Controller) ReleaseStream() {
	if c == nil || c.streamSem == nil {
		return
	}
	c.streamSem.Release(1)
}

// WaitIO blocks until n bytes of dataset IO are allowed.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Reader wraps r so every Read is charged against the IO budget.
func (c *Controller) Reader(ctx context.Context, r io.Reader) io.Reader {
	if c == nil || c.ioLimiter == nil {
		return r
	}
	return &throttledReader{ctx: ctx, r: r, c: c}
}

type throttledReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.c.WaitIO(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
