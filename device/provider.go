package device

import (
	"context"
	"fmt"
	"runtime"

	"github.com/hupe1980/rtnn/internal/resource"
	"golang.org/x/sync/errgroup"
)

// Provider supplies device memory, parallel execution and streams.
type Provider interface {
	// Alloc reserves bytes of device memory.
	Alloc(bytes int64) error
	// Free returns bytes reserved by Alloc.
	Free(bytes int64)
	// Parallel runs fn over [0, n) split into contiguous chunks.
	Parallel(ctx context.Context, n int, fn func(lo, hi int)) error
	// Workers reports the degree of parallelism used by Parallel.
	Workers() int
	// NewStream creates an independent in-order command stream.
	NewStream(id int) *Stream
}

// CPUOptions configures the CPU provider.
type CPUOptions struct {
	// Workers is the number of goroutines used by Parallel.
	// Defaults to runtime.GOMAXPROCS(0).
	Workers int

	// Grain is the minimal chunk size handed to one worker. Defaults to 4096.
	Grain int

	// Resources enforces device memory and stream limits. Nil means unlimited.
	Resources *resource.Controller
}

// CPU is the reference Provider backed by goroutines.
type CPU struct {
	opts CPUOptions
}

var _ Provider = (*CPU)(nil)

// NewCPU creates a CPU provider.
func NewCPU(optFns ...func(*CPUOptions)) *CPU {
	opts := CPUOptions{
		Workers: runtime.GOMAXPROCS(0),
		Grain:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Grain <= 0 {
		opts.Grain = 1
	}
	return &CPU{opts: opts}
}

// Alloc implements Provider.
func (c *CPU) Alloc(bytes int64) error {
	if err := c.opts.Resources.ReserveMemory(bytes); err != nil {
		return fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, bytes, err)
	}
	return nil
}

// Free implements Provider.
func (c *CPU) Free(bytes int64) {
	c.opts.Resources.ReleaseMemory(bytes)
}

// Workers implements Provider.
func (c *CPU) Workers() int {
	return c.opts.Workers
}

// Parallel implements Provider.
func (c *CPU) Parallel(ctx context.Context, n int, fn func(lo, hi int)) error {
	if n <= 0 {
		return ctx.Err()
	}

	chunks := min(c.opts.Workers, (n+c.opts.Grain-1)/c.opts.Grain)
	if chunks <= 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(0, n)
		return nil
	}

	size := (n + chunks - 1) / chunks
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// NewStream implements Provider.
func (c *CPU) NewStream(id int) *Stream {
	return newStream(id, c.opts.Resources)
}
