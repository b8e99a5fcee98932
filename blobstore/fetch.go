package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// FetchOptions tunes Fetch.
type FetchOptions struct {
	// PartSize is the size of one ranged read. Defaults to 8 MiB.
	PartSize int64
	// Concurrency bounds the reads in flight. Defaults to 4.
	Concurrency int
}

// Fetch reads the whole blob. Mappable blobs are returned without copying;
// others are read in parallel parts.
func Fetch(ctx context.Context, b Blob, opts FetchOptions) ([]byte, error) {
	if m, ok := b.(Mappable); ok {
		return m.Bytes()
	}

	if opts.PartSize <= 0 {
		opts.PartSize = 8 << 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	size := b.Size()
	buf := make([]byte, size)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for off := int64(0); off < size; off += opts.PartSize {
		end := min(off+opts.PartSize, size)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := b.ReadAt(buf[off:end], off)
			if errors.Is(err, io.EOF) && int64(n) == end-off {
				err = nil
			}
			if err == nil && int64(n) < end-off {
				err = io.ErrUnexpectedEOF
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buf, nil
}
