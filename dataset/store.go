package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/hupe1980/rtnn/blobstore"
	"github.com/hupe1980/rtnn/geom"
	"github.com/hupe1980/rtnn/internal/resource"
)

type options struct {
	resources *resource.Controller
	fetch     blobstore.FetchOptions
	codec     Codec
}

// Option configures Load and Save.
type Option func(*options)

// WithResources charges reads against the controller's IO budget.
// Throttled reads are sequential.
func WithResources(rc *resource.Controller) Option {
	return func(o *options) { o.resources = rc }
}

// WithFetchOptions tunes parallel ranged reads of remote blobs.
func WithFetchOptions(f blobstore.FetchOptions) Option {
	return func(o *options) { o.fetch = f }
}

// WithCodec selects the payload codec for Save and SaveRows.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

func applyOptions(optFns []Option) options {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// IsText reports whether name is read as a text point file.
func IsText(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".xyz", ".csv":
		return true
	}
	return false
}

func read(ctx context.Context, store blobstore.Store, name string, o options) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if o.resources == nil {
		data, err := blobstore.Fetch(ctx, b, o.fetch)
		if err != nil {
			return nil, err
		}
		// Mappable blobs alias memory that Close releases.
		if _, ok := b.(blobstore.Mappable); ok {
			data = bytes.Clone(data)
		}
		return data, nil
	}

	r := o.resources.Reader(ctx, io.NewSectionReader(b, 0, b.Size()))
	return io.ReadAll(r)
}

// Load reads a point set, choosing the text or binary format by extension.
func Load(ctx context.Context, store blobstore.Store, name string, optFns ...Option) ([]geom.Vec3, error) {
	data, err := read(ctx, store, name, applyOptions(optFns))
	if err != nil {
		return nil, fmt.Errorf("dataset: load %s: %w", name, err)
	}

	var points []geom.Vec3
	if IsText(name) {
		points, err = ReadText(bytes.NewReader(data))
	} else {
		points, err = DecodePoints(data)
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: load %s: %w", name, err)
	}
	return points, nil
}

// Save writes a point set, choosing the text or binary format by extension.
func Save(ctx context.Context, store blobstore.Store, name string, points []geom.Vec3, optFns ...Option) error {
	o := applyOptions(optFns)

	var buf bytes.Buffer
	var err error
	if IsText(name) {
		err = WriteText(&buf, points)
	} else {
		err = EncodePoints(&buf, points, o.codec)
	}
	if err != nil {
		return fmt.Errorf("dataset: save %s: %w", name, err)
	}
	if err := store.Put(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("dataset: save %s: %w", name, err)
	}
	return nil
}

// LoadRows reads a result file.
func LoadRows(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (Rows, error) {
	data, err := read(ctx, store, name, applyOptions(optFns))
	if err != nil {
		return Rows{}, fmt.Errorf("dataset: load %s: %w", name, err)
	}
	rows, err := DecodeRows(data)
	if err != nil {
		return Rows{}, fmt.Errorf("dataset: load %s: %w", name, err)
	}
	return rows, nil
}

// SaveRows writes a result file.
func SaveRows(ctx context.Context, store blobstore.Store, name string, rows Rows, optFns ...Option) error {
	o := applyOptions(optFns)

	var buf bytes.Buffer
	if err := EncodeRows(&buf, rows, o.codec); err != nil {
		return fmt.Errorf("dataset: save %s: %w", name, err)
	}
	if err := store.Put(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("dataset: save %s: %w", name, err)
	}
	return nil
}
