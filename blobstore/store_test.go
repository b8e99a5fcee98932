package blobstore

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	ctx := t.Context()

	_, err := s.Open(ctx, "missing.rtnn")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "sets/points.rtnn", []byte("points")))
	require.NoError(t, s.Put(ctx, "sets/queries.rtnn", []byte("queries")))
	require.NoError(t, s.Put(ctx, "out/result.rtnr", []byte("result")))

	names, err := s.List(ctx, "sets/")
	require.NoError(t, err)
	assert.Equal(t, []string{"sets/points.rtnn", "sets/queries.rtnn"}, names)

	b, err := s.Open(ctx, "sets/queries.rtnn")
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.Size())

	buf := make([]byte, 4)
	n, err := b.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "ries", string(buf[:n]))

	data, err := Fetch(ctx, b, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "queries", string(data))
	require.NoError(t, b.Close())

	require.NoError(t, s.Put(ctx, "sets/points.rtnn", []byte("replaced")))
	b, err = s.Open(ctx, "sets/points.rtnn")
	require.NoError(t, err)
	assert.Equal(t, int64(8), b.Size())
	require.NoError(t, b.Close())

	require.NoError(t, s.Delete(ctx, "sets/points.rtnn"))
	require.NoError(t, s.Delete(ctx, "sets/points.rtnn"))
	_, err = s.Open(ctx, "sets/points.rtnn")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	names, err := NewLocalStore(t.TempDir()+"/absent").List(t.Context(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestMemoryStore_PutCopies(t *testing.T) {
	s := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, s.Put(t.Context(), "x", data))
	data[0] = 'z'

	b, err := s.Open(t.Context(), "x")
	require.NoError(t, err)
	got, err := Fetch(t.Context(), b, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

// remoteBlob hides Mappable so Fetch issues ranged reads.
type remoteBlob struct {
	r     *bytes.Reader
	reads atomic.Int32
	fail  error
}

func (b *remoteBlob) ReadAt(p []byte, off int64) (int, error) {
	b.reads.Add(1)
	if b.fail != nil {
		return 0, b.fail
	}
	return b.r.ReadAt(p, off)
}

func (b *remoteBlob) Close() error { return nil }
func (b *remoteBlob) Size() int64  { return b.r.Size() }

func TestFetch_Parts(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10)
	b := &remoteBlob{r: bytes.NewReader(payload)}

	got, err := Fetch(t.Context(), b, FetchOptions{PartSize: 16, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int32(7), b.reads.Load())
}

func TestFetch_Error(t *testing.T) {
	boom := errors.New("boom")
	b := &remoteBlob{r: bytes.NewReader(make([]byte, 64)), fail: boom}
	_, err := Fetch(t.Context(), b, FetchOptions{PartSize: 16})
	assert.ErrorIs(t, err, boom)
}

func TestFetch_Short(t *testing.T) {
	b := &shortBlob{size: 32}
	_, err := Fetch(t.Context(), b, FetchOptions{PartSize: 16})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type shortBlob struct{ size int64 }

func (b *shortBlob) ReadAt(p []byte, _ int64) (int, error) { return len(p) / 2, nil }
func (b *shortBlob) Close() error                          { return nil }
func (b *shortBlob) Size() int64                           { return b.size }
