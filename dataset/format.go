package dataset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Version is the format version written by this package.
const Version uint16 = 1

const (
	pointMagic  = "RTNN"
	resultMagic = "RTNR"

	pointHeaderSize  = 16
	resultHeaderSize = 20
)

var (
	// ErrInvalidFormat is returned for truncated or corrupt files.
	ErrInvalidFormat = errors.New("dataset: invalid format")
	// ErrUnsupportedVersion is returned for files written by a newer version.
	ErrUnsupportedVersion = errors.New("dataset: unsupported version")
	// ErrUnknownCodec is returned for an unrecognized codec id or name.
	ErrUnknownCodec = errors.New("dataset: unknown codec")
)

// Codec selects payload compression.
type Codec uint16

const (
	// CodecNone stores the payload as is.
	CodecNone Codec = 0
	// CodecLZ4 compresses the payload as one LZ4 block.
	CodecLZ4 Codec = 1
	// CodecZstd compresses the payload as one zstd frame.
	CodecZstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint16(c))
	}
}

// ParseCodec parses "none", "lz4" or "zstd".
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}

// compress returns the encoded payload and the codec actually used.
// Incompressible LZ4 input falls back to CodecNone.
func compress(raw []byte, c Codec) ([]byte, Codec, error) {
	if len(raw) == 0 {
		return raw, CodecNone, nil
	}
	switch c {
	case CodecNone:
		return raw, CodecNone, nil
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			return raw, CodecNone, nil
		}
		return dst[:n], CodecLZ4, nil
	case CodecZstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(raw, nil), CodecZstd, nil
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownCodec, uint16(c))
	}
}

// decompress expands payload into exactly size bytes.
func decompress(payload []byte, c Codec, size int) ([]byte, error) {
	switch c {
	case CodecNone:
		if len(payload) != size {
			return nil, fmt.Errorf("%w: payload is %d bytes, want %d", ErrInvalidFormat, len(payload), size)
		}
		return payload, nil
	case CodecLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
		}
		if n != size {
			return nil, fmt.Errorf("%w: lz4 block is %d bytes, want %d", ErrInvalidFormat, n, size)
		}
		return dst, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("%w: zstd frame is %d bytes, want %d", ErrInvalidFormat, len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, uint16(c))
	}
}

type header struct {
	codec Codec
	count uint64
	width uint32 // result files only
}

func writeHeader(w io.Writer, magic string, h header) error {
	size := pointHeaderSize
	if magic == resultMagic {
		size = resultHeaderSize
	}
	buf := make([]byte, size)
	copy(buf, magic)
	binary.LittleEndian.PutUint16(buf[4:], Version)
	binary.LittleEndian.PutUint16(buf[6:], uint16(h.codec))
	binary.LittleEndian.PutUint64(buf[8:], h.count)
	if magic == resultMagic {
		binary.LittleEndian.PutUint32(buf[16:], h.width)
	}
	_, err := w.Write(buf)
	return err
}

func parseHeader(data []byte, magic string) (header, []byte, error) {
	size := pointHeaderSize
	if magic == resultMagic {
		size = resultHeaderSize
	}
	if len(data) < size || string(data[:4]) != magic {
		return header{}, nil, fmt.Errorf("%w: missing %s header", ErrInvalidFormat, magic)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v > Version {
		return header{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	h := header{
		codec: Codec(binary.LittleEndian.Uint16(data[6:])),
		count: binary.LittleEndian.Uint64(data[8:]),
	}
	if magic == resultMagic {
		h.width = binary.LittleEndian.Uint32(data[16:])
	}
	return h, data[size:], nil
}

// payloadSize returns count*elem bytes, rejecting sizes that do not fit an int.
func payloadSize(count uint64, elem uint64) (int, error) {
	if elem != 0 && count > uint64(math.MaxInt)/elem {
		return 0, fmt.Errorf("%w: %d elements overflow", ErrInvalidFormat, count)
	}
	return int(count * elem), nil
}
