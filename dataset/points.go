package dataset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/rtnn/geom"
)

const pointBytes = 12

// EncodePoints writes points in the binary format.
func EncodePoints(w io.Writer, points []geom.Vec3, c Codec) error {
	raw := make([]byte, len(points)*pointBytes)
	for i, p := range points {
		off := i * pointBytes
		binary.LittleEndian.PutUint32(raw[off:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(raw[off+4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(raw[off+8:], math.Float32bits(p.Z))
	}

	payload, used, err := compress(raw, c)
	if err != nil {
		return err
	}
	if err := writeHeader(w, pointMagic, header{codec: used, count: uint64(len(points))}); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// DecodePoints parses a binary point file held in memory.
func DecodePoints(data []byte) ([]geom.Vec3, error) {
	h, payload, err := parseHeader(data, pointMagic)
	if err != nil {
		return nil, err
	}
	size, err := payloadSize(h.count, pointBytes)
	if err != nil {
		return nil, err
	}
	raw, err := decompress(payload, h.codec, size)
	if err != nil {
		return nil, err
	}

	points := make([]geom.Vec3, h.count)
	for i := range points {
		off := i * pointBytes
		points[i] = geom.Vec3{
			X: math.Float32frombits(binary.LittleEndian.Uint32(raw[off:])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(raw[off+4:])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(raw[off+8:])),
		}
		if !points[i].Finite() {
			return nil, fmt.Errorf("%w: point %d is not finite", ErrInvalidFormat, i)
		}
	}
	return points, nil
}

// ReadPoints reads r to the end and decodes it in the binary format.
func ReadPoints(r io.Reader) ([]geom.Vec3, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return DecodePoints(buf.Bytes())
}
