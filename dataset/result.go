package dataset

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Rows is a dense row-major table of neighbor ids.
type Rows struct {
	Width int
	IDs   []uint32
}

// Len returns the number of rows.
func (r Rows) Len() int {
	if r.Width == 0 {
		return 0
	}
	return len(r.IDs) / r.Width
}

// Row returns row i.
func (r Rows) Row(i int) []uint32 {
	return r.IDs[i*r.Width : (i+1)*r.Width]
}

// EncodeRows writes rows in the result format.
func EncodeRows(w io.Writer, rows Rows, c Codec) error {
	if rows.Width < 0 || (rows.Width == 0 && len(rows.IDs) > 0) || (rows.Width > 0 && len(rows.IDs)%rows.Width != 0) {
		return fmt.Errorf("dataset: %d ids do not fill rows of width %d", len(rows.IDs), rows.Width)
	}

	raw := make([]byte, len(rows.IDs)*4)
	for i, id := range rows.IDs {
		binary.LittleEndian.PutUint32(raw[i*4:], id)
	}
	payload, used, err := compress(raw, c)
	if err != nil {
		return err
	}
	h := header{codec: used, count: uint64(rows.Len()), width: uint32(rows.Width)}
	if err := writeHeader(w, resultMagic, h); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// DecodeRows parses a result file held in memory.
func DecodeRows(data []byte) (Rows, error) {
	h, payload, err := parseHeader(data, resultMagic)
	if err != nil {
		return Rows{}, err
	}
	n, err := payloadSize(h.count, uint64(h.width))
	if err != nil {
		return Rows{}, err
	}
	size, err := payloadSize(uint64(n), 4)
	if err != nil {
		return Rows{}, err
	}
	raw, err := decompress(payload, h.codec, size)
	if err != nil {
		return Rows{}, err
	}

	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return Rows{Width: int(h.width), IDs: ids}, nil
}
