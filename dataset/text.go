package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/rtnn/geom"
)

// ReadText parses one point per line. Coordinates are separated by
// whitespace or commas; blank lines and lines starting with '#' are skipped.
func ReadText(r io.Reader) ([]geom.Vec3, error) {
	var points []geom.Vec3

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || s[0] == '#' {
			continue
		}

		fields := strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: line %d: want 3 coordinates, got %d", ErrInvalidFormat, line, len(fields))
		}

		var c [3]float32
		for i := range c {
			f, err := strconv.ParseFloat(fields[i], 32)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidFormat, line, err)
			}
			c[i] = float32(f)
		}
		p := geom.Vec3{X: c[0], Y: c[1], Z: c[2]}
		if !p.Finite() {
			return nil, fmt.Errorf("%w: line %d: coordinate is not finite", ErrInvalidFormat, line)
		}
		points = append(points, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// WriteText writes one "x y z" line per point.
func WriteText(w io.Writer, points []geom.Vec3) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		bw.WriteString(strconv.FormatFloat(float64(p.X), 'g', -1, 32))
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatFloat(float64(p.Y), 'g', -1, 32))
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatFloat(float64(p.Z), 'g', -1, 32))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
