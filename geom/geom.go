// Package geom provides the 3-D primitives shared by the search pipeline.
package geom

import (
	"math"
)

// Axis selects one coordinate component of a Vec3.
type Axis int

const (
	// AxisX selects the x component.
	AxisX Axis = iota
	// AxisY selects the y component.
	AxisY
	// AxisZ selects the z component.
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "unknown"
	}
}

// Valid reports whether a names one of the three axes.
func (a Axis) Valid() bool {
	return a >= AxisX && a <= AxisZ
}

// ParseAxis parses "x", "y" or "z".
func ParseAxis(s string) (Axis, bool) {
	switch s {
	case "x", "X":
		return AxisX, true
	case "y", "Y":
		return AxisY, true
	case "z", "Z":
		return AxisZ, true
	}
	return AxisX, false
}

// Vec3 is a point or query position.
type Vec3 struct {
	X, Y, Z float32
}

// Component returns the coordinate on axis a.
func (v Vec3) Component(a Axis) float32 {
	switch a {
	case AxisY:
		return v.Y
	case AxisZ:
		return v.Z
	default:
		return v.X
	}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Dist2 returns the squared euclidean distance between v and o.
func (v Vec3) Dist2(o Vec3) float32 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

// ChebyshevWithin reports whether o lies inside the axis-aligned cube of
// half-width h centred at v (boundary inclusive).
func (v Vec3) ChebyshevWithin(o Vec3, h float32) bool {
	return abs32(v.X-o.X) <= h && abs32(v.Y-o.Y) <= h && abs32(v.Z-o.Z) <= h
}

// Finite reports whether all components are finite.
func (v Vec3) Finite() bool {
	return !isInfOrNaN(v.X) && !isInfOrNaN(v.Y) && !isInfOrNaN(v.Z)
}

// Int3 is an integer coordinate triple.
type Int3 [3]int

// Bounds is an axis-aligned box over integer-floored coordinates.
// Min is inclusive, Max is exclusive.
type Bounds struct {
	Min, Max Int3
}

// Extent returns Max - Min per axis.
func (b Bounds) Extent() Int3 {
	return Int3{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Contains reports whether v lies inside b.
func (b Bounds) Contains(v Vec3) bool {
	c := [3]float32{v.X, v.Y, v.Z}
	for i := 0; i < 3; i++ {
		if c[i] < float32(b.Min[i]) || c[i] >= float32(b.Max[i]) {
			return false
		}
	}
	return true
}

// EmptyBounds returns the identity element of Union.
func EmptyBounds() Bounds {
	return Bounds{
		Min: Int3{math.MaxInt, math.MaxInt, math.MaxInt},
		Max: Int3{math.MinInt, math.MinInt, math.MinInt},
	}
}

// Extend grows the (unpadded) floored box to include v.
func (b *Bounds) Extend(v Vec3) {
	f := Int3{floor(v.X), floor(v.Y), floor(v.Z)}
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], f[i])
		b.Max[i] = max(b.Max[i], f[i])
	}
}

// Union merges two unpadded floored boxes.
func (b Bounds) Union(o Bounds) Bounds {
	var r Bounds
	for i := 0; i < 3; i++ {
		r.Min[i] = min(b.Min[i], o.Min[i])
		r.Max[i] = max(b.Max[i], o.Max[i])
	}
	return r
}

// Pad turns an inclusive floored maximum into an exclusive one. Floored
// coordinates never reach the true maximum, so the box is padded by one unit
// to enclose every particle strictly.
func (b Bounds) Pad() Bounds {
	b.Max = Int3{b.Max[0] + 1, b.Max[1] + 1, b.Max[2] + 1}
	return b
}

func floor(f float32) int {
	return int(math.Floor(float64(f)))
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func isInfOrNaN(f float32) bool {
	d := float64(f)
	return math.IsInf(d, 0) || math.IsNaN(d)
}
