// Package spatial holds the geometry the gating engine needs: axis-aligned
// boxes, rigid poses and the transform-preserving reparent.
package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultTolerance is the expansion, in metres, applied to every candidate
// box before an overlap test.
const DefaultTolerance = 0.03

// Box is an axis-aligned bounding box.
type Box struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// BoxFromCenter builds a box of the given full size centred on c.
func BoxFromCenter(c, size mgl64.Vec3) Box {
	half := size.Mul(0.5)
	return Box{Min: c.Sub(half), Max: c.Add(half)}
}

// Empty reports whether the box has no volume on some axis.
func (b Box) Empty() bool {
	return b.Max.X() < b.Min.X() || b.Max.Y() < b.Min.Y() || b.Max.Z() < b.Min.Z()
}

// Center returns the midpoint of the box.
func (b Box) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the extent of the box along each axis.
func (b Box) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

// Expand grows the box by t on every side.
func (b Box) Expand(t float64) Box {
	d := mgl64.Vec3{t, t, t}
	return Box{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Intersects reports whether two boxes overlap on all three axes.
// Touching faces count as overlap.
func (b Box) Intersects(o Box) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

// Touches expands the candidate by tol and tests it against target.
func Touches(candidate, target Box, tol float64) bool {
	return candidate.Expand(tol).Intersects(target)
}

// Transform maps a local-space box through m and returns the world-space
// box enclosing all eight transformed corners.
func (b Box) Transform(m mgl64.Mat4) Box {
	out := Box{
		Min: mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	for i := 0; i < 8; i++ {
		corner := mgl64.Vec3{b.Min.X(), b.Min.Y(), b.Min.Z()}
		if i&1 != 0 {
			corner[0] = b.Max.X()
		}
		if i&2 != 0 {
			corner[1] = b.Max.Y()
		}
		if i&4 != 0 {
			corner[2] = b.Max.Z()
		}
		p := m.Mul4x1(corner.Vec4(1)).Vec3()
		for a := 0; a < 3; a++ {
			out.Min[a] = math.Min(out.Min[a], p[a])
			out.Max[a] = math.Max(out.Max[a], p[a])
		}
	}
	return out
}
