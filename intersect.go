package raymark

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// parallelEpsilon bounds the determinant below which a ray is considered
// parallel to a triangle's plane.
const parallelEpsilon = 1e-12

// IntersectTriangle tests r against the triangle abc with the
// Möller-Trumbore algorithm. On a hit it returns the distance t >= 0 along
// the ray and the barycentric weights u, v of b and c at the hit point.
// Rays parallel to the triangle and degenerate triangles never hit.
// Both faces are hit; callers that cull use the sign of the dot product
// between the ray direction and the face normal.
func IntersectTriangle(r Ray, a, b, c r3.Vec) (t, u, v float64, ok bool) {
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	p := r3.Cross(r.Dir, e2)
	det := r3.Dot(e1, p)
	if math.Abs(det) < parallelEpsilon {
		return 0, 0, 0, false
	}
	inv := 1 / det
	s := r3.Sub(r.Origin, a)
	u = r3.Dot(s, p) * inv
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := r3.Cross(s, e1)
	v = r3.Dot(r.Dir, q) * inv
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = r3.Dot(e2, q) * inv
	if t < 0 {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

// Nearest returns the closest hit of r among targets and the index of the
// target hit. When nothing is hit, or targets is empty, the index is -1.
// Of hits at identical distance the first target in the list wins.
func Nearest(r Ray, targets []Surface) (Intersection, int) {
	best := Intersection{Distance: math.Inf(1), Face: -1}
	bestIdx := -1
	for i, s := range targets {
		if s == nil {
			continue
		}
		hit, ok := s.Intersect(r)
		if !ok || hit.Distance < 0 {
			continue
		}
		if hit.Distance < best.Distance {
			best = hit
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return Intersection{Face: -1}, -1
	}
	return best, bestIdx
}

// Triangle is a single world space triangle usable as a Surface.
// Its normal follows the counter-clockwise winding of A, B, C.
type Triangle struct {
	A, B, C r3.Vec
}

// Normal returns the unit face normal.
func (tri Triangle) Normal() r3.Vec {
	return r3.Unit(r3.Cross(r3.Sub(tri.B, tri.A), r3.Sub(tri.C, tri.A)))
}

// Intersect implements Surface.
func (tri Triangle) Intersect(r Ray) (Intersection, bool) {
	t, _, _, ok := IntersectTriangle(r, tri.A, tri.B, tri.C)
	if !ok {
		return Intersection{Face: -1}, false
	}
	return Intersection{
		Point:    r.At(t),
		Normal:   tri.Normal(),
		Distance: t,
		Face:     0,
	}, true
}
