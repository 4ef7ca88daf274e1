// Package mesh provides triangle meshes that rays can hit.
//
// A Mesh keeps its triangles in local space together with a world
// transform. Rays are moved into local space for testing against a
// bounding interval hierarchy so transforming a mesh never rebuilds it.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/raymark"
	"github.com/soypat/raymark/internal/d3"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrEmpty is returned when a mesh would have no usable triangles.
var ErrEmpty = errors.New("mesh has no triangles")

// Side selects which faces of a mesh rays can hit.
type Side uint8

const (
	// Double faces are hit from both sides.
	Double Side = iota
	// Front faces are hit only when the ray travels against their normal.
	Front
	// Back faces are hit only when the ray travels along their normal.
	Back
)

func (s Side) String() string {
	switch s {
	case Double:
		return "double"
	case Front:
		return "front"
	case Back:
		return "back"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// ParseSide returns the Side named by s.
func ParseSide(s string) (Side, error) {
	switch s {
	case "", "double":
		return Double, nil
	case "front":
		return Front, nil
	case "back":
		return Back, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// Triangle is a triangle with counter-clockwise winding when seen from
// the side its normal points to. N holds optional vertex normals;
// a triangle without them is flat shaded.
type Triangle struct {
	V [3]r3.Vec
	N [3]r3.Vec
}

// Normal returns the unit normal given by the winding of V.
func (t Triangle) Normal() r3.Vec {
	e1 := r3.Sub(t.V[1], t.V[0])
	e2 := r3.Sub(t.V[2], t.V[0])
	return r3.Unit(r3.Cross(e1, e2))
}

// Centroid returns the mean of the vertices.
func (t Triangle) Centroid() r3.Vec {
	return r3.Scale(1.0/3, r3.Add(t.V[0], r3.Add(t.V[1], t.V[2])))
}

// Degenerate reports whether twice the triangle area is at most tol.
func (t Triangle) Degenerate(tol float64) bool {
	e1 := r3.Sub(t.V[1], t.V[0])
	e2 := r3.Sub(t.V[2], t.V[0])
	return r3.Norm(r3.Cross(e1, e2)) <= tol
}

// HasNormals reports whether all three vertex normals are set.
func (t Triangle) HasNormals() bool {
	return t.N[0] != (r3.Vec{}) && t.N[1] != (r3.Vec{}) && t.N[2] != (r3.Vec{})
}

// orient swaps the winding of t when it disagrees with its vertex normals.
func (t *Triangle) orient() {
	n := r3.Add(t.N[0], r3.Add(t.N[1], t.N[2]))
	e1 := r3.Sub(t.V[1], t.V[0])
	e2 := r3.Sub(t.V[2], t.V[0])
	if r3.Dot(r3.Cross(e1, e2), n) < 0 {
		t.V[1], t.V[2] = t.V[2], t.V[1]
		t.N[1], t.N[2] = t.N[2], t.N[1]
	}
}

func (t Triangle) finite() bool {
	return d3.IsFinite(t.V[0]) && d3.IsFinite(t.V[1]) && d3.IsFinite(t.V[2]) &&
		d3.IsFinite(t.N[0]) && d3.IsFinite(t.N[1]) && d3.IsFinite(t.N[2])
}

// Mesh is an immutable set of local space triangles placed in the world by
// a transform. Intersect is safe for concurrent use. SetTransform, SetSide
// and Release are not and must be synchronized by the owner.
type Mesh struct {
	tris []Triangle
	// order maps hierarchy order back to the index given to New,
	// pos to the index among kept triangles.
	order  []int
	pos    []int
	nodes  []bihNode
	bounds d3.Box
	pad    r3.Vec

	world  d3.Transform
	inv    d3.Transform
	normal d3.Transform
	side   Side

	released bool
}

var _ raymark.Surface = (*Mesh)(nil)

// New builds a mesh from triangles. Degenerate triangles are dropped.
// The mesh starts with the identity transform and Double sided faces.
func New(triangles []Triangle) (*Mesh, error) {
	kept := make([]Triangle, 0, len(triangles))
	input := make([]int, 0, len(triangles))
	for i, t := range triangles {
		if !t.finite() {
			return nil, fmt.Errorf("triangle %d has non-finite components", i)
		}
		if t.Degenerate(0) {
			continue
		}
		kept = append(kept, t)
		input = append(input, i)
	}
	if len(kept) == 0 {
		return nil, ErrEmpty
	}
	m := &Mesh{bounds: d3.Empty()}
	for _, t := range kept {
		for _, v := range t.V {
			m.bounds = m.bounds.Include(v)
		}
	}
	size := m.bounds.Size()
	m.pad = d3.Elem(1e-9 * (1 + math.Max(size.X, math.Max(size.Y, size.Z))))

	perm := make([]int, len(kept))
	for i := range perm {
		perm[i] = i
	}
	m.nodes = buildBIH(kept, perm, m.bounds)
	m.tris = make([]Triangle, len(kept))
	m.order = make([]int, len(kept))
	for i, p := range perm {
		m.tris[i] = kept[p]
		m.order[i] = input[p]
	}
	m.pos = perm
	return m, nil
}

// Euler returns the rotation about X, then Y, then Z of the local frame.
// Angles are in radians.
func Euler(x, y, z float64) r3.Rotation {
	qx := quat.Number(r3.NewRotation(x, r3.Vec{X: 1}))
	qy := quat.Number(r3.NewRotation(y, r3.Vec{Y: 1}))
	qz := quat.Number(r3.NewRotation(z, r3.Vec{Z: 1}))
	return r3.Rotation(quat.Mul(qx, quat.Mul(qy, qz)))
}

// SetTransform places the mesh in the world. rot may be the zero Rotation
// for no rotation. A zero scale component is rejected since the mesh
// could no longer be hit.
func (m *Mesh) SetTransform(position, scale r3.Vec, rot r3.Rotation) error {
	world := d3.ComposeTransform(position, scale, rot)
	if world.Singular() || !d3.IsFinite(position) || !d3.IsFinite(scale) {
		return fmt.Errorf("singular mesh transform: position=%v scale=%v", position, scale)
	}
	m.world = world
	m.inv = world.Inv()
	m.normal = world.NormalMatrix()
	return nil
}

// SetSide selects which faces rays can hit.
func (m *Mesh) SetSide(s Side) { m.side = s }

// Side returns which faces rays can hit.
func (m *Mesh) Side() Side { return m.side }

// Len returns the number of triangles in the mesh.
func (m *Mesh) Len() int { return len(m.tris) }

// Released reports whether Release was called.
func (m *Mesh) Released() bool { return m.released }

// Release frees the triangle and hierarchy buffers. A released mesh
// never hits and has zero length.
func (m *Mesh) Release() {
	m.tris = nil
	m.order = nil
	m.pos = nil
	m.nodes = nil
	m.released = true
}

// LocalBounds returns the bounding box of the untransformed triangles.
func (m *Mesh) LocalBounds() r3.Box { return r3.Box(m.bounds) }

// Bounds returns the world space axis aligned bounding box.
func (m *Mesh) Bounds() r3.Box {
	if m.released {
		return r3.Box{}
	}
	var world d3.Set = m.bounds.Vertices()
	for i := range world {
		world[i] = m.world.Transform(world[i])
	}
	return r3.Box{Min: world.Min(), Max: world.Max()}
}

// Triangles returns a copy of the local space triangles in input order,
// without the dropped degenerate ones.
func (m *Mesh) Triangles() []Triangle {
	out := make([]Triangle, len(m.tris))
	for i, t := range m.tris {
		out[m.pos[i]] = t
	}
	return out
}

// WorldTriangles returns the triangles transformed to world space, in
// input order. Vertex normals are transformed and normalized.
func (m *Mesh) WorldTriangles() []Triangle {
	out := m.Triangles()
	for i := range out {
		t := &out[i]
		for j := range t.V {
			t.V[j] = m.world.Transform(t.V[j])
			if t.N[j] != (r3.Vec{}) {
				t.N[j] = r3.Unit(m.normal.TransformDir(t.N[j]))
			}
		}
	}
	return out
}

// Intersect returns the nearest hit of r on the mesh. The Face of the hit
// is the index of the triangle in the slice the mesh was built from.
func (m *Mesh) Intersect(r raymark.Ray) (raymark.Intersection, bool) {
	if m.released || len(m.nodes) == 0 {
		return raymark.Intersection{Face: -1}, false
	}
	// The local direction is not normalized so that ray parameters
	// match world distances.
	local := raymark.Ray{Origin: m.inv.Transform(r.Origin), Dir: m.inv.TransformDir(r.Dir)}
	h := rayHit{t: math.Inf(1), idx: -1}
	m.nearestHit(local, 0, m.bounds, &h)
	if h.idx < 0 {
		return raymark.Intersection{Face: -1}, false
	}
	tri := &m.tris[h.idx]
	n := tri.Normal()
	if tri.HasNormals() {
		w := 1 - h.u - h.v
		interp := r3.Add(r3.Scale(w, tri.N[0]), r3.Add(r3.Scale(h.u, tri.N[1]), r3.Scale(h.v, tri.N[2])))
		if r3.Norm2(interp) > 0 {
			n = interp
		}
	}
	return raymark.Intersection{
		Point:    r.At(h.t),
		Normal:   r3.Unit(m.normal.TransformDir(n)),
		Distance: h.t,
		Face:     m.order[h.idx],
	}, true
}

type rayHit struct {
	t, u, v float64
	idx     int
}

// testTriangle updates h when r hits triangle i nearer than h.
func (m *Mesh) testTriangle(r raymark.Ray, i int, h *rayHit) {
	tri := &m.tris[i]
	t, u, v, ok := raymark.IntersectTriangle(r, tri.V[0], tri.V[1], tri.V[2])
	if !ok || t >= h.t {
		return
	}
	if m.side != Double {
		e1 := r3.Sub(tri.V[1], tri.V[0])
		e2 := r3.Sub(tri.V[2], tri.V[0])
		front := r3.Dot(r.Dir, r3.Cross(e1, e2)) < 0
		if front != (m.side == Front) {
			return
		}
	}
	h.t, h.u, h.v, h.idx = t, u, v, i
}
