package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Primitive names accepted by Primitive.
const (
	PrimPlane    = "plane"
	PrimBox      = "box"
	PrimSphere   = "sphere"
	PrimTorus    = "torus"
	PrimCylinder = "cylinder"
)

// Params holds the dimensions of a gallery primitive. Fields not used by
// a primitive are ignored and zero values take the defaults noted.
type Params struct {
	Width, Height, Depth float64 // plane uses Width and Depth
	Radius               float64 // sphere radius, torus ring radius, cylinder top radius
	Tube                 float64 // torus tube radius, cylinder bottom radius
	Segments             int     // subdivisions around or across, default 32 (plane 1)
	Rings                int     // subdivisions from pole to pole or along the tube, default 16 (plane 1)
}

// Primitive builds the gallery primitive called name.
func Primitive(name string, p Params) (*Mesh, error) {
	seg := func(v, def int) int {
		if v == 0 {
			return def
		}
		return v
	}
	switch name {
	case PrimPlane:
		return Plane(p.Width, p.Depth, seg(p.Segments, 1), seg(p.Rings, 1))
	case PrimBox:
		return Box(p.Width, p.Height, p.Depth)
	case PrimSphere:
		return Sphere(p.Radius, seg(p.Segments, 32), seg(p.Rings, 16))
	case PrimTorus:
		return Torus(p.Radius, p.Tube, seg(p.Segments, 32), seg(p.Rings, 16))
	case PrimCylinder:
		return Cylinder(p.Radius, p.Tube, p.Height, seg(p.Segments, 32))
	}
	return nil, fmt.Errorf("unknown primitive %q", name)
}

// Plane returns a width by depth rectangle on the XZ plane centered at the
// origin facing +Y, split in segW by segD cells.
func Plane(width, depth float64, segW, segD int) (*Mesh, error) {
	if !(width > 0 && depth > 0) || segW < 1 || segD < 1 {
		return nil, fmt.Errorf("bad plane %gx%g segments %dx%d", width, depth, segW, segD)
	}
	up := r3.Vec{Y: 1}
	dx, dz := width/float64(segW), depth/float64(segD)
	x0, z0 := -width/2, -depth/2
	tris := make([]Triangle, 0, 2*segW*segD)
	for i := 0; i < segW; i++ {
		for j := 0; j < segD; j++ {
			xa, xb := x0+float64(i)*dx, x0+float64(i+1)*dx
			za, zb := z0+float64(j)*dz, z0+float64(j+1)*dz
			a := r3.Vec{X: xa, Z: za}
			b := r3.Vec{X: xa, Z: zb}
			c := r3.Vec{X: xb, Z: zb}
			d := r3.Vec{X: xb, Z: za}
			n := [3]r3.Vec{up, up, up}
			tris = append(tris, Triangle{V: [3]r3.Vec{a, b, c}, N: n}, Triangle{V: [3]r3.Vec{a, c, d}, N: n})
		}
	}
	return New(tris)
}

// Box returns an axis aligned box centered at the origin with outward
// facing flat faces.
func Box(width, height, depth float64) (*Mesh, error) {
	if !(width > 0 && height > 0 && depth > 0) {
		return nil, fmt.Errorf("bad box %gx%gx%g", width, height, depth)
	}
	hx := r3.Vec{X: width / 2}
	hy := r3.Vec{Y: height / 2}
	hz := r3.Vec{Z: depth / 2}
	neg := func(v r3.Vec) r3.Vec { return r3.Scale(-1, v) }
	// Each face is given by its center and two half extents u, v with
	// u x v pointing out of the box.
	faces := [6][3]r3.Vec{
		{hx, hy, hz},
		{neg(hx), hz, hy},
		{hy, hz, hx},
		{neg(hy), hx, hz},
		{hz, hx, hy},
		{neg(hz), hy, hx},
	}
	tris := make([]Triangle, 0, 12)
	for _, f := range faces {
		c, u, v := f[0], f[1], f[2]
		p0 := r3.Sub(r3.Sub(c, u), v)
		p1 := r3.Sub(r3.Add(c, u), v)
		p2 := r3.Add(r3.Add(c, u), v)
		p3 := r3.Add(r3.Sub(c, u), v)
		tris = append(tris, Triangle{V: [3]r3.Vec{p0, p1, p2}}, Triangle{V: [3]r3.Vec{p0, p2, p3}})
	}
	return New(tris)
}

// Sphere returns a UV sphere of the given radius centered at the origin
// with segW divisions around Y and segH from pole to pole.
func Sphere(radius float64, segW, segH int) (*Mesh, error) {
	if !(radius > 0) || segW < 3 || segH < 2 {
		return nil, fmt.Errorf("bad sphere radius %g segments %dx%d", radius, segW, segH)
	}
	dir := func(i, j int) r3.Vec {
		theta := 2 * math.Pi * float64(i) / float64(segW)
		phi := math.Pi * float64(j) / float64(segH)
		return r3.Vec{
			X: -math.Cos(theta) * math.Sin(phi),
			Y: math.Cos(phi),
			Z: math.Sin(theta) * math.Sin(phi),
		}
	}
	return grid(segW, segH, func(i, j int) (r3.Vec, r3.Vec) {
		n := dir(i, j)
		return r3.Scale(radius, n), n
	})
}

// Torus returns a ring lying on the XZ plane. radius is the distance from
// the center to the middle of the tube of radius tube.
func Torus(radius, tube float64, radial, tubular int) (*Mesh, error) {
	if !(radius > 0 && tube > 0) || radial < 3 || tubular < 3 {
		return nil, fmt.Errorf("bad torus radii %g/%g segments %dx%d", radius, tube, radial, tubular)
	}
	return grid(radial, tubular, func(i, j int) (r3.Vec, r3.Vec) {
		u := 2 * math.Pi * float64(i) / float64(radial)
		v := 2 * math.Pi * float64(j) / float64(tubular)
		center := r3.Vec{X: radius * math.Cos(u), Z: radius * math.Sin(u)}
		p := r3.Vec{
			X: (radius + tube*math.Cos(v)) * math.Cos(u),
			Y: tube * math.Sin(v),
			Z: (radius + tube*math.Cos(v)) * math.Sin(u),
		}
		return p, r3.Unit(r3.Sub(p, center))
	})
}

// Cylinder returns a capped cylinder, or a cone when one radius is zero,
// centered at the origin along Y.
func Cylinder(radiusTop, radiusBottom, height float64, radial int) (*Mesh, error) {
	if radiusTop < 0 || radiusBottom < 0 || !(radiusTop+radiusBottom > 0) || !(height > 0) || radial < 3 {
		return nil, fmt.Errorf("bad cylinder radii %g/%g height %g segments %d", radiusTop, radiusBottom, height, radial)
	}
	hh := height / 2
	slope := (radiusBottom - radiusTop) / height
	side, err := gridTriangles(radial, 1, func(i, j int) (r3.Vec, r3.Vec) {
		theta := 2 * math.Pi * float64(i) / float64(radial)
		sin, cos := math.Sincos(theta)
		r := radiusTop + float64(j)*(radiusBottom-radiusTop)
		p := r3.Vec{X: r * sin, Y: hh - float64(j)*height, Z: r * cos}
		return p, r3.Unit(r3.Vec{X: sin, Y: slope, Z: cos})
	})
	if err != nil {
		return nil, err
	}
	tris := side
	addCap := func(r, y float64, n r3.Vec) {
		if r == 0 {
			return
		}
		c := r3.Vec{Y: y}
		for i := 0; i < radial; i++ {
			a0 := 2 * math.Pi * float64(i) / float64(radial)
			a1 := 2 * math.Pi * float64(i+1) / float64(radial)
			t := Triangle{
				V: [3]r3.Vec{c, {X: r * math.Sin(a0), Y: y, Z: r * math.Cos(a0)}, {X: r * math.Sin(a1), Y: y, Z: r * math.Cos(a1)}},
				N: [3]r3.Vec{n, n, n},
			}
			t.orient()
			tris = append(tris, t)
		}
	}
	addCap(radiusTop, hh, r3.Vec{Y: 1})
	addCap(radiusBottom, -hh, r3.Vec{Y: -1})
	return New(tris)
}

// grid builds a mesh from a wrapped (u, v) parametrization where f returns
// the position and outward normal of grid point i in [0, nu], j in [0, nv].
func grid(nu, nv int, f func(i, j int) (p, n r3.Vec)) (*Mesh, error) {
	tris, err := gridTriangles(nu, nv, f)
	if err != nil {
		return nil, err
	}
	return New(tris)
}

func gridTriangles(nu, nv int, f func(i, j int) (p, n r3.Vec)) ([]Triangle, error) {
	tris := make([]Triangle, 0, 2*nu*nv)
	for i := 0; i < nu; i++ {
		for j := 0; j < nv; j++ {
			pa, na := f(i, j)
			pb, nb := f(i+1, j)
			pc, nc := f(i+1, j+1)
			pd, nd := f(i, j+1)
			for _, t := range [2]Triangle{
				{V: [3]r3.Vec{pa, pb, pc}, N: [3]r3.Vec{na, nb, nc}},
				{V: [3]r3.Vec{pa, pc, pd}, N: [3]r3.Vec{na, nc, nd}},
			} {
				// Triangles collapsed at poles carry no area.
				if t.Degenerate(1e-12) {
					continue
				}
				t.orient()
				tris = append(tris, t)
			}
		}
	}
	if len(tris) == 0 {
		return nil, ErrEmpty
	}
	return tris, nil
}
