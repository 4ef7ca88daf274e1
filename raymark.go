// Package raymark places a marker where a pointer ray hits a surface.
//
// A pointer position in pixels is mapped to normalized device coordinates,
// unprojected through a Camera into a world space Ray, tested against
// an ordered list of Surfaces and the nearest Intersection positions a
// Marker a small offset above the surface along its normal.
//
//	pk, err := raymark.NewPicker(cam, raymark.Viewport{Width: 800, Height: 600}, raymark.DefaultConfig(), ground)
//	// on every pointer move:
//	pk.PointerMove(x, y)
//	if pk.Marker().Visible() {
//		draw(pk.Marker().Position())
//	}
package raymark

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInvalidProjection is returned when a camera cannot produce rays,
	// i.e. its view-projection matrix is not invertible.
	ErrInvalidProjection = errors.New("invalid camera projection")
	// ErrInvalidViewport is returned for viewports without positive area.
	ErrInvalidViewport = errors.New("invalid viewport")
)

// Ray is a half-line starting at Origin along the unit direction Dir.
type Ray struct {
	Origin r3.Vec
	Dir    r3.Vec
}

// NewRay returns a Ray with a normalized direction. dir must not be zero.
func NewRay(origin, dir r3.Vec) Ray {
	if dir == (r3.Vec{}) {
		panic("zero ray direction")
	}
	return Ray{Origin: origin, Dir: r3.Unit(dir)}
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Dir))
}

// Intersection is a ray hit on a surface in world space.
type Intersection struct {
	// Point is the hit position.
	Point r3.Vec
	// Normal is the unit surface normal at Point.
	Normal r3.Vec
	// Distance from the ray origin to Point. Always >= 0.
	Distance float64
	// Face is the index of the hit triangle within its surface, or -1
	// when the surface is not triangulated.
	Face int
}

// Surface is anything a Ray can hit. Intersect returns the nearest hit
// along the ray and false when the ray misses.
// Implementations must not modify state during Intersect so that
// repeated calls with the same ray return the same result.
type Surface interface {
	Intersect(r Ray) (Intersection, bool)
}
