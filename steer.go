package raymark

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	maxLat  = 85
	minFovY = 10
	maxFovY = 75
)

// LookSteering turns pointer drags into a look direction for a camera
// sitting inside a panorama. Angles are in degrees.
type LookSteering struct {
	Lon, Lat float64
	// Sensitivity is degrees per pixel of drag. Zero uses 0.1.
	Sensitivity float64
	// ZoomSpeed is degrees of field of view per wheel unit. Zero uses 0.05.
	ZoomSpeed float64

	dragging         bool
	downX, downY     float64
	downLon, downLat float64
}

// PointerDown starts a drag at the pixel position x, y.
func (ls *LookSteering) PointerDown(x, y float64) {
	ls.dragging = true
	ls.downX, ls.downY = x, y
	ls.downLon, ls.downLat = ls.Lon, ls.Lat
}

// PointerMove updates the look angles while dragging. Dragging right turns
// the view left as if grabbing the panorama.
func (ls *LookSteering) PointerMove(x, y float64) {
	if !ls.dragging {
		return
	}
	s := ls.Sensitivity
	if s == 0 {
		s = 0.1
	}
	ls.Lon = (ls.downX-x)*s + ls.downLon
	ls.Lat = (y-ls.downY)*s + ls.downLat
	ls.Lat = math.Max(-maxLat, math.Min(maxLat, ls.Lat))
}

// PointerUp ends a drag.
func (ls *LookSteering) PointerUp() { ls.dragging = false }

// Dragging reports whether a drag is in progress.
func (ls *LookSteering) Dragging() bool { return ls.dragging }

// Target returns the point at distance radius from eye in the look direction.
func (ls *LookSteering) Target(eye r3.Vec, radius float64) r3.Vec {
	lat := math.Max(-maxLat, math.Min(maxLat, ls.Lat))
	phi := (90 - lat) * math.Pi / 180
	theta := ls.Lon * math.Pi / 180
	dir := r3.Vec{
		X: math.Sin(phi) * math.Cos(theta),
		Y: math.Cos(phi),
		Z: math.Sin(phi) * math.Sin(theta),
	}
	return r3.Add(eye, r3.Scale(radius, dir))
}

// LookAlong sets the look angles from a view direction, for instance the
// initial Forward of a camera. A zero dir leaves the angles unchanged.
func (ls *LookSteering) LookAlong(dir r3.Vec) {
	if dir == (r3.Vec{}) {
		return
	}
	dir = r3.Unit(dir)
	ls.Lat = math.Asin(math.Max(-1, math.Min(1, dir.Y))) * 180 / math.Pi
	ls.Lon = math.Atan2(dir.Z, dir.X) * 180 / math.Pi
}

// Apply points cam along the look direction.
func (ls *LookSteering) Apply(cam *PerspectiveCamera) error {
	return cam.LookAt(ls.Target(cam.Eye(), 1))
}

// Zoom changes the field of view of cam by a wheel delta, keeping it
// within [10, 75] degrees.
func (ls *LookSteering) Zoom(cam *PerspectiveCamera, deltaY float64) error {
	speed := ls.ZoomSpeed
	if speed == 0 {
		speed = 0.05
	}
	fov := cam.FovY() + deltaY*speed
	fov = math.Max(minFovY, math.Min(maxFovY, fov))
	return cam.SetFovY(fov)
}
