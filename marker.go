package raymark

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// MarkerState is the visibility state of a Marker.
type MarkerState uint8

const (
	// Hidden is the initial state and the state after any miss.
	Hidden MarkerState = iota
	// Shown follows every hit.
	Shown
)

func (s MarkerState) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case Shown:
		return "shown"
	}
	return "MarkerState(?)"
}

// Marker is the visual indicator placed at the last ray hit.
// The zero value is a hidden marker at the origin.
type Marker struct {
	pos     r3.Vec
	normal  r3.Vec
	visible bool
	// hits counts placements that resulted in a hit.
	hits uint64
}

// Place updates the marker from the result of an intersection test.
// On a hit the marker moves to the hit point offset along the surface
// normal and becomes visible. On a miss it is hidden and keeps its
// previous, now stale, position.
func (m *Marker) Place(hit Intersection, ok bool, offset float64) {
	if !ok {
		m.visible = false
		return
	}
	m.pos = r3.Add(hit.Point, r3.Scale(offset, hit.Normal))
	m.normal = hit.Normal
	m.visible = true
	m.hits++
}

// Hide hides the marker without moving it.
func (m *Marker) Hide() { m.visible = false }

// Position returns the marker position. Stale while hidden.
func (m *Marker) Position() r3.Vec { return m.pos }

// Normal returns the surface normal of the last hit, useful for orienting
// a ring or decal.
func (m *Marker) Normal() r3.Vec { return m.normal }

// Visible reports whether the last placement was a hit.
func (m *Marker) Visible() bool { return m.visible }

// Hits returns how many placements were hits.
func (m *Marker) Hits() uint64 { return m.hits }

// State returns Shown when visible and Hidden otherwise.
func (m *Marker) State() MarkerState {
	if m.visible {
		return Shown
	}
	return Hidden
}
