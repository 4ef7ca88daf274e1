package raymark

import (
	"errors"
	"fmt"
)

// Config configures marker placement. It is owned by the caller and passed
// by pointer so several pickers can share one.
type Config struct {
	// MarkerOffset lifts the marker above the surface along its normal to
	// avoid z-fighting.
	MarkerOffset float64
	// MaxDistance discards hits farther than it from the ray origin.
	// Zero or negative means unlimited.
	MaxDistance float64
}

// DefaultConfig returns a configuration with a 0.01 marker offset and
// no distance limit.
func DefaultConfig() *Config {
	return &Config{MarkerOffset: 0.01}
}

// Picker runs the pointer to marker pipeline for one view.
// A Picker is not safe for concurrent use.
type Picker struct {
	cam     Camera
	vp      Viewport
	cfg     *Config
	targets []Surface
	marker  Marker
	last    Intersection
	lastIdx int
}

// NewPicker returns a picker casting rays through cam over vp against
// targets. The order of targets decides ties between equal hit distances.
func NewPicker(cam Camera, vp Viewport, cfg *Config, targets ...Surface) (*Picker, error) {
	if cam == nil {
		return nil, errors.New("nil camera")
	}
	if cfg == nil {
		return nil, errors.New("nil picker config")
	}
	if !vp.Valid() {
		return nil, fmt.Errorf("%w: %gx%g", ErrInvalidViewport, vp.Width, vp.Height)
	}
	if err := cam.SetAspect(vp.Aspect()); err != nil {
		return nil, err
	}
	return &Picker{
		cam:     cam,
		vp:      vp,
		cfg:     cfg,
		targets: targets,
		lastIdx: -1,
	}, nil
}

// PointerMove handles a pointer position in pixels relative to the top left
// corner of the viewport. It places or hides the marker and returns the hit.
func (pk *Picker) PointerMove(clientX, clientY float64) (Intersection, bool) {
	if !pk.vp.Valid() {
		return pk.miss()
	}
	return pk.Pick(pk.vp.NDC(clientX, clientY))
}

// Pick is PointerMove for a position already in normalized device coordinates.
func (pk *Picker) Pick(p PointerSample) (Intersection, bool) {
	if len(pk.targets) == 0 {
		return pk.miss()
	}
	r := pk.cam.Ray(p)
	hit, idx := Nearest(r, pk.targets)
	if idx < 0 || (pk.cfg.MaxDistance > 0 && hit.Distance > pk.cfg.MaxDistance) {
		return pk.miss()
	}
	pk.last, pk.lastIdx = hit, idx
	pk.marker.Place(hit, true, pk.cfg.MarkerOffset)
	return hit, true
}

func (pk *Picker) miss() (Intersection, bool) {
	pk.lastIdx = -1
	pk.last = Intersection{Face: -1}
	pk.marker.Place(pk.last, false, 0)
	return pk.last, false
}

// Resize sets the viewport and updates the camera aspect ratio.
func (pk *Picker) Resize(vp Viewport) error {
	if !vp.Valid() {
		return fmt.Errorf("%w: %gx%g", ErrInvalidViewport, vp.Width, vp.Height)
	}
	if err := pk.cam.SetAspect(vp.Aspect()); err != nil {
		return err
	}
	pk.vp = vp
	return nil
}

// SetTargets replaces the surfaces tested on every pick.
func (pk *Picker) SetTargets(targets ...Surface) { pk.targets = targets }

// Targets returns the surfaces tested on every pick.
func (pk *Picker) Targets() []Surface { return pk.targets }

// Marker returns the marker driven by the picker.
func (pk *Picker) Marker() *Marker { return &pk.marker }

// Camera returns the camera rays are cast through.
func (pk *Picker) Camera() Camera { return pk.cam }

// Viewport returns the current viewport.
func (pk *Picker) Viewport() Viewport { return pk.vp }

// Last returns the last hit and the index of the target it belongs to,
// or -1 after a miss.
func (pk *Picker) Last() (Intersection, int) { return pk.last, pk.lastIdx }
