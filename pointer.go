package raymark

// Viewport is the drawable area a pointer moves over, in pixels.
type Viewport struct {
	Width  float64
	Height float64
}

// Valid reports whether the viewport has a positive area.
func (vp Viewport) Valid() bool {
	return vp.Width > 0 && vp.Height > 0
}

// Aspect returns the width to height ratio.
func (vp Viewport) Aspect() float64 {
	return vp.Width / vp.Height
}

// PointerSample is a pointer position in normalized device coordinates.
// X grows to the right and Y grows upwards, both span [-1, 1] over the viewport.
type PointerSample struct {
	X, Y float64
}

// NDC maps a pixel position with origin at the top left corner of the
// viewport to normalized device coordinates.
func (vp Viewport) NDC(clientX, clientY float64) PointerSample {
	return PointerSample{
		X: (clientX/vp.Width)*2 - 1,
		Y: -(clientY/vp.Height)*2 + 1,
	}
}

// Pixel maps p back to pixel coordinates in vp.
func (p PointerSample) Pixel(vp Viewport) (clientX, clientY float64) {
	return (p.X + 1) / 2 * vp.Width, (1 - p.Y) / 2 * vp.Height
}

// Inside reports whether p lies within the viewport.
func (p PointerSample) Inside() bool {
	return p.X >= -1 && p.X <= 1 && p.Y >= -1 && p.Y <= 1
}
