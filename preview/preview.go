// Package preview renders snapshots of a scene and its marker as PNG images.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"
	"github.com/soypat/raymark"
	"github.com/soypat/raymark/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Options controls the output image.
type Options struct {
	Width, Height int
	// Supersample renders at this multiple of the output size before
	// downsampling for antialiasing. Values below 1 are read as 1.
	Supersample int
	Background  string // hex colors
	Color       string
	MarkerColor string
	// MarkerRadius is the radius of the marker disc in world units.
	MarkerRadius float64
}

// DefaultOptions returns 800x600 options with 2x supersampling.
func DefaultOptions() Options {
	return Options{
		Width:        800,
		Height:       600,
		Supersample:  2,
		Background:   "#FFF8E3",
		Color:        "#468966",
		MarkerColor:  "#FF4136",
		MarkerRadius: 0.25,
	}
}

var light = fauxgl.V(-0.75, 1, 0.25).Normalize()

// Image renders meshes as seen from cam. A visible marker is drawn as a
// flat disc lying on the surface it was placed on. Released meshes are
// skipped.
func Image(opt Options, cam raymark.Camera, meshes []*mesh.Mesh, mk *raymark.Marker) (image.Image, error) {
	if opt.Width <= 0 || opt.Height <= 0 {
		return nil, fmt.Errorf("bad preview size %dx%d", opt.Width, opt.Height)
	}
	scale := opt.Supersample
	if scale < 1 {
		scale = 1
	}
	matrix, eye, err := viewMatrix(cam, float64(opt.Width)/float64(opt.Height))
	if err != nil {
		return nil, err
	}

	context := fauxgl.NewContext(opt.Width*scale, opt.Height*scale)
	context.ClearColorBufferWith(fauxgl.HexColor(opt.Background))
	shader := fauxgl.NewPhongShader(matrix, light, eye)
	shader.ObjectColor = fauxgl.HexColor(opt.Color)
	context.Shader = shader
	for _, m := range meshes {
		if m == nil || m.Released() {
			continue
		}
		context.DrawMesh(mesh.Fauxgl(m.WorldTriangles()))
	}
	if mk != nil && mk.Visible() && opt.MarkerRadius > 0 {
		disc, err := markerDisc(mk, opt.MarkerRadius)
		if err != nil {
			return nil, err
		}
		mshader := fauxgl.NewPhongShader(matrix, light, eye)
		mshader.ObjectColor = fauxgl.HexColor(opt.MarkerColor)
		context.Shader = mshader
		context.DrawMesh(mesh.Fauxgl(disc.WorldTriangles()))
	}

	img := context.Image()
	if scale > 1 {
		img = resize.Resize(uint(opt.Width), uint(opt.Height), img, resize.Bilinear)
	}
	return img, nil
}

// Render writes the image produced by Image to w as PNG.
func Render(w io.Writer, opt Options, cam raymark.Camera, meshes []*mesh.Mesh, mk *raymark.Marker) error {
	img, err := Image(opt, cam, meshes, mk)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func viewMatrix(cam raymark.Camera, aspect float64) (fauxgl.Matrix, fauxgl.Vector, error) {
	switch c := cam.(type) {
	case *raymark.PerspectiveCamera:
		eye := vector(c.Eye())
		m := fauxgl.LookAt(eye, vector(c.Target()), vector(c.Up())).
			Perspective(c.FovY(), aspect, c.Near(), c.Far())
		return m, eye, nil
	case *raymark.OrthographicCamera:
		eye := vector(c.Eye())
		h := c.Height() / 2
		w := h * aspect
		m := fauxgl.LookAt(eye, vector(c.Target()), vector(c.Up())).
			Orthographic(-w, w, -h, h, c.Near(), c.Far())
		return m, eye, nil
	case nil:
		return fauxgl.Matrix{}, fauxgl.Vector{}, errors.New("nil camera")
	}
	return fauxgl.Matrix{}, fauxgl.Vector{}, fmt.Errorf("unsupported camera %T", cam)
}

// markerDisc returns a thin cylinder centered on the marker with its axis
// along the marker normal.
func markerDisc(mk *raymark.Marker, radius float64) (*mesh.Mesh, error) {
	disc, err := mesh.Cylinder(radius, radius, radius/10, 32)
	if err != nil {
		return nil, err
	}
	err = disc.SetTransform(mk.Position(), r3.Vec{X: 1, Y: 1, Z: 1}, alignY(mk.Normal()))
	return disc, err
}

// alignY returns the rotation taking +Y to n.
func alignY(n r3.Vec) r3.Rotation {
	if r3.Norm(n) == 0 {
		return r3.Rotation{}
	}
	n = r3.Unit(n)
	axis := r3.Cross(r3.Vec{Y: 1}, n)
	if r3.Norm(axis) < 1e-12 {
		if n.Y > 0 {
			return r3.Rotation{}
		}
		return r3.NewRotation(math.Pi, r3.Vec{X: 1})
	}
	return r3.NewRotation(math.Acos(math.Max(-1, math.Min(1, n.Y))), axis)
}

func vector(v r3.Vec) fauxgl.Vector { return fauxgl.V(v.X, v.Y, v.Z) }
