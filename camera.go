package raymark

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/soypat/raymark/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Camera converts between normalized device coordinates and world space.
type Camera interface {
	// Ray returns the world space ray passing through p.
	Ray(p PointerSample) Ray
	// Project maps a world point to normalized device coordinates.
	// depth is the NDC depth, within [-1, 1] for points between the
	// near and far planes.
	Project(world r3.Vec) (p PointerSample, depth float64)
	// SetAspect changes the width/height ratio of the projection.
	SetAspect(aspect float64) error
	// Position returns the camera position in world space.
	Position() r3.Vec
}

// view holds what perspective and orthographic cameras share:
// placement, clip planes and cached matrices.
type view struct {
	eye, target, up r3.Vec
	// upHint is the up vector requested by the user.
	upHint r3.Vec

	near, far float64
	aspect    float64

	viewMat     mgl64.Mat4
	viewProj    mgl64.Mat4
	invViewProj mgl64.Mat4
}

// Eye returns the camera position.
func (v *view) Eye() r3.Vec { return v.eye }

func (v *view) Position() r3.Vec { return v.eye }

// Target returns the point the camera looks at.
func (v *view) Target() r3.Vec { return v.target }

// Up returns the up direction the view matrix was built with. It differs
// from the configured up vector when that was parallel to the view direction.
func (v *view) Up() r3.Vec { return v.up }

// Near returns the near clip distance.
func (v *view) Near() float64 { return v.near }

// Far returns the far clip distance.
func (v *view) Far() float64 { return v.far }

// Aspect returns the width to height ratio.
func (v *view) Aspect() float64 { return v.aspect }

// Forward returns the unit view direction.
func (v *view) Forward() r3.Vec { return r3.Unit(r3.Sub(v.target, v.eye)) }

func (v *view) setLook(eye, target, up r3.Vec) error {
	if !d3.IsFinite(eye) || !d3.IsFinite(target) || !d3.IsFinite(up) {
		return fmt.Errorf("%w: non-finite camera placement", ErrInvalidProjection)
	}
	fwd := r3.Sub(target, eye)
	if r3.Norm(fwd) == 0 {
		return fmt.Errorf("%w: eye and target coincide", ErrInvalidProjection)
	}
	if up == (r3.Vec{}) {
		up = r3.Vec{Y: 1}
	}
	hint := up
	fwd = r3.Unit(fwd)
	if r3.Norm(r3.Cross(fwd, r3.Unit(up))) < 1e-9 {
		// Looking along up: pick the -Z or +Z axis so that
		// screen top points away from the viewer's feet.
		if r3.Dot(fwd, up) < 0 {
			up = r3.Vec{Z: -1}
		} else {
			up = r3.Vec{Z: 1}
		}
	}
	v.eye, v.target, v.up, v.upHint = eye, target, up, hint
	v.viewMat = mgl64.LookAtV(vec3(eye), vec3(target), vec3(up))
	return nil
}

func (v *view) setProjection(proj mgl64.Mat4) error {
	vp := proj.Mul4(v.viewMat)
	det := vp.Det()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return fmt.Errorf("%w: singular view-projection matrix", ErrInvalidProjection)
	}
	v.viewProj = vp
	v.invViewProj = vp.Inv()
	return nil
}

func (v *view) validClip(aspect, near, far float64) error {
	switch {
	case !(aspect > 0) || math.IsInf(aspect, 0):
		return fmt.Errorf("%w: aspect %g", ErrInvalidProjection, aspect)
	case !(near > 0):
		return fmt.Errorf("%w: near plane %g must be positive", ErrInvalidProjection, near)
	case !(far > near) || math.IsInf(far, 0):
		return fmt.Errorf("%w: far plane %g must be beyond near plane %g", ErrInvalidProjection, far, near)
	}
	return nil
}

// unproject maps an NDC point to world space.
func (v *view) unproject(x, y, z float64) r3.Vec {
	w := v.invViewProj.Mul4x1(mgl64.Vec4{x, y, z, 1})
	return r3.Vec{X: w[0] / w[3], Y: w[1] / w[3], Z: w[2] / w[3]}
}

func (v *view) Project(world r3.Vec) (PointerSample, float64) {
	c := v.viewProj.Mul4x1(mgl64.Vec4{world.X, world.Y, world.Z, 1})
	return PointerSample{X: c[0] / c[3], Y: c[1] / c[3]}, c[2] / c[3]
}

// PerspectiveCamera projects with a vertical field of view, like the eye.
// Rays start at the camera position.
type PerspectiveCamera struct {
	view
	fovy float64
}

var _ Camera = (*PerspectiveCamera)(nil)

// NewPerspectiveCamera returns a camera at eye looking at target. fovy is
// the vertical field of view in degrees. When up is zero +Y is used.
func NewPerspectiveCamera(fovy, aspect, near, far float64, eye, target, up r3.Vec) (*PerspectiveCamera, error) {
	cam := &PerspectiveCamera{fovy: fovy}
	cam.near, cam.far, cam.aspect = near, far, aspect
	if err := cam.setLook(eye, target, up); err != nil {
		return nil, err
	}
	if err := cam.update(); err != nil {
		return nil, err
	}
	return cam, nil
}

// FovY returns the vertical field of view in degrees.
func (cam *PerspectiveCamera) FovY() float64 { return cam.fovy }

// SetFovY changes the vertical field of view. Degrees.
func (cam *PerspectiveCamera) SetFovY(fovy float64) error {
	old := cam.fovy
	cam.fovy = fovy
	if err := cam.update(); err != nil {
		cam.fovy = old
		return err
	}
	return nil
}

func (cam *PerspectiveCamera) SetAspect(aspect float64) error {
	old := cam.aspect
	cam.aspect = aspect
	if err := cam.update(); err != nil {
		cam.aspect = old
		return err
	}
	return nil
}

// LookAt points the camera at target keeping its position.
func (cam *PerspectiveCamera) LookAt(target r3.Vec) error {
	prev := cam.view
	if err := cam.setLook(cam.eye, target, cam.upHint); err != nil {
		cam.view = prev
		return err
	}
	if err := cam.update(); err != nil {
		cam.view = prev
		return err
	}
	return nil
}

func (cam *PerspectiveCamera) update() error {
	if !(cam.fovy > 0 && cam.fovy < 180) {
		return fmt.Errorf("%w: field of view %g outside (0, 180)", ErrInvalidProjection, cam.fovy)
	}
	if err := cam.validClip(cam.aspect, cam.near, cam.far); err != nil {
		return err
	}
	proj := mgl64.Perspective(mgl64.DegToRad(cam.fovy), cam.aspect, cam.near, cam.far)
	return cam.setProjection(proj)
}

// Ray returns the ray from the camera position through p.
func (cam *PerspectiveCamera) Ray(p PointerSample) Ray {
	through := cam.unproject(p.X, p.Y, 0.5)
	return NewRay(cam.eye, r3.Sub(through, cam.eye))
}

// OrthographicCamera projects without perspective: all rays share the
// view direction and start on the near plane.
type OrthographicCamera struct {
	view
	height float64
}

var _ Camera = (*OrthographicCamera)(nil)

// NewOrthographicCamera returns a camera at eye looking at target that
// sees height world units vertically and height*aspect horizontally.
func NewOrthographicCamera(height, aspect, near, far float64, eye, target, up r3.Vec) (*OrthographicCamera, error) {
	cam := &OrthographicCamera{height: height}
	cam.near, cam.far, cam.aspect = near, far, aspect
	if err := cam.setLook(eye, target, up); err != nil {
		return nil, err
	}
	if err := cam.update(); err != nil {
		return nil, err
	}
	return cam, nil
}

// Height returns the vertical extent of the view volume.
func (cam *OrthographicCamera) Height() float64 { return cam.height }

func (cam *OrthographicCamera) SetAspect(aspect float64) error {
	old := cam.aspect
	cam.aspect = aspect
	if err := cam.update(); err != nil {
		cam.aspect = old
		return err
	}
	return nil
}

func (cam *OrthographicCamera) update() error {
	if !(cam.height > 0) {
		return fmt.Errorf("%w: orthographic height %g", ErrInvalidProjection, cam.height)
	}
	if err := cam.validClip(cam.aspect, cam.near, cam.far); err != nil {
		return err
	}
	hh := cam.height / 2
	hw := hh * cam.aspect
	proj := mgl64.Ortho(-hw, hw, -hh, hh, cam.near, cam.far)
	return cam.setProjection(proj)
}

// Ray returns the ray through p starting on the near plane.
func (cam *OrthographicCamera) Ray(p PointerSample) Ray {
	near := cam.unproject(p.X, p.Y, -1)
	far := cam.unproject(p.X, p.Y, 1)
	return NewRay(near, r3.Sub(far, near))
}

func vec3(v r3.Vec) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}
