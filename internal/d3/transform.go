package d3

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a 3D spatial transformation backed by a 4x4 matrix.
// The zero value of Transform is the identity transform.
type Transform struct {
	// d is the matrix with the identity subtracted so that
	//  if T == (Transform{})
	// checks for identity.
	d mgl64.Mat4
}

func fromMat(m mgl64.Mat4) Transform { return Transform{d: m.Sub(mgl64.Ident4())} }

// Mat4 returns the transform matrix.
func (t Transform) Mat4() mgl64.Mat4 { return t.d.Add(mgl64.Ident4()) }

// Transform applies the Transform to the point v, dividing by the
// homogeneous coordinate, and returns the result.
func (t Transform) Transform(v r3.Vec) r3.Vec {
	if t == (Transform{}) {
		return v
	}
	return fromVec3(mgl64.TransformCoordinate(vec3(v), t.Mat4()))
}

// TransformDir applies the upper 3x3 part of the Transform to the
// direction v. Translation and projective terms are ignored.
func (t Transform) TransformDir(v r3.Vec) r3.Vec {
	if t == (Transform{}) {
		return v
	}
	return fromVec3(mgl64.TransformNormal(vec3(v), t.Mat4()))
}

// NormalMatrix returns the inverse transpose of t. Surface normals
// transformed with TransformDir of the result stay perpendicular to
// surfaces transformed by t, including under non-uniform scaling.
func (t Transform) NormalMatrix() Transform {
	return fromMat(t.Inv().Mat4().Transpose())
}

// Singular reports whether the Transform cannot be inverted. The
// determinant is compared against the product of the column lengths, its
// upper bound, so uniformly small or large scales are not singular.
func (t Transform) Singular() bool {
	m := t.Mat4()
	bound := 1.0
	for i := 0; i < 4; i++ {
		bound *= m.Col(i).Len()
	}
	return bound == 0 || math.Abs(m.Det()) <= 1e-12*bound
}

// ComposeTransform creates a new transform for a given translation to
// position, scaling vector scale and quaternion rotation, applied in the
// order scale, rotate, translate. The identity Transform is constructed with
//
//	ComposeTransform(Vec{}, Vec{1,1,1}, Rotation{})
func ComposeTransform(position, scale r3.Vec, q r3.Rotation) Transform {
	// The zero quaternion yields the identity rotation matrix.
	rot := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}.Mat4()
	m := mgl64.Translate3D(position.X, position.Y, position.Z).
		Mul4(rot).
		Mul4(mgl64.Scale3D(scale.X, scale.Y, scale.Z))
	return fromMat(m)
}

// Mul multiplies the Transforms t and b. The result applies b first.
func (t Transform) Mul(b Transform) Transform {
	if t == (Transform{}) {
		return b
	}
	if b == (Transform{}) {
		return t
	}
	return fromMat(t.Mat4().Mul4(b.Mat4()))
}

// Det returns the determinant of the Transform.
func (t Transform) Det() float64 { return t.Mat4().Det() }

// Inv returns the inverse of the transform such that
// t.Inv() * t is the identity Transform.
// If matrix is singular then Inv() returns the zero matrix.
func (t Transform) Inv() Transform {
	if t == (Transform{}) {
		return t
	}
	if t.Singular() {
		return fromMat(mgl64.Mat4{})
	}
	// Inv(kM) = Inv(M)/k. Normalizing the determinant to one keeps
	// mgl64's zero determinant check off small scales.
	m := t.Mat4()
	k := math.Pow(math.Abs(m.Det()), -0.25)
	return fromMat(m.Mul(k).Inv().Mul(k))
}

// Equals tests the equality of the Transforms to within a tolerance.
func (t Transform) Equals(b Transform, tolerance float64) bool {
	for i := range t.d {
		if math.Abs(t.d[i]-b.d[i]) >= tolerance {
			return false
		}
	}
	return true
}

func vec3(v r3.Vec) mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

func fromVec3(v mgl64.Vec3) r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }
