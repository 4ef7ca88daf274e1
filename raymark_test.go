package raymark

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-6

// fan is a square in the plane y=Y triangulated as a fan around a vertex
// away from the origin, so rays through the origin hit a triangle interior.
type fan struct {
	tris []Triangle
}

func groundPlane(size, y float64) fan {
	h := size / 2
	e := r3.Vec{X: 1, Y: y, Z: 3}
	a := r3.Vec{X: -h, Y: y, Z: -h}
	b := r3.Vec{X: -h, Y: y, Z: h}
	c := r3.Vec{X: h, Y: y, Z: h}
	d := r3.Vec{X: h, Y: y, Z: -h}
	return fan{tris: []Triangle{{e, a, b}, {e, b, c}, {e, c, d}, {e, d, a}}}
}

func (f fan) Intersect(r Ray) (Intersection, bool) {
	ss := make([]Surface, len(f.tris))
	for i := range f.tris {
		ss[i] = f.tris[i]
	}
	hit, idx := Nearest(r, ss)
	if idx < 0 {
		return hit, false
	}
	hit.Face = idx
	return hit, true
}

func near(a, b r3.Vec) bool {
	return r3.Norm(r3.Sub(a, b)) < tol
}

func topDownCamera(t *testing.T) *PerspectiveCamera {
	t.Helper()
	cam, err := NewPerspectiveCamera(60, 1, 0.1, 100, r3.Vec{Y: 10}, r3.Vec{}, r3.Vec{Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	return cam
}

func TestNDC(t *testing.T) {
	vp := Viewport{Width: 800, Height: 600}
	for _, test := range []struct {
		x, y float64
		want PointerSample
	}{
		{400, 300, PointerSample{0, 0}},
		{0, 0, PointerSample{-1, 1}},
		{800, 600, PointerSample{1, -1}},
		{200, 450, PointerSample{-0.5, -0.5}},
	} {
		got := vp.NDC(test.x, test.y)
		if got != test.want {
			t.Errorf("NDC(%g,%g): got %v, want %v", test.x, test.y, got, test.want)
		}
		px, py := got.Pixel(vp)
		if px != test.x || py != test.y {
			t.Errorf("Pixel(%v): got %g,%g, want %g,%g", got, px, py, test.x, test.y)
		}
		if !got.Inside() {
			t.Errorf("%v should be inside viewport", got)
		}
	}
	if (PointerSample{X: 1.5}).Inside() {
		t.Error("sample outside viewport reported inside")
	}
}

func TestProjectRoundTrip(t *testing.T) {
	persp, err := NewPerspectiveCamera(50, 4.0/3, 0.1, 200, r3.Vec{X: 3, Y: 4, Z: 5}, r3.Vec{X: -1}, r3.Vec{Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	ortho, err := NewOrthographicCamera(10, 4.0/3, 0.1, 200, r3.Vec{X: 3, Y: 4, Z: 5}, r3.Vec{X: -1}, r3.Vec{Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, cam := range []Camera{persp, ortho} {
		for _, p := range []PointerSample{{0, 0}, {0.3, -0.4}, {-1, 1}, {0.99, 0.5}} {
			r := cam.Ray(p)
			if math.Abs(r3.Norm(r.Dir)-1) > 1e-12 {
				t.Fatalf("ray direction not unit: %v", r.Dir)
			}
			for _, dist := range []float64{1, 7, 40} {
				got, depth := cam.Project(r.At(dist))
				if math.Abs(got.X-p.X) > tol || math.Abs(got.Y-p.Y) > tol {
					t.Errorf("%T: project(ray(%v).At(%g)) = %v", cam, p, dist, got)
				}
				if depth < -1-tol || depth > 1+tol {
					t.Errorf("%T: depth %g outside clip range", cam, depth)
				}
			}
		}
	}
}

func TestCameraConstructorsFailFast(t *testing.T) {
	eye, target := r3.Vec{Z: 5}, r3.Vec{}
	for _, test := range []struct {
		name                string
		fovy, aspect, n, f float64
		eye                 r3.Vec
	}{
		{"zero fov", 0, 1, 0.1, 10, eye},
		{"fov 180", 180, 1, 0.1, 10, eye},
		{"zero aspect", 60, 0, 0.1, 10, eye},
		{"NaN aspect", 60, math.NaN(), 0.1, 10, eye},
		{"negative near", 60, 1, -1, 10, eye},
		{"far before near", 60, 1, 10, 1, eye},
		{"eye at target", 60, 1, 0.1, 10, target},
	} {
		_, err := NewPerspectiveCamera(test.fovy, test.aspect, test.n, test.f, test.eye, target, r3.Vec{Y: 1})
		if !errors.Is(err, ErrInvalidProjection) {
			t.Errorf("%s: got %v, want ErrInvalidProjection", test.name, err)
		}
	}
	_, err := NewOrthographicCamera(0, 1, 0.1, 10, eye, target, r3.Vec{})
	if !errors.Is(err, ErrInvalidProjection) {
		t.Errorf("zero ortho height: got %v", err)
	}
	cam, err := NewPerspectiveCamera(60, 1, 0.1, 10, eye, target, r3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	if err := cam.SetAspect(-2); err == nil {
		t.Error("negative aspect accepted")
	}
	if cam.Aspect() != 1 {
		t.Errorf("failed SetAspect modified camera: aspect %g", cam.Aspect())
	}
}

func TestCameraLookingStraightDown(t *testing.T) {
	cam := topDownCamera(t)
	if d := r3.Dot(cam.Up(), cam.Forward()); math.Abs(d) > 1e-12 {
		t.Errorf("up %v not perpendicular to forward %v", cam.Up(), cam.Forward())
	}
	r := cam.Ray(PointerSample{})
	if !near(r.Dir, r3.Vec{Y: -1}) {
		t.Errorf("center ray direction %v", r.Dir)
	}
	if r.Origin != cam.Position() {
		t.Errorf("perspective ray must start at the eye, got %v", r.Origin)
	}
}

func TestIntersectTriangle(t *testing.T) {
	a, b, c := r3.Vec{X: -1, Z: -1}, r3.Vec{X: -1, Z: 1}, r3.Vec{X: 1, Z: 1}
	for _, test := range []struct {
		name  string
		ray   Ray
		hit   bool
		wantT float64
	}{
		{"down inside", NewRay(r3.Vec{X: -0.5, Y: 5, Z: 0.5}, r3.Vec{Y: -1}), true, 5},
		{"up from below", NewRay(r3.Vec{X: -0.5, Y: -2, Z: 0.5}, r3.Vec{Y: 1}), true, 2},
		{"away", NewRay(r3.Vec{X: -0.5, Y: 5, Z: 0.5}, r3.Vec{Y: 1}), false, 0},
		{"outside", NewRay(r3.Vec{X: 0.5, Y: 5, Z: -0.5}, r3.Vec{Y: -1}), false, 0},
		{"parallel", NewRay(r3.Vec{X: -2, Z: 0.5}, r3.Vec{X: 1}), false, 0},
	} {
		gotT, _, _, ok := IntersectTriangle(test.ray, a, b, c)
		if ok != test.hit {
			t.Errorf("%s: hit=%v, want %v", test.name, ok, test.hit)
			continue
		}
		if ok && math.Abs(gotT-test.wantT) > 1e-12 {
			t.Errorf("%s: t=%g, want %g", test.name, gotT, test.wantT)
		}
	}
	// Degenerate triangle.
	if _, _, _, ok := IntersectTriangle(NewRay(r3.Vec{Y: 1}, r3.Vec{Y: -1}), a, a, c); ok {
		t.Error("degenerate triangle hit")
	}
}

func TestRayDownOntoPlane(t *testing.T) {
	plane := groundPlane(20, 0)
	r := NewRay(r3.Vec{Y: 5}, r3.Vec{Y: -1})
	hit, idx := Nearest(r, []Surface{plane})
	if idx != 0 {
		t.Fatal("expected hit on plane")
	}
	if !near(hit.Point, r3.Vec{}) {
		t.Errorf("point %v, want origin", hit.Point)
	}
	if !near(hit.Normal, r3.Vec{Y: 1}) {
		t.Errorf("normal %v, want +Y", hit.Normal)
	}
	if math.Abs(hit.Distance-5) > tol {
		t.Errorf("distance %g, want 5", hit.Distance)
	}
	// Same inputs, same answer.
	again, idx2 := Nearest(r, []Surface{plane})
	if again != hit || idx2 != idx {
		t.Errorf("intersection not idempotent: %v != %v", again, hit)
	}
}

func TestNearestEmptyAndParallel(t *testing.T) {
	r := NewRay(r3.Vec{Y: 1}, r3.Vec{X: 1})
	if _, idx := Nearest(r, nil); idx != -1 {
		t.Error("empty target list hit")
	}
	if _, idx := Nearest(r, []Surface{groundPlane(20, 0)}); idx != -1 {
		t.Error("ray parallel to plane hit")
	}
}

func TestNearerSurfaceWins(t *testing.T) {
	low, high := groundPlane(20, 0), groundPlane(20, 1)
	r := NewRay(r3.Vec{Y: 10}, r3.Vec{Y: -1})
	for _, targets := range [][]Surface{{low, high}, {high, low}} {
		hit, idx := Nearest(r, targets)
		if idx < 0 {
			t.Fatal("miss")
		}
		if targets[idx].(fan).tris[0].A.Y != 1 {
			t.Errorf("farther surface won: %v", hit)
		}
		if math.Abs(hit.Distance-9) > tol {
			t.Errorf("distance %g, want 9", hit.Distance)
		}
	}
	// Ties go to the first target.
	_, idx := Nearest(r, []Surface{low, groundPlane(20, 0)})
	if idx != 0 {
		t.Errorf("tie won by target %d", idx)
	}
}

func TestPickerTopDown(t *testing.T) {
	cam := topDownCamera(t)
	vp := Viewport{Width: 640, Height: 640}
	pk, err := NewPicker(cam, vp, DefaultConfig(), groundPlane(20, 0))
	if err != nil {
		t.Fatal(err)
	}
	if pk.Marker().State() != Hidden {
		t.Fatal("marker must start hidden")
	}
	hit, ok := pk.PointerMove(320, 320)
	if !ok {
		t.Fatal("center pointer missed the plane")
	}
	if !near(hit.Point, r3.Vec{}) {
		t.Errorf("hit %v, want origin", hit.Point)
	}
	mk := pk.Marker()
	if !mk.Visible() || mk.State() != Shown {
		t.Error("marker not shown after hit")
	}
	if !near(mk.Position(), r3.Vec{Y: 0.01}) {
		t.Errorf("marker at %v, want (0,0.01,0)", mk.Position())
	}
	if !near(mk.Normal(), r3.Vec{Y: 1}) {
		t.Errorf("marker normal %v", mk.Normal())
	}
	if _, idx := pk.Last(); idx != 0 {
		t.Errorf("last target %d, want 0", idx)
	}
}

func TestPickerMissHidesMarker(t *testing.T) {
	cam, err := NewPerspectiveCamera(60, 1, 0.1, 500, r3.Vec{Y: 1, Z: 20}, r3.Vec{Y: 1}, r3.Vec{Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	pk, err := NewPicker(cam, Viewport{Width: 100, Height: 100}, DefaultConfig(), groundPlane(100, 0))
	if err != nil {
		t.Fatal(err)
	}
	// Bottom edge looks down onto the plane.
	if _, ok := pk.PointerMove(50, 100); !ok {
		t.Fatal("bottom pointer missed the plane")
	}
	shown := pk.Marker().Position()
	for _, test := range []struct {
		name string
		x, y float64
	}{
		{"above horizon", 50, 0},
		{"horizon", 50, 50},
	} {
		if _, ok := pk.PointerMove(test.x, test.y); ok {
			t.Errorf("%s: unexpected hit", test.name)
		}
		if pk.Marker().Visible() {
			t.Errorf("%s: marker visible after miss", test.name)
		}
		if pk.Marker().Position() != shown {
			t.Errorf("%s: hidden marker moved", test.name)
		}
	}
	if h := pk.Marker().Hits(); h != 1 {
		t.Errorf("marker counted %d hits, want 1", h)
	}

	// Without targets every pointer position misses.
	pk.SetTargets()
	if len(pk.Targets()) != 0 {
		t.Fatalf("targets left after clearing: %d", len(pk.Targets()))
	}
	if _, ok := pk.PointerMove(50, 100); ok || pk.Marker().Visible() {
		t.Error("picker without targets hit")
	}
}

func TestPickerMaxDistance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDistance = 5
	pk, err := NewPicker(topDownCamera(t), Viewport{Width: 10, Height: 10}, cfg, groundPlane(20, 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pk.PointerMove(5, 5); ok {
		t.Error("hit beyond MaxDistance")
	}
	cfg.MaxDistance = 0
	if _, ok := pk.PointerMove(5, 5); !ok {
		t.Error("unlimited distance missed")
	}
}

func TestPickerPreconditions(t *testing.T) {
	cam := topDownCamera(t)
	if _, err := NewPicker(nil, Viewport{1, 1}, DefaultConfig()); err == nil {
		t.Error("nil camera accepted")
	}
	if _, err := NewPicker(cam, Viewport{1, 1}, nil); err == nil {
		t.Error("nil config accepted")
	}
	_, err := NewPicker(cam, Viewport{0, 10}, DefaultConfig())
	if !errors.Is(err, ErrInvalidViewport) {
		t.Errorf("got %v, want ErrInvalidViewport", err)
	}
	pk, err := NewPicker(cam, Viewport{10, 10}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pk.PointerMove(5, 5); ok {
		t.Error("picker without targets hit")
	}
	if err := pk.Resize(Viewport{Width: -1, Height: 3}); !errors.Is(err, ErrInvalidViewport) {
		t.Errorf("resize: got %v", err)
	}
	if err := pk.Resize(Viewport{Width: 300, Height: 100}); err != nil {
		t.Fatal(err)
	}
	if cam.Aspect() != 3 {
		t.Errorf("camera aspect %g after resize, want 3", cam.Aspect())
	}
}

func TestLookSteering(t *testing.T) {
	var ls LookSteering
	ls.PointerMove(10, 10)
	if ls.Lon != 0 || ls.Lat != 0 {
		t.Error("moved without drag")
	}
	ls.PointerDown(100, 100)
	ls.PointerMove(0, 100)
	if math.Abs(ls.Lon-10) > 1e-12 {
		t.Errorf("lon %g, want 10", ls.Lon)
	}
	ls.PointerMove(100, 5000)
	if ls.Lat != 85 {
		t.Errorf("lat %g not clamped to 85", ls.Lat)
	}
	ls.PointerUp()
	if ls.Dragging() {
		t.Error("still dragging after pointer up")
	}

	ls = LookSteering{}
	got := ls.Target(r3.Vec{Y: 2}, 3)
	if !near(got, r3.Vec{X: 3, Y: 2}) {
		t.Errorf("target %v, want (3,2,0)", got)
	}

	cam, err := NewPerspectiveCamera(60, 1, 0.1, 100, r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := ls.Zoom(cam, 1e6); err != nil {
		t.Fatal(err)
	}
	if cam.FovY() != 75 {
		t.Errorf("fov %g not clamped to 75", cam.FovY())
	}
	if err := ls.Zoom(cam, -1e6); err != nil {
		t.Fatal(err)
	}
	if cam.FovY() != 10 {
		t.Errorf("fov %g not clamped to 10", cam.FovY())
	}
	ls.Lon = 90
	if err := ls.Apply(cam); err != nil {
		t.Fatal(err)
	}
	if !near(cam.Forward(), r3.Vec{Z: 1}) {
		t.Errorf("forward %v after steering to lon 90", cam.Forward())
	}
}

func TestLookAlong(t *testing.T) {
	var ls LookSteering
	dir := r3.Unit(r3.Vec{X: -1, Y: -1, Z: 2})
	ls.LookAlong(dir)
	if got := r3.Unit(r3.Sub(ls.Target(r3.Vec{}, 1), r3.Vec{})); !near(got, dir) {
		t.Errorf("look along %v gives %v", dir, got)
	}
	lon, lat := ls.Lon, ls.Lat
	ls.LookAlong(r3.Vec{})
	if ls.Lon != lon || ls.Lat != lat {
		t.Error("zero direction changed the angles")
	}
}

func TestMarkerStateString(t *testing.T) {
	if Hidden.String() != "hidden" || Shown.String() != "shown" {
		t.Error("bad marker state names")
	}
}
