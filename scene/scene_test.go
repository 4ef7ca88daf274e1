package scene

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/soypat/raymark"
	"github.com/soypat/raymark/config"
	"github.com/soypat/raymark/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

func plane(t *testing.T, y float64) *mesh.Mesh {
	t.Helper()
	m, err := mesh.Plane(20, 20, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetTransform(r3.Vec{Y: y}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Rotation{}); err != nil {
		t.Fatal(err)
	}
	return m
}

var downRay = raymark.NewRay(r3.Vec{X: 1.3, Y: 10, Z: -2.1}, r3.Vec{Y: -1})

func TestReplaceReleasesOld(t *testing.T) {
	sc := New()
	ground := plane(t, 0)
	if err := sc.Replace("ground", ground); err != nil {
		t.Fatal(err)
	}
	if err := sc.Replace("deck", plane(t, 2)); err != nil {
		t.Fatal(err)
	}
	raised := plane(t, 5)
	if err := sc.Replace("ground", raised); err != nil {
		t.Fatal(err)
	}
	if !ground.Released() {
		t.Error("replaced mesh not released")
	}
	names := sc.Names()
	if len(names) != 2 || names[0] != "ground" || names[1] != "deck" {
		t.Errorf("slot order %v", names)
	}
	name, hit, ok := sc.Pick(downRay)
	if !ok || name != "ground" || math.Abs(hit.Point.Y-5) > 1e-9 {
		t.Errorf("pick %q %v %v, want raised ground", name, hit.Point, ok)
	}
	if err := sc.Replace("x", ground); err == nil {
		t.Error("released mesh installed")
	}
	if err := sc.Replace("x", nil); err == nil {
		t.Error("nil mesh installed")
	}
}

func TestRemoveAndClose(t *testing.T) {
	sc := New()
	a, b := plane(t, 0), plane(t, 1)
	sc.Replace("a", a)
	sc.Replace("b", b)
	v := sc.Version()
	if !sc.Remove("b") || sc.Remove("b") {
		t.Error("remove must report presence")
	}
	if !b.Released() {
		t.Error("removed mesh not released")
	}
	if sc.Version() == v {
		t.Error("version unchanged after remove")
	}
	if _, hit, ok := sc.Pick(downRay); !ok || math.Abs(hit.Point.Y) > 1e-9 {
		t.Errorf("pick after remove: %v %v", hit, ok)
	}
	if err := sc.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.Released() || sc.Len() != 0 {
		t.Error("close did not release meshes")
	}
	if err := sc.Replace("a", plane(t, 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	if _, ok := sc.Intersect(downRay); ok {
		t.Error("closed scene hit")
	}
}

func TestSceneAsPickerTarget(t *testing.T) {
	sc := New()
	sc.Replace("ground", plane(t, 0))
	pk, err := raymark.NewPicker(topDown(t), raymark.Viewport{Width: 100, Height: 100}, raymark.DefaultConfig(), sc)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pk.PointerMove(61, 43); !ok {
		t.Fatal("missed ground")
	}
	if y := pk.Marker().Position().Y; y < 0.0099 || y > 0.0101 {
		t.Errorf("marker height %g, want 0.01", y)
	}
	sc.Remove("ground")
	if _, ok := pk.PointerMove(61, 43); ok || pk.Marker().Visible() {
		t.Error("marker visible over removed ground")
	}
}

func TestConcurrentPickAndReplace(t *testing.T) {
	sc := New()
	sc.Replace("ground", plane(t, 0))
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if _, _, ok := sc.Pick(downRay); !ok {
					t.Error("pick missed during replacement")
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		sc.Replace("ground", plane(t, float64(i%3)))
	}
	wg.Wait()
}

func TestView(t *testing.T) {
	sc := New()
	sc.Replace("a", plane(t, 0))
	err := sc.View(func(names []string, meshes []*mesh.Mesh) error {
		if len(names) != 1 || len(meshes) != 1 || meshes[0].Released() {
			t.Errorf("view %v %v", names, meshes)
		}
		return errors.New("stop")
	})
	if err == nil || err.Error() != "stop" {
		t.Errorf("view error %v not returned", err)
	}
}

func TestSlotFollowsReplacement(t *testing.T) {
	sc := New()
	sc.Replace("ground", plane(t, 0))
	sc.Replace("deck", plane(t, 2))
	names, surfaces := sc.Surfaces()
	if len(names) != 2 || len(surfaces) != 2 {
		t.Fatalf("surfaces %v", names)
	}
	pk, err := raymark.NewPicker(topDown(t), raymark.Viewport{Width: 100, Height: 100}, raymark.DefaultConfig(), surfaces...)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pk.PointerMove(61, 43); !ok {
		t.Fatal("missed")
	}
	if _, idx := pk.Last(); names[idx] != "deck" {
		t.Errorf("hit %q, want deck", names[idx])
	}
	sc.Replace("deck", plane(t, -3))
	pk.PointerMove(61, 43)
	if _, idx := pk.Last(); names[idx] != "ground" {
		t.Errorf("hit %q after lowering deck, want ground", names[idx])
	}
	if _, ok := sc.Slot("nothing").Intersect(downRay); ok {
		t.Error("absent slot hit")
	}
}

func TestLoad(t *testing.T) {
	sc := New()
	stale := plane(t, 0)
	sc.Replace("stale", stale)
	targets := []config.Target{
		{Name: "ground", Primitive: mesh.PrimPlane, Width: 20, Depth: 20},
		{Name: "crate", Primitive: mesh.PrimBox, Width: 1, Height: 1, Depth: 1, Position: [3]float64{1.5, 0.5, -2}},
	}
	if err := sc.Load(targets, "."); err != nil {
		t.Fatal(err)
	}
	if !stale.Released() {
		t.Error("stale slot not released")
	}
	names := sc.Names()
	if len(names) != 2 || names[0] != "ground" || names[1] != "crate" {
		t.Fatalf("names %v", names)
	}
	name, hit, ok := sc.Pick(downRay)
	if !ok || name != "crate" || math.Abs(hit.Point.Y-1) > 1e-9 {
		t.Errorf("pick %q %v %v, want crate top", name, hit.Point, ok)
	}

	v := sc.Version()
	bad := append(targets, config.Target{Name: "bad", Primitive: "teapot"})
	if err := sc.Load(bad, "."); err == nil {
		t.Fatal("bad target accepted")
	}
	if sc.Version() != v || sc.Len() != 2 {
		t.Error("failed load changed the scene")
	}
}

func topDown(t *testing.T) *raymark.PerspectiveCamera {
	t.Helper()
	cam, err := raymark.NewPerspectiveCamera(60, 1, 0.1, 100, r3.Vec{Y: 10}, r3.Vec{}, r3.Vec{Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	return cam
}
