// Package scene holds the named meshes rays are cast against.
package scene

import (
	"errors"
	"fmt"
	"sync"

	"github.com/soypat/raymark"
	"github.com/soypat/raymark/config"
	"github.com/soypat/raymark/mesh"
)

// ErrClosed is returned when modifying a closed scene.
var ErrClosed = errors.New("scene closed")

type slot struct {
	name string
	mesh *mesh.Mesh
}

// Scene is an ordered list of named mesh slots. It owns its meshes:
// a mesh replaced, removed or left at Close is released.
// Scene is safe for concurrent use. A mesh is never released while a
// pick is reading it.
type Scene struct {
	mu     sync.RWMutex
	slots  []slot
	closed bool
	// version increments on every change to the slots.
	version uint64
}

var _ raymark.Surface = (*Scene)(nil)

// New returns an empty scene.
func New() *Scene { return &Scene{} }

// Replace installs m under name. When the name is taken the previous mesh
// is released after the swap, keeping the slot position, else the slot is
// appended. Order decides which slot wins a tie between equal distances.
func (s *Scene) Replace(name string, m *mesh.Mesh) error {
	if m == nil {
		return fmt.Errorf("nil mesh for %q", name)
	}
	if m.Released() {
		return fmt.Errorf("released mesh for %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.version++
	for i := range s.slots {
		if s.slots[i].name == name {
			old := s.slots[i].mesh
			s.slots[i].mesh = m
			if old != m {
				old.Release()
			}
			return nil
		}
	}
	s.slots = append(s.slots, slot{name: name, mesh: m})
	return nil
}

// Remove drops and releases the mesh under name. It reports whether the
// name was present.
func (s *Scene) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if s.slots[i].name == name {
			s.slots[i].mesh.Release()
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			s.version++
			return true
		}
	}
	return false
}

// Names returns the slot names in order.
func (s *Scene) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.slots))
	for i, sl := range s.slots {
		names[i] = sl.name
	}
	return names
}

// Len returns the number of slots.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Version returns a counter that changes whenever slots change.
func (s *Scene) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// View calls fn with the meshes in slot order while holding the read
// lock, so that none of them is released during fn. fn must not retain
// the meshes or modify the scene.
func (s *Scene) View(fn func(names []string, meshes []*mesh.Mesh) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.slots))
	meshes := make([]*mesh.Mesh, len(s.slots))
	for i, sl := range s.slots {
		names[i], meshes[i] = sl.name, sl.mesh
	}
	return fn(names, meshes)
}

// Pick returns the nearest hit of r among the slots and the name of the
// slot hit.
func (s *Scene) Pick(r raymark.Ray) (name string, hit raymark.Intersection, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := -1
	for i, sl := range s.slots {
		h, hitOK := sl.mesh.Intersect(r)
		if hitOK && (best < 0 || h.Distance < hit.Distance) {
			hit, best = h, i
		}
	}
	if best < 0 {
		return "", raymark.Intersection{Face: -1}, false
	}
	return s.slots[best].name, hit, true
}

// Intersect implements raymark.Surface so a whole scene can be a picker target.
func (s *Scene) Intersect(r raymark.Ray) (raymark.Intersection, bool) {
	_, hit, ok := s.Pick(r)
	return hit, ok
}

// Slot returns a Surface intersecting only the mesh currently installed
// under name. It follows replacements and misses while name is absent.
func (s *Scene) Slot(name string) raymark.Surface { return slotSurface{s: s, name: name} }

type slotSurface struct {
	s    *Scene
	name string
}

func (ss slotSurface) Intersect(r raymark.Ray) (raymark.Intersection, bool) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()
	for _, sl := range ss.s.slots {
		if sl.name == ss.name {
			return sl.mesh.Intersect(r)
		}
	}
	return raymark.Intersection{Face: -1}, false
}

// Surfaces returns one Slot surface per slot name, in slot order.
func (s *Scene) Surfaces() (names []string, surfaces []raymark.Surface) {
	names = s.Names()
	surfaces = make([]raymark.Surface, len(names))
	for i, name := range names {
		surfaces[i] = s.Slot(name)
	}
	return names, surfaces
}

// Load builds every target and installs them in order, removing slots
// whose names are not among targets. Nothing changes when a target fails
// to build.
func (s *Scene) Load(targets []config.Target, baseDir string) error {
	built := make([]*mesh.Mesh, 0, len(targets))
	release := func() {
		for _, m := range built {
			m.Release()
		}
	}
	for _, t := range targets {
		m, err := t.Build(baseDir)
		if err != nil {
			release()
			return err
		}
		built = append(built, m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		release()
		return ErrClosed
	}
	old := make(map[string]*mesh.Mesh, len(s.slots))
	for _, sl := range s.slots {
		old[sl.name] = sl.mesh
	}
	slots := make([]slot, len(targets))
	for i, t := range targets {
		slots[i] = slot{name: t.Name, mesh: built[i]}
	}
	s.slots = slots
	s.version++
	for _, m := range old {
		m.Release()
	}
	return nil
}

// Close releases all meshes. Further calls to Replace fail.
func (s *Scene) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, sl := range s.slots {
		sl.mesh.Release()
	}
	s.slots = nil
	s.closed = true
	s.version++
	return nil
}
