package mesh

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/fauxgl"
	"gonum.org/v1/gonum/spatial/r3"
)

// Load reads the mesh file at path. Binary STL is read natively, Wavefront
// OBJ, PLY and 3DS files are read with fauxgl. Vertex normals present in
// the file are kept.
func Load(path string) (*Mesh, error) {
	var (
		tris []Triangle
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".stl":
		tris, err = loadSTL(path)
	case ".obj", ".ply", ".3ds":
		var fm *fauxgl.Mesh
		switch ext {
		case ".obj":
			fm, err = fauxgl.LoadOBJ(path)
		case ".ply":
			fm, err = fauxgl.LoadPLY(path)
		default:
			fm, err = fauxgl.Load3DS(path)
		}
		if err == nil {
			tris = FromFauxgl(fm)
		}
	default:
		return nil, fmt.Errorf("unsupported mesh format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return New(tris)
}

func loadSTL(path string) ([]Triangle, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	tris, err := ReadSTL(fp)
	if errors.Is(err, ErrNormalMismatch) {
		err = nil
	}
	return tris, err
}

// FromFauxgl converts fauxgl triangles. Vertex normals are kept when all
// three are set.
func FromFauxgl(fm *fauxgl.Mesh) []Triangle {
	tris := make([]Triangle, 0, len(fm.Triangles))
	for _, ft := range fm.Triangles {
		var t Triangle
		for i, v := range [3]fauxgl.Vertex{ft.V1, ft.V2, ft.V3} {
			t.V[i] = fromVector(v.Position)
			t.N[i] = fromVector(v.Normal)
		}
		if !t.HasNormals() {
			t.N = [3]r3.Vec{}
		}
		tris = append(tris, t)
	}
	return tris
}

// Fauxgl converts triangles to a fauxgl mesh for rendering. Flat triangles
// get their face normal on every vertex.
func Fauxgl(tris []Triangle) *fauxgl.Mesh {
	fts := make([]*fauxgl.Triangle, len(tris))
	for i, t := range tris {
		ft := fauxgl.NewTriangleForPoints(toVector(t.V[0]), toVector(t.V[1]), toVector(t.V[2]))
		if t.HasNormals() {
			ft.V1.Normal = toVector(t.N[0])
			ft.V2.Normal = toVector(t.N[1])
			ft.V3.Normal = toVector(t.N[2])
		}
		fts[i] = ft
	}
	return fauxgl.NewTriangleMesh(fts)
}

func fromVector(v fauxgl.Vector) r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

func toVector(v r3.Vec) fauxgl.Vector { return fauxgl.V(v.X, v.Y, v.Z) }
