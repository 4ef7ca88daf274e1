package mesh

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
	"gonum.org/v1/gonum/spatial/r3"
)

// WriteSTL writes triangles to w in binary STL format. Vertex normals are
// not stored, the face normal of each triangle is.
func WriteSTL(w io.Writer, model []Triangle) error {
	if len(model) == 0 {
		return errors.New("empty triangle slice")
	}
	bw := bufio.NewWriter(w)
	header := stlHeader{Count: uint32(len(model))}
	if err := binary.Write(bw, binary.LittleEndian, &header); err != nil {
		return err
	}
	var b [stlTriangleSize]byte
	for _, triangle := range model {
		stlRecord(triangle).put(b[:])
		if _, err := bw.Write(b[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ErrNormalMismatch is returned by ReadSTL next to the triangles read when
// stored normals disagree with the vertex winding. Models written by some
// tools trigger it while being usable.
var ErrNormalMismatch = errors.New("STL triangle normal not approximately equal to normal calculated from vertices")

// ReadSTL reads binary STL triangles from r. Triangles whose stored normal
// points against their winding are flipped so that the winding follows
// the stored normal.
func ReadSTL(r io.Reader) (output []Triangle, readErr error) {
	var header stlHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errors.New("encountered EOF while reading STL header")
		}
		return nil, fmt.Errorf("STL header read failed: %w", err)
	}
	if header.Count == 0 {
		return nil, errors.New("STL header indicates 0 triangles present")
	}
	var (
		buf            [stlTriangleSize]byte
		d              stlTriangle
		i              int
		normMismatches int
	)
	defer func() {
		if readErr != nil && !errors.Is(readErr, ErrNormalMismatch) {
			readErr = fmt.Errorf("%d/%d STL triangles read: %w", i+1, header.Count, readErr)
		}
	}()
	output = make([]Triangle, 0, min(int(header.Count), 1<<20))
	for i = 0; i < int(header.Count); i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		d.get(buf[:])
		if err := d.validate(); err != nil {
			if !errors.Is(err, ErrNormalMismatch) {
				return nil, err
			}
			normMismatches++
			if normMismatches > 10_000 {
				return output, fmt.Errorf("got too many normal vector mismatches (%d)", normMismatches)
			}
			readErr = err
		}
		output = append(output, d.toTriangle())
	}
	return output, readErr
}

const stlTriangleSize = 50

// stlHeader defines the STL file header.
type stlHeader struct {
	_     [80]uint8 // Header
	Count uint32    // Number of triangles
}

// stlTriangle defines the triangle data within an STL file.
type stlTriangle struct {
	Normal   ms3.Vec
	Vertices ms3.Triangle
	_        uint16 // Attribute byte count
}

func (t stlTriangle) put(b []byte) {
	if len(b) < stlTriangleSize {
		panic("need length 50 to marshal stlTriangle")
	}
	putVec(b, t.Normal)
	putVec(b[12:], t.Vertices[0])
	putVec(b[24:], t.Vertices[1])
	putVec(b[36:], t.Vertices[2])
	binary.LittleEndian.PutUint16(b[48:], 0)
}

func (t *stlTriangle) get(b []byte) {
	if len(b) < stlTriangleSize {
		panic("need length 50 to unmarshal stlTriangle")
	}
	t.Normal = getVec(b)
	t.Vertices[0] = getVec(b[12:])
	t.Vertices[1] = getVec(b[24:])
	t.Vertices[2] = getVec(b[36:])
}

func putVec(b []byte, v ms3.Vec) {
	_ = b[11] // early bounds check
	binary.LittleEndian.PutUint32(b, math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.Z))
}

func getVec(b []byte) ms3.Vec {
	_ = b[11] // early bounds check
	return ms3.Vec{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b)),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}

func badVec(v ms3.Vec) bool {
	return math32.IsNaN(v.X) || math32.IsInf(v.X, 0) ||
		math32.IsNaN(v.Y) || math32.IsInf(v.Y, 0) ||
		math32.IsNaN(v.Z) || math32.IsInf(v.Z, 0)
}

func (t stlTriangle) validate() error {
	const epsilon = 1e-12
	const normTol = 5e-2
	if badVec(t.Normal) {
		return errors.New("inf/NaN STL triangle normal")
	}
	if badVec(t.Vertices[0]) || badVec(t.Vertices[1]) || badVec(t.Vertices[2]) {
		return errors.New("inf/NaN STL triangle vertex")
	}
	if t.Vertices.IsDegenerate(epsilon) {
		return errors.New("triangle is degenerate")
	}
	if t.Normal == (ms3.Vec{}) {
		// Many exporters leave the normal blank.
		return nil
	}
	calc := t.normalFromVertices()
	if !ms3.EqualElem(calc, t.Normal, normTol) && !ms3.EqualElem(ms3.Scale(-1, calc), t.Normal, normTol) {
		return ErrNormalMismatch
	}
	return nil
}

// normalFromVertices scales the vertices up before the cross product so
// small triangles keep float32 precision.
func (t stlTriangle) normalFromVertices() ms3.Vec {
	v1 := ms3.Scale(10, t.Vertices[0])
	v2 := ms3.Scale(10, t.Vertices[1])
	v3 := ms3.Scale(10, t.Vertices[2])
	return ms3.Unit(ms3.Cross(ms3.Sub(v2, v1), ms3.Sub(v3, v1)))
}

// toTriangle converts the record to a mesh triangle whose winding follows
// the stored normal.
func (t stlTriangle) toTriangle() Triangle {
	tri := Triangle{V: [3]r3.Vec{
		fromMS3(t.Vertices[0]),
		fromMS3(t.Vertices[1]),
		fromMS3(t.Vertices[2]),
	}}
	if r3.Dot(fromMS3(t.Normal), tri.Normal()) < 0 {
		tri.V[1], tri.V[2] = tri.V[2], tri.V[1]
	}
	return tri
}

func stlRecord(tri Triangle) stlTriangle {
	var d stlTriangle
	for i, v := range tri.V {
		d.Vertices[i] = toMS3(v)
	}
	d.Normal = ms3.Unit(d.Vertices.Normal())
	return d
}

func fromMS3(v ms3.Vec) r3.Vec {
	return r3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

func toMS3(v r3.Vec) ms3.Vec {
	return ms3.Vec{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}
