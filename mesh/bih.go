package mesh

import (
	"sort"

	"github.com/soypat/raymark"
	"github.com/soypat/raymark/internal/d3"
)

const (
	leaf = iota
	xClip
	yClip
	zClip
)

const leafSize = 4

// bihNode is a node of a bounding interval hierarchy. Inner nodes store
// two clipping planes along one axis: the maximum of the left child and
// the minimum of the right child. Leaves store a range of triangles.
type bihNode struct {
	flags       int // offset to children in the upper bits, clip axis in the lower two
	left, right float64
	start, end  int
}

func (b *bihNode) isLeaf() bool { return b.flags&3 == leaf }

// axis returns the 0 based axis of the clipping planes.
func (b *bihNode) axis() int { return b.flags&3 - 1 }

func (b *bihNode) children() int { return b.flags >> 2 }

// buildBIH builds a hierarchy over tris. perm is reordered so that every
// leaf covers a contiguous range of tris[perm[i]].
func buildBIH(tris []Triangle, perm []int, bb d3.Box) []bihNode {
	centroids := make([][3]float64, len(tris))
	for i, t := range tris {
		c := t.Centroid()
		centroids[i] = [3]float64{c.X, c.Y, c.Z}
	}
	nodes := make([]bihNode, 1, 2*len(tris)/leafSize+1)
	return subdivide(nodes, 0, 0, perm, tris, centroids, bb)
}

func subdivide(b []bihNode, bihIdx, offset int, perm []int, tris []Triangle, centroids [][3]float64, bb d3.Box) []bihNode {
	if len(perm) <= leafSize {
		b[bihIdx] = bihNode{flags: leaf, start: offset, end: offset + len(perm)}
		return b
	}
	// Classical heuristic: split the longest axis at the median centroid.
	axis := d3.LongestAxis(bb.Size())
	sort.Slice(perm, func(i, j int) bool {
		return centroids[perm[i]][axis] < centroids[perm[j]][axis]
	})
	half := len(perm) / 2
	leftBB, rightBB := d3.Empty(), d3.Empty()
	for _, p := range perm[:half] {
		for _, v := range tris[p].V {
			leftBB = leftBB.Include(v)
		}
	}
	for _, p := range perm[half:] {
		for _, v := range tris[p].V {
			rightBB = rightBB.Include(v)
		}
	}

	// Append two new nodes to store the children.
	childIdx := len(b)
	b = append(b, bihNode{}, bihNode{})
	b = subdivide(b, childIdx, offset, perm[:half], tris, centroids, leftBB)
	b = subdivide(b, childIdx+1, offset+half, perm[half:], tris, centroids, rightBB)

	b[bihIdx] = bihNode{
		flags: childIdx<<2 | (axis + xClip),
		left:  d3.Component(leftBB.Max, axis),
		right: d3.Component(rightBB.Min, axis),
	}
	return b
}

// nearestHit traverses the hierarchy front to back, pruning children
// whose interval starts beyond the nearest hit found so far.
func (m *Mesh) nearestHit(r raymark.Ray, idx int, bb d3.Box, h *rayHit) {
	node := &m.nodes[idx]
	if node.isLeaf() {
		for i := node.start; i < node.end; i++ {
			m.testTriangle(r, i, h)
		}
		return
	}
	axis := node.axis()
	leftBB, rightBB := bb, bb
	leftBB.Max = d3.SetComponent(leftBB.Max, axis, node.left)
	rightBB.Min = d3.SetComponent(rightBB.Min, axis, node.right)

	li := node.children()
	lmin, _, lok := leftBB.Enlarge(m.pad).IntersectRay(r.Origin, r.Dir)
	rmin, _, rok := rightBB.Enlarge(m.pad).IntersectRay(r.Origin, r.Dir)
	if lok && rok && rmin < lmin {
		m.visit(r, li+1, rightBB, rmin, h)
		m.visit(r, li, leftBB, lmin, h)
		return
	}
	if lok {
		m.visit(r, li, leftBB, lmin, h)
	}
	if rok {
		m.visit(r, li+1, rightBB, rmin, h)
	}
}

func (m *Mesh) visit(r raymark.Ray, idx int, bb d3.Box, tmin float64, h *rayHit) {
	if tmin <= h.t {
		m.nearestHit(r, idx, bb, h)
	}
}
