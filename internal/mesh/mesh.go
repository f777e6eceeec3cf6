// Package mesh holds in-memory triangle surfaces and the two queries the
// planner needs from them: closest point and first segment intersection.
// Loading meshes from files is left to callers.
package mesh

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tmsnav/internal/geom"
)

// ErrEmptyMesh is returned by queries against a mesh with no triangles.
var ErrEmptyMesh = errors.New("mesh has no triangles")

// intersectEpsilon rejects rays parallel to a triangle.
const intersectEpsilon = 1e-12

// Triangle is one surface cell. Vertices are counter-clockwise when viewed
// from outside, so geom.PosePlan(A, B, C, ...) yields an outward normal.
type Triangle struct {
	A, B, C geom.Point3
}

// Normal returns the unit outward normal, or the zero vector for a
// degenerate triangle.
func (t Triangle) Normal() r3.Vec {
	n := r3.Cross(r3.Sub(t.B, t.A), r3.Sub(t.C, t.A))
	if r3.Norm(n) < intersectEpsilon {
		return r3.Vec{}
	}
	return r3.Unit(n)
}

// Centroid returns the mean of the three vertices.
func (t Triangle) Centroid() geom.Point3 {
	return geom.Centroid(t.A, t.B, t.C)
}

// Mesh is an unindexed triangle soup. Queries are brute force, which is
// fine for the head-surface sizes the planner sees.
type Mesh struct {
	Triangles []Triangle
}

// New returns a mesh over tris. The slice is not copied.
func New(tris []Triangle) *Mesh {
	return &Mesh{Triangles: tris}
}

// Len returns the triangle count.
func (m *Mesh) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Triangles)
}

// ClosestPoint returns the point on the surface nearest p and the triangle
// that contains it.
func (m *Mesh) ClosestPoint(p geom.Point3) (geom.Point3, Triangle, error) {
	if m.Len() == 0 {
		return geom.Point3{}, Triangle{}, ErrEmptyMesh
	}
	best := math.Inf(1)
	var bestPt geom.Point3
	var bestTri Triangle
	for _, tri := range m.Triangles {
		q := closestOnTriangle(p, tri)
		d := r3.Norm2(r3.Sub(q, p))
		if d < best {
			best, bestPt, bestTri = d, q, tri
		}
	}
	return bestPt, bestTri, nil
}

// IntersectSegment returns the intersection nearest p0 of the segment
// p0→p1 with the surface. ok is false when nothing is hit.
func (m *Mesh) IntersectSegment(p0, p1 geom.Point3) (hit geom.Point3, tri Triangle, ok bool) {
	dir := r3.Sub(p1, p0)
	best := math.Inf(1)
	for _, t := range m.meshTriangles() {
		s, found := segmentParam(p0, dir, t)
		if found && s < best {
			best, tri, ok = s, t, true
		}
	}
	if ok {
		hit = r3.Add(p0, r3.Scale(best, dir))
	}
	return hit, tri, ok
}

func (m *Mesh) meshTriangles() []Triangle {
	if m == nil {
		return nil
	}
	return m.Triangles
}

// Transform returns a copy of m with every vertex mapped through pose.
func (m *Mesh) Transform(pose geom.Pose) *Mesh {
	out := make([]Triangle, m.Len())
	for i, t := range m.meshTriangles() {
		out[i] = Triangle{A: pose.Apply(t.A), B: pose.Apply(t.B), C: pose.Apply(t.C)}
	}
	return New(out)
}

// segmentParam is Möller–Trumbore restricted to s in [0, 1]. Both faces
// count as hits.
func segmentParam(origin, dir r3.Vec, t Triangle) (float64, bool) {
	e1 := r3.Sub(t.B, t.A)
	e2 := r3.Sub(t.C, t.A)
	h := r3.Cross(dir, e2)
	det := r3.Dot(e1, h)
	if math.Abs(det) < intersectEpsilon {
		return 0, false
	}
	inv := 1 / det
	sv := r3.Sub(origin, t.A)
	u := inv * r3.Dot(sv, h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := r3.Cross(sv, e1)
	v := inv * r3.Dot(dir, q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	s := inv * r3.Dot(e2, q)
	if s < 0 || s > 1 {
		return 0, false
	}
	return s, true
}

// closestOnTriangle follows the Voronoi-region walk from Ericson,
// Real-Time Collision Detection §5.1.5.
func closestOnTriangle(p r3.Vec, t Triangle) r3.Vec {
	a, b, c := t.A, t.B, t.C
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)
	d1 := r3.Dot(ab, ap)
	d2 := r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := r3.Sub(p, b)
	d3 := r3.Dot(ab, bp)
	d4 := r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return r3.Add(a, r3.Scale(d1/(d1-d3), ab))
	}

	cp := r3.Sub(p, c)
	d5 := r3.Dot(ab, cp)
	d6 := r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return r3.Add(a, r3.Scale(d2/(d2-d6), ac))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
}
