package plan

import (
	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/mesh"
)

// Surface is the query capability the planner needs from an anatomical mesh.
// *mesh.Mesh implements it.
type Surface interface {
	// ClosestPoint returns the surface point nearest p and its triangle.
	ClosestPoint(p geom.Point3) (geom.Point3, mesh.Triangle, error)
	// IntersectSegment returns the hit nearest p0 on the segment p0→p1.
	IntersectSegment(p0, p1 geom.Point3) (geom.Point3, mesh.Triangle, bool)
}

// OffsetSurface places a surface that lives in its own local frame (the
// brain mesh under its parent transform) into the planning frame. Offset
// maps local coordinates to planning coordinates.
type OffsetSurface struct {
	Surface Surface
	Offset  geom.Pose
}

func (o OffsetSurface) ClosestPoint(p geom.Point3) (geom.Point3, mesh.Triangle, error) {
	q, tri, err := o.Surface.ClosestPoint(o.Offset.Inverse().Apply(p))
	if err != nil {
		return geom.Point3{}, mesh.Triangle{}, err
	}
	return o.Offset.Apply(q), o.toParent(tri), nil
}

func (o OffsetSurface) IntersectSegment(p0, p1 geom.Point3) (geom.Point3, mesh.Triangle, bool) {
	inv := o.Offset.Inverse()
	hit, tri, ok := o.Surface.IntersectSegment(inv.Apply(p0), inv.Apply(p1))
	if !ok {
		return geom.Point3{}, mesh.Triangle{}, false
	}
	return o.Offset.Apply(hit), o.toParent(tri), true
}

func (o OffsetSurface) toParent(t mesh.Triangle) mesh.Triangle {
	return mesh.Triangle{A: o.Offset.Apply(t.A), B: o.Offset.Apply(t.B), C: o.Offset.Apply(t.C)}
}
