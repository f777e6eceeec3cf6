// Package plan computes stimulation-coil target poses from landmark sets and
// anatomical surfaces, and keeps the per-module planning state.
package plan

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tmsnav/internal/geom"
)

var (
	// ErrInvalidLandmarkCount is returned when a tool pose is requested from
	// anything other than 2, 3 or 4 landmarks.
	ErrInvalidLandmarkCount = errors.New("tool pose needs 2, 3 or 4 landmarks")
	// ErrNotImplemented is returned for the combined orientation policy.
	ErrNotImplemented = errors.New("not implemented")
	// ErrNoTarget is returned by operations that need a planned target.
	ErrNoTarget = errors.New("no tool pose planned")
	// ErrNoIntersection is returned when a projection ray misses the surface.
	ErrNoIntersection = errors.New("ray does not intersect surface")
	// ErrNoSurface is returned when an operation needs a surface that was
	// not supplied.
	ErrNoSurface = errors.New("surface not available")
	// ErrInvalidGridCount is returned for grid plans with fewer than one
	// waypoint.
	ErrInvalidGridCount = errors.New("grid plan needs at least one waypoint")
)

// ProjectionRayLength is how far along the normal a cortex pose is cast
// when looking for the skin above it, in millimetres.
const ProjectionRayLength = 10000.0

// ToolPose builds the raw tool pose for a landmark set.
//
//   - 4 landmarks: points 1..3 span the plane and point 0 is the origin.
//   - 3 landmarks: the points span the plane and their centroid is the origin.
//   - 2 landmarks: point 0 is the origin and point 1 fixes the in-plane axis;
//     the plane is the anchor triangle closest to point 0.
//
// The returned override point is what later projections must keep using to
// fix the in-plane axis.
func ToolPose(landmarks []geom.Point3, anchor Surface) (geom.Pose, geom.Point3, error) {
	var a, b, c, origin, override geom.Point3
	switch len(landmarks) {
	case 4:
		origin = landmarks[0]
		a, b, c = landmarks[1], landmarks[2], landmarks[3]
		override = c
	case 3:
		a, b, c = landmarks[0], landmarks[1], landmarks[2]
		origin = geom.Centroid(a, b, c)
		override = c
	case 2:
		if anchor == nil {
			return geom.Pose{}, geom.Point3{}, fmt.Errorf("anchor surface: %w", ErrNoSurface)
		}
		origin, override = landmarks[0], landmarks[1]
		_, tri, err := anchor.ClosestPoint(origin)
		if err != nil {
			return geom.Pose{}, geom.Point3{}, fmt.Errorf("closest anchor triangle: %w", err)
		}
		a, b, c = tri.A, tri.B, tri.C
	default:
		return geom.Pose{}, geom.Point3{}, fmt.Errorf("%w: got %d", ErrInvalidLandmarkCount, len(landmarks))
	}

	r, err := geom.PosePlan(a, b, c, origin, &override)
	if err != nil {
		return geom.Pose{}, geom.Point3{}, err
	}
	return geom.NewPose(origin, r), override, nil
}

// ProjectAlongNormal casts pose's normal from its origin and returns the pose
// at the first surface hit, oriented on the hit triangle.
func ProjectAlongNormal(pose geom.Pose, overrideY geom.Point3, surface Surface) (geom.Pose, error) {
	if surface == nil {
		return geom.Pose{}, ErrNoSurface
	}
	end := r3.Add(pose.Origin, r3.Scale(ProjectionRayLength, pose.Normal()))
	hit, tri, ok := surface.IntersectSegment(pose.Origin, end)
	if !ok {
		return geom.Pose{}, ErrNoIntersection
	}
	r, err := geom.PosePlan(tri.A, tri.B, tri.C, hit, &overrideY)
	if err != nil {
		return geom.Pose{}, err
	}
	return geom.NewPose(hit, r), nil
}

// ProjectClosest returns the pose at the surface point closest to pose's
// origin, oriented on that point's triangle.
func ProjectClosest(pose geom.Pose, overrideY geom.Point3, surface Surface) (geom.Pose, error) {
	if surface == nil {
		return geom.Pose{}, ErrNoSurface
	}
	q, tri, err := surface.ClosestPoint(pose.Origin)
	if err != nil {
		return geom.Pose{}, err
	}
	r, err := geom.PosePlan(tri.A, tri.B, tri.C, q, &overrideY)
	if err != nil {
		return geom.Pose{}, err
	}
	return geom.NewPose(q, r), nil
}
