package plan

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tmsnav/internal/geom"
)

// Direction is one square-spiral step in the base pose's local XY plane.
type Direction int

const (
	PlusX Direction = iota + 1
	PlusY
	MinusX
	MinusY
)

// Grid search limits for re-projecting waypoints, in millimetres.
const (
	GridRayStep = 5.0
	GridRayMax  = 1000.0
)

func (d Direction) String() string {
	switch d {
	case PlusX:
		return "+X"
	case PlusY:
		return "+Y"
	case MinusX:
		return "-X"
	case MinusY:
		return "-Y"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Offset returns the local translation for one step of the given spacing.
func (d Direction) Offset(spacing float64) r3.Vec {
	switch d {
	case PlusX:
		return r3.Vec{X: spacing}
	case PlusY:
		return r3.Vec{Y: spacing}
	case MinusX:
		return r3.Vec{X: -spacing}
	case MinusY:
		return r3.Vec{Y: -spacing}
	}
	return r3.Vec{}
}

// SpiralDirections returns the first n directions of the square spiral
// +X, +Y, -X, -X, -Y, -Y, +X, +X, +X, +Y, ... Ring L is complete at step
// (2L-1)²; each new ring opens with +X and turns at fixed offsets from the
// last completed square.
func SpiralDirections(n int) []Direction {
	dirs := make([]Direction, 0, max(n, 0))
	level := 0
	for step := 1; step <= n; step++ {
		if step == 1 {
			dirs = append(dirs, PlusX)
			level = 1
			continue
		}
		next := level + 1
		off := step - (2*level-1)*(2*level-1)
		switch {
		case step-(2*next-1)*(2*next-1) == 0:
			level++
			dirs = append(dirs, PlusX)
		case off == 1:
			dirs = append(dirs, PlusY)
		case off == 2*next-2:
			dirs = append(dirs, MinusX)
		case off == 4*next-4:
			dirs = append(dirs, MinusY)
		case off == 6*next-6:
			dirs = append(dirs, PlusX)
		default:
			dirs = append(dirs, dirs[len(dirs)-1])
		}
	}
	return dirs
}

// GridPlan is an ordered set of scan waypoints around a base pose.
type GridPlan struct {
	ID        uuid.UUID
	Spacing   float64
	Waypoints []geom.Pose
	Current   int
}

// Len returns the number of waypoints.
func (g *GridPlan) Len() int { return len(g.Waypoints) }

// At returns the waypoint at the current index.
func (g *GridPlan) At() geom.Pose { return g.Waypoints[g.Current] }

// Next advances the current index, wrapping to 0 after the last waypoint,
// and returns the new current waypoint.
func (g *GridPlan) Next() geom.Pose {
	g.Current = (g.Current + 1) % len(g.Waypoints)
	return g.At()
}

func (g *GridPlan) clone() *GridPlan {
	if g == nil {
		return nil
	}
	c := *g
	c.Waypoints = append([]geom.Pose(nil), g.Waypoints...)
	return &c
}

// GenerateGridPlan lays count waypoints on a square spiral spaced spacing mm
// apart in base's local XY plane. Every step is taken in the frame reached
// by the previous one. Waypoints after the base are then dropped back onto
// surface along their normal, searching both ways, and re-oriented on the
// hit triangle with overrideY fixing the in-plane axis.
func GenerateGridPlan(base geom.Pose, count int, spacing float64, surface Surface, overrideY geom.Point3) (*GridPlan, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidGridCount, count)
	}
	if count > 1 && surface == nil {
		return nil, ErrNoSurface
	}

	waypoints := make([]geom.Pose, 0, count)
	waypoints = append(waypoints, base)
	running := base
	for _, d := range SpiralDirections(count)[:count-1] {
		running = running.Compose(geom.Translation(d.Offset(spacing)))
		waypoints = append(waypoints, running)
	}

	for i := 1; i < len(waypoints); i++ {
		p, err := reproject(waypoints[i], overrideY, surface)
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		waypoints[i] = p
	}

	return &GridPlan{
		ID:        uuid.New(),
		Spacing:   spacing,
		Waypoints: waypoints,
	}, nil
}

// reproject widens a segment through pose along its normal until it crosses
// the surface.
func reproject(pose geom.Pose, overrideY geom.Point3, surface Surface) (geom.Pose, error) {
	n := pose.Normal()
	for length := GridRayStep; length <= GridRayMax; length += GridRayStep {
		p0 := r3.Add(pose.Origin, r3.Scale(length, n))
		p1 := r3.Sub(pose.Origin, r3.Scale(length, n))
		hit, tri, ok := surface.IntersectSegment(p0, p1)
		if !ok {
			continue
		}
		r, err := geom.PosePlan(tri.A, tri.B, tri.C, hit, &overrideY)
		if err != nil {
			return geom.Pose{}, err
		}
		return geom.NewPose(hit, r), nil
	}
	return geom.Pose{}, ErrNoIntersection
}
