package navsvc

import (
	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/plan"
)

// PoseView is the JSON form of a pose: origin in mm, quaternion in wire
// order (x, y, z, w) and the tool normal.
type PoseView struct {
	Origin     [3]float64 `json:"origin"`
	Quaternion [4]float64 `json:"quaternion"`
	Normal     [3]float64 `json:"normal"`
}

func newPoseView(p *geom.Pose) *PoseView {
	if p == nil {
		return nil
	}
	q := p.Quaternion()
	n := p.Normal()
	return &PoseView{
		Origin:     [3]float64{p.Origin.X, p.Origin.Y, p.Origin.Z},
		Quaternion: [4]float64{q.X, q.Y, q.Z, q.W},
		Normal:     [3]float64{n.X, n.Y, n.Z},
	}
}

// GridView summarizes a grid plan.
type GridView struct {
	ID        string     `json:"id"`
	SpacingMm float64    `json:"spacing_mm"`
	Current   int        `json:"current"`
	Waypoints []PoseView `json:"waypoints"`
}

// PlanView is the JSON form of plan.State.
type PlanView struct {
	PlanOnBrain bool      `json:"plan_on_brain"`
	Policy      string    `json:"policy"`
	Target      *PoseView `json:"target,omitempty"`
	Cortex      *PoseView `json:"cortex,omitempty"`
	SkinRay     *PoseView `json:"skin_ray,omitempty"`
	SkinClosest *PoseView `json:"skin_closest,omitempty"`
	Grid        *GridView `json:"grid,omitempty"`
}

// NewPlanView converts a planner snapshot.
func NewPlanView(s plan.State) PlanView {
	v := PlanView{
		PlanOnBrain: s.PlanOnBrain,
		Policy:      s.Policy.String(),
		Target:      newPoseView(s.Target),
		Cortex:      newPoseView(s.Cortex),
		SkinRay:     newPoseView(s.SkinRay),
		SkinClosest: newPoseView(s.SkinClosest),
	}
	if g := s.Grid; g != nil {
		gv := &GridView{ID: g.ID.String(), SpacingMm: g.Spacing, Current: g.Current}
		for i := range g.Waypoints {
			gv.Waypoints = append(gv.Waypoints, *newPoseView(&g.Waypoints[i]))
		}
		v.Grid = gv
	}
	return v
}
