package registration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/mesh"
)

// ErrLandmarkCountMismatch is returned when digitized and planned landmark
// sets differ in length.
var ErrLandmarkCountMismatch = errors.New("landmark count mismatch")

// Align maps a tracker-frame point back into the planning frame through the
// inverse of (R, t): Rᵀp − Rᵀt.
func Align(p geom.Point3, R geom.RotationMatrix, t geom.Point3) geom.Point3 {
	rt := R.Transpose()
	return r3.Sub(rt.MulVec(p), rt.MulVec(t))
}

// ComputeErrors aligns each digitized landmark with the inverse registration
// and returns its distance to the matching planned landmark.
func ComputeErrors(digitized []geom.Point3, R geom.RotationMatrix, t geom.Point3, planned []geom.Point3) ([]float64, error) {
	if len(digitized) != len(planned) {
		return nil, fmt.Errorf("%w: %d digitized, %d planned", ErrLandmarkCountMismatch, len(digitized), len(planned))
	}
	errs := make([]float64, len(digitized))
	for i, p := range digitized {
		errs[i] = geom.Distance(Align(p, R, t), planned[i])
	}
	return errs, nil
}

// Errors is ComputeErrors using r.
func (r Result) Errors(digitized, planned []geom.Point3) ([]float64, error) {
	return ComputeErrors(digitized, r.Rotation(), r.Translation, planned)
}

// AlignAll maps every point through the inverse registration.
func (r Result) AlignAll(pts []geom.Point3) []geom.Point3 {
	inv := r.Pose().Inverse().Matrix()
	out := make([]geom.Point3, len(pts))
	for i, p := range pts {
		x, y, z := geom.ApplyTransform(p.X, p.Y, p.Z, inv)
		out[i] = geom.Point3{X: x, Y: y, Z: z}
	}
	return out
}

// Surface answers closest-point queries, normally on the skin mesh.
type Surface interface {
	ClosestPoint(p geom.Point3) (geom.Point3, mesh.Triangle, error)
}

// SurfaceErrors aligns surface-digitized points (ICP) with r and returns
// each one's distance to the closest point on surface.
func (r Result) SurfaceErrors(digitized []geom.Point3, surface Surface) ([]float64, error) {
	errs := make([]float64, len(digitized))
	for i, p := range r.AlignAll(digitized) {
		c, _, err := surface.ClosestPoint(p)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		errs[i] = geom.Distance(p, c)
	}
	return errs, nil
}

// Summary describes a set of per-landmark errors in millimetres.
type Summary struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean_mm"`
	StdDev   float64 `json:"std_dev_mm"`
	RMS      float64 `json:"rms_mm"`
	Max      float64 `json:"max_mm"`
	MaxIndex int     `json:"max_index"`
}

// Summarize reduces errs. An empty set yields a zero Summary with MaxIndex -1.
func Summarize(errs []float64) Summary {
	if len(errs) == 0 {
		return Summary{MaxIndex: -1}
	}
	s := Summary{
		Count:    len(errs),
		Mean:     stat.Mean(errs, nil),
		RMS:      floats.Norm(errs, 2) / math.Sqrt(float64(len(errs))),
		MaxIndex: floats.MaxIdx(errs),
	}
	s.Max = errs[s.MaxIndex]
	if len(errs) > 1 {
		s.StdDev = stat.StdDev(errs, nil)
	}
	return s
}

func (s Summary) String() string {
	if s.Count == 0 {
		return "no landmarks"
	}
	return fmt.Sprintf("%d landmarks: mean %.3f mm, rms %.3f mm, max %.3f mm (landmark %02d)",
		s.Count, s.Mean, s.RMS, s.Max, s.MaxIndex)
}
