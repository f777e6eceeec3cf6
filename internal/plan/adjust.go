package plan

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/units"
)

// Default ranges for RandomizePose.
const (
	DefaultRandomPosRangeMm  = 15.0
	DefaultRandomAngRangeDeg = 15.0
)

// AdjustPose moves current by dT (mm) and then rotates it about its local x,
// y and z axes by dR (radians), in that order. Zero rotation components are
// skipped. All offsets are in current's own frame.
func AdjustPose(current geom.Pose, dT, dR [3]float64) geom.Pose {
	out := current.Compose(geom.Translation(r3.Vec{X: dT[0], Y: dT[1], Z: dT[2]}))
	rot := [3]func(float64) geom.RotationMatrix{geom.RotateX, geom.RotateY, geom.RotateZ}
	for i, angle := range dR {
		if angle != 0 {
			out = out.Compose(geom.Rotation(rot[i](angle)))
		}
	}
	return out
}

// RandomizePose perturbs current the way AdjustPose does, with every
// translation drawn from [-posRangeMm, posRangeMm] and every rotation from
// [-angRangeDeg, angRangeDeg].
func RandomizePose(current geom.Pose, posRangeMm, angRangeDeg float64, rng *rand.Rand) geom.Pose {
	uniform := func(r float64) float64 { return (rng.Float64()*2 - 1) * r }
	var dT, dR [3]float64
	for i := range dT {
		dT[i] = uniform(posRangeMm)
	}
	for i := range dR {
		dR[i] = units.DegreesToRadians(uniform(angRangeDeg))
	}
	return AdjustPose(current, dT, dR)
}
