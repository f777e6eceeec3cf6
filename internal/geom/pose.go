package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrGeometryDegenerate is returned when landmarks are collinear or coincide
// so that a plane normal or in-plane axis has zero length.
var ErrGeometryDegenerate = errors.New("degenerate geometry")

// degenerateNorm is the cross-product length treated as zero.
const degenerateNorm = 1e-12

// Pose is an oriented position: the tool frame expressed in the planning
// frame. Poses are values; every operation returns a new one.
type Pose struct {
	Origin      Point3
	Orientation RotationMatrix
}

// NewPose builds a pose from an origin and orientation.
func NewPose(origin Point3, orientation RotationMatrix) Pose {
	return Pose{Origin: origin, Orientation: orientation}
}

// Translation returns a pose that only translates by v.
func Translation(v r3.Vec) Pose {
	return Pose{Origin: v, Orientation: Identity()}
}

// Rotation returns a pose that only rotates by r.
func Rotation(r RotationMatrix) Pose {
	return Pose{Orientation: r}
}

// Compose returns p ∘ offset, with offset expressed in p's local frame.
func (p Pose) Compose(offset Pose) Pose {
	return Pose{
		Origin:      r3.Add(p.Origin, p.Orientation.MulVec(offset.Origin)),
		Orientation: p.Orientation.Mul(offset.Orientation),
	}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	rt := p.Orientation.Transpose()
	return Pose{
		Origin:      r3.Scale(-1, rt.MulVec(p.Origin)),
		Orientation: rt,
	}
}

// Apply maps a point from p's local frame into the parent frame.
func (p Pose) Apply(v Point3) Point3 {
	return r3.Add(p.Orientation.MulVec(v), p.Origin)
}

// Normal returns the local z axis (the third orientation column).
func (p Pose) Normal() r3.Vec {
	return p.Orientation.Col(2)
}

// Quaternion returns the orientation as a quaternion.
func (p Pose) Quaternion() Quaternion {
	return MatrixToQuaternion(p.Orientation)
}

// Matrix returns p as a row-major 4x4 homogeneous transform.
func (p Pose) Matrix() [16]float64 {
	r := p.Orientation
	return [16]float64{
		r[0][0], r[0][1], r[0][2], p.Origin.X,
		r[1][0], r[1][1], r[1][2], p.Origin.Y,
		r[2][0], r[2][1], r[2][2], p.Origin.Z,
		0, 0, 0, 1,
	}
}

// ApplyTransform applies a row-major 4x4 transform T to (x, y, z).
func ApplyTransform(x, y, z float64, T [16]float64) (wx, wy, wz float64) {
	wx = T[0]*x + T[1]*y + T[2]*z + T[3]
	wy = T[4]*x + T[5]*y + T[6]*z + T[7]
	wz = T[8]*x + T[9]*y + T[10]*z + T[11]
	return
}

// ValidatePose checks that the origin is finite and the orientation is a
// proper rotation.
func ValidatePose(p Pose) error {
	for _, v := range []float64{p.Origin.X, p.Origin.Y, p.Origin.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("pose origin is not finite: %v", p.Origin)
		}
	}
	if !IsOrthonormal(p.Orientation, MatrixValidationTolerance) {
		return fmt.Errorf("pose orientation is not a proper rotation (det=%.6f)", p.Orientation.Det())
	}
	return nil
}

// PosePlan returns the orientation of the plane through a, b and c. The z
// column is the plane normal, the x column is perpendicular to both the
// normal and the direction from origin to c (or to overrideY when given), and
// y completes the right-handed frame.
func PosePlan(a, b, c, origin Point3, overrideY *Point3) (RotationMatrix, error) {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(b, c))
	nrm := r3.Norm(n)
	if nrm < degenerateNorm {
		return RotationMatrix{}, fmt.Errorf("%w: landmarks %v %v %v are collinear", ErrGeometryDegenerate, a, b, c)
	}
	n = r3.Scale(-1/nrm, n)

	toward := c
	if overrideY != nil {
		toward = *overrideY
	}
	x := r3.Cross(r3.Sub(toward, origin), n)
	nrm = r3.Norm(x)
	if nrm < degenerateNorm {
		return RotationMatrix{}, fmt.Errorf("%w: direction %v from origin is parallel to the plane normal", ErrGeometryDegenerate, toward)
	}
	x = r3.Scale(1/nrm, x)

	y := r3.Unit(r3.Cross(n, x))
	return FromColumns(x, y, n), nil
}

// Centroid returns the mean of pts. It returns the zero vector for no points.
func Centroid(pts ...Point3) Point3 {
	var sum r3.Vec
	if len(pts) == 0 {
		return sum
	}
	for _, p := range pts {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(pts)), sum)
}

// Distance returns |a-b|.
func Distance(a, b Point3) float64 {
	return r3.Norm(r3.Sub(a, b))
}
