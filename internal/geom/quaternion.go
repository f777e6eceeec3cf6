package geom

import "math"

// Quaternion is a rotation in (x, y, z, w) order, the order used on the wire.
type Quaternion struct {
	X, Y, Z, W float64
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// Norm returns the Euclidean length of q.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// MatrixToQuaternion converts a rotation matrix using Shepperd's method. The
// branch is chosen from the largest of the trace and the diagonal entries so
// the divisor never approaches zero.
func MatrixToQuaternion(r RotationMatrix) Quaternion {
	if tr := r.Trace(); tr > 0 {
		s := math.Sqrt(1.0+tr) * 2.0 // 4w
		return Quaternion{
			X: (r[2][1] - r[1][2]) / s,
			Y: (r[0][2] - r[2][0]) / s,
			Z: (r[1][0] - r[0][1]) / s,
			W: 0.25 * s,
		}
	}
	switch {
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math.Sqrt(1.0+r[0][0]-r[1][1]-r[2][2]) * 2.0 // 4x
		return Quaternion{
			X: 0.25 * s,
			Y: (r[0][1] + r[1][0]) / s,
			Z: (r[0][2] + r[2][0]) / s,
			W: (r[2][1] - r[1][2]) / s,
		}
	case r[1][1] > r[2][2]:
		s := math.Sqrt(1.0+r[1][1]-r[0][0]-r[2][2]) * 2.0 // 4y
		return Quaternion{
			X: (r[0][1] + r[1][0]) / s,
			Y: 0.25 * s,
			Z: (r[1][2] + r[2][1]) / s,
			W: (r[0][2] - r[2][0]) / s,
		}
	default:
		s := math.Sqrt(1.0+r[2][2]-r[0][0]-r[1][1]) * 2.0 // 4z
		return Quaternion{
			X: (r[0][2] + r[2][0]) / s,
			Y: (r[1][2] + r[2][1]) / s,
			Z: 0.25 * s,
			W: (r[1][0] - r[0][1]) / s,
		}
	}
}

// QuaternionToMatrix expands q without normalising it. A non-unit q yields a
// non-orthonormal matrix; callers that need a rotation must pass a unit q.
func QuaternionToMatrix(q Quaternion) RotationMatrix {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return RotationMatrix{
		{1 - 2*y*y - 2*z*z, 2*x*y - 2*z*w, 2*x*z + 2*y*w},
		{2*x*y + 2*z*w, 1 - 2*x*x - 2*z*z, 2*y*z - 2*x*w},
		{2*x*z - 2*y*w, 2*y*z + 2*x*w, 1 - 2*x*x - 2*y*y},
	}
}
