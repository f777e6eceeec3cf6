// Package geom is the geometry kernel shared by the planner and the wire
// codec: rotation matrices, quaternions, rigid poses and the three-point
// plane frame used to orient the stimulation coil.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point3 is a position in the planning frame, in millimetres.
type Point3 = r3.Vec

// RotationMatrix is a row-major 3x3 matrix, R[row][col]. The columns of a
// planned orientation are the tool x, y and normal axes.
type RotationMatrix [3][3]float64

// MatrixValidationTolerance bounds the determinant and column norm drift
// accepted by IsOrthonormal.
const MatrixValidationTolerance = 1e-6

// Identity returns the identity rotation.
func Identity() RotationMatrix {
	return RotationMatrix{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// RotateX returns the right-handed rotation of angle radians about x.
func RotateX(angle float64) RotationMatrix {
	s, c := math.Sincos(angle)
	return RotationMatrix{
		{1, 0, 0},
		{0, c, -s},
		{0, s, c},
	}
}

// RotateY returns the right-handed rotation of angle radians about y.
func RotateY(angle float64) RotationMatrix {
	s, c := math.Sincos(angle)
	return RotationMatrix{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}
}

// RotateZ returns the right-handed rotation of angle radians about z.
func RotateZ(angle float64) RotationMatrix {
	s, c := math.Sincos(angle)
	return RotationMatrix{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
}

// FromColumns builds a matrix whose columns are x, y and z.
func FromColumns(x, y, z r3.Vec) RotationMatrix {
	return RotationMatrix{
		{x.X, y.X, z.X},
		{x.Y, y.Y, z.Y},
		{x.Z, y.Z, z.Z},
	}
}

// Col returns column j.
func (r RotationMatrix) Col(j int) r3.Vec {
	return r3.Vec{X: r[0][j], Y: r[1][j], Z: r[2][j]}
}

// Mul returns r·o.
func (r RotationMatrix) Mul(o RotationMatrix) RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[i][0]*o[0][j] + r[i][1]*o[1][j] + r[i][2]*o[2][j]
		}
	}
	return out
}

// MulVec returns r·v.
func (r RotationMatrix) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

// Transpose returns rᵗ, which is the inverse for an orthonormal matrix.
func (r RotationMatrix) Transpose() RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[j][i]
		}
	}
	return out
}

// Trace returns R00+R11+R22.
func (r RotationMatrix) Trace() float64 {
	return r[0][0] + r[1][1] + r[2][2]
}

// Det returns the determinant.
func (r RotationMatrix) Det() float64 {
	return r[0][0]*(r[1][1]*r[2][2]-r[1][2]*r[2][1]) -
		r[0][1]*(r[1][0]*r[2][2]-r[1][2]*r[2][0]) +
		r[0][2]*(r[1][0]*r[2][1]-r[1][1]*r[2][0])
}

// IsOrthonormal reports whether the columns are unit length, mutually
// orthogonal and right-handed within tol.
func IsOrthonormal(r RotationMatrix, tol float64) bool {
	for j := 0; j < 3; j++ {
		if math.Abs(r3.Norm(r.Col(j))-1) > tol {
			return false
		}
	}
	if math.Abs(r3.Dot(r.Col(0), r.Col(1))) > tol ||
		math.Abs(r3.Dot(r.Col(0), r.Col(2))) > tol ||
		math.Abs(r3.Dot(r.Col(1), r.Col(2))) > tol {
		return false
	}
	return math.Abs(r.Det()-1) <= tol
}
