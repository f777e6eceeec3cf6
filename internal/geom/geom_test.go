package geom

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func dense(r RotationMatrix) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		r[0][0], r[0][1], r[0][2],
		r[1][0], r[1][1], r[1][2],
		r[2][0], r[2][1], r[2][2],
	})
}

func assertOrthonormal(t *testing.T, r RotationMatrix) {
	t.Helper()
	for j := 0; j < 3; j++ {
		assert.InDelta(t, 1.0, r3.Norm(r.Col(j)), 1e-9, "column %d norm", j)
	}
	assert.InDelta(t, 0.0, r3.Dot(r.Col(0), r.Col(1)), 1e-9)
	assert.InDelta(t, 0.0, r3.Dot(r.Col(0), r.Col(2)), 1e-9)
	assert.InDelta(t, 0.0, r3.Dot(r.Col(1), r.Col(2)), 1e-9)
	assert.InDelta(t, 1.0, mat.Det(dense(r)), 1e-9)
}

func randomUnitQuaternion(rng *rand.Rand) Quaternion {
	for {
		q := Quaternion{
			X: rng.Float64()*2 - 1,
			Y: rng.Float64()*2 - 1,
			Z: rng.Float64()*2 - 1,
			W: rng.Float64()*2 - 1,
		}
		n := q.Norm()
		if n < 1e-3 {
			continue
		}
		return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
	}
}

func TestElementalRotations(t *testing.T) {
	v := r3.Vec{X: 1, Y: 0, Z: 0}
	got := RotateZ(math.Pi / 2).MulVec(v)
	assert.InDelta(t, 0.0, got.X, 1e-12)
	assert.InDelta(t, 1.0, got.Y, 1e-12)

	got = RotateY(math.Pi / 2).MulVec(r3.Vec{Z: 1})
	assert.InDelta(t, 1.0, got.X, 1e-12)

	got = RotateX(math.Pi / 2).MulVec(r3.Vec{Y: 1})
	assert.InDelta(t, 1.0, got.Z, 1e-12)

	for _, r := range []RotationMatrix{RotateX(0.3), RotateY(-1.2), RotateZ(2.5)} {
		assertOrthonormal(t, r)
	}
}

func TestQuaternionRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		q := randomUnitQuaternion(rng)
		got := MatrixToQuaternion(QuaternionToMatrix(q))
		// q and -q are the same rotation.
		sign := 1.0
		if got.X*q.X+got.Y*q.Y+got.Z*q.Z+got.W*q.W < 0 {
			sign = -1.0
		}
		assert.InDelta(t, q.X, sign*got.X, 1e-9)
		assert.InDelta(t, q.Y, sign*got.Y, 1e-9)
		assert.InDelta(t, q.Z, sign*got.Z, 1e-9)
		assert.InDelta(t, q.W, sign*got.W, 1e-9)
	}
}

func TestMatrixToQuaternion_Branches(t *testing.T) {
	tests := []struct {
		name string
		r    RotationMatrix
		want Quaternion
	}{
		{"identity uses trace branch", Identity(), Quaternion{W: 1}},
		{"180 about x", RotateX(math.Pi), Quaternion{X: 1}},
		{"180 about y", RotateY(math.Pi), Quaternion{Y: 1}},
		{"180 about z", RotateZ(math.Pi), Quaternion{Z: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatrixToQuaternion(tt.r)
			assert.InDelta(t, tt.want.X, math.Abs(got.X), 1e-9)
			assert.InDelta(t, tt.want.Y, math.Abs(got.Y), 1e-9)
			assert.InDelta(t, tt.want.Z, math.Abs(got.Z), 1e-9)
			assert.InDelta(t, tt.want.W, math.Abs(got.W), 1e-9)
		})
	}
}

func TestQuaternionToMatrix_NonUnitDoesNotPanic(t *testing.T) {
	r := QuaternionToMatrix(Quaternion{X: 2, Y: 0, Z: 0, W: 0})
	assert.Equal(t, -7.0, r[1][1])
	assert.False(t, IsOrthonormal(r, MatrixValidationTolerance))
}

func TestPosePlan_FourLandmarkScenario(t *testing.T) {
	origin := r3.Vec{}
	a := r3.Vec{X: 10}
	b := r3.Vec{Y: 10}
	c := r3.Vec{X: -10}

	r, err := PosePlan(a, b, c, origin, nil)
	require.NoError(t, err)

	want := RotationMatrix{
		{0, -1, 0},
		{1, 0, 0},
		{0, 0, 1},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, want[i][j], r[i][j], 1e-12, "R[%d][%d]", i, j)
		}
	}
	// The normal is perpendicular to the landmark plane.
	assert.InDelta(t, 0.0, r3.Dot(r.Col(2), r3.Sub(a, b)), 1e-12)
	assert.InDelta(t, 0.0, r3.Dot(r.Col(2), r3.Sub(c, b)), 1e-12)
	assertOrthonormal(t, r)

	q := MatrixToQuaternion(r)
	assert.InDelta(t, 0.0, q.X, 1e-12)
	assert.InDelta(t, 0.0, q.Y, 1e-12)
	assert.InDelta(t, math.Sqrt2/2, q.Z, 1e-12)
	assert.InDelta(t, math.Sqrt2/2, q.W, 1e-12)
}

func TestPosePlan_OverrideY(t *testing.T) {
	a := r3.Vec{X: 10}
	b := r3.Vec{Y: 10}
	c := r3.Vec{X: -10}
	override := r3.Vec{Y: -5}

	r, err := PosePlan(a, b, c, r3.Vec{}, &override)
	require.NoError(t, err)
	// x = (override - origin) × n = (0,-5,0)×(0,0,1) -> -x direction.
	assert.InDelta(t, -1.0, r[0][0], 1e-12)
	assertOrthonormal(t, r)
}

func TestPosePlan_RandomTriplesAreOrthonormal(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pt := func() r3.Vec {
		return r3.Vec{X: rng.Float64()*200 - 100, Y: rng.Float64()*200 - 100, Z: rng.Float64()*200 - 100}
	}
	for i := 0; i < 200; i++ {
		a, b, c, p := pt(), pt(), pt(), pt()
		r, err := PosePlan(a, b, c, p, nil)
		if err != nil {
			continue
		}
		assertOrthonormal(t, r)
	}
}

func TestPosePlan_Degenerate(t *testing.T) {
	_, err := PosePlan(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{X: 2}, r3.Vec{Y: 1}, nil)
	require.ErrorIs(t, err, ErrGeometryDegenerate)

	// Origin on the normal through c: x axis would be zero.
	_, err = PosePlan(r3.Vec{X: 10}, r3.Vec{Y: 10}, r3.Vec{X: -10}, r3.Vec{X: -10, Z: 5}, nil)
	require.ErrorIs(t, err, ErrGeometryDegenerate)
}

func TestPose_ComposeAndInverse(t *testing.T) {
	p := NewPose(r3.Vec{X: 1, Y: 2, Z: 3}, RotateZ(math.Pi/2))
	moved := p.Compose(Translation(r3.Vec{X: 1}))
	// Local +x is world +y after a 90 degree yaw.
	assert.InDelta(t, 1.0, moved.Origin.X, 1e-12)
	assert.InDelta(t, 3.0, moved.Origin.Y, 1e-12)

	id := p.Compose(p.Inverse())
	assert.InDelta(t, 0.0, r3.Norm(id.Origin), 1e-12)
	assertOrthonormal(t, id.Orientation)
	assert.InDelta(t, 1.0, id.Orientation[0][0], 1e-12)
}

func TestPose_MatrixApply(t *testing.T) {
	p := NewPose(r3.Vec{X: -4, Y: 5, Z: 6}, RotateX(0.4).Mul(RotateY(0.2)))
	T := p.Matrix()
	assert.Equal(t, [4]float64{p.Orientation[1][0], p.Orientation[1][1], p.Orientation[1][2], 5}, [4]float64(T[4:8]))
	assert.Equal(t, [4]float64{0, 0, 0, 1}, [4]float64(T[12:16]))

	wx, wy, wz := ApplyTransform(1, 0, 0, T)
	want := p.Apply(r3.Vec{X: 1})
	assert.InDelta(t, want.X, wx, 1e-12)
	assert.InDelta(t, want.Y, wy, 1e-12)
	assert.InDelta(t, want.Z, wz, 1e-12)
}

func TestValidatePose(t *testing.T) {
	require.NoError(t, ValidatePose(NewPose(r3.Vec{}, Identity())))
	require.Error(t, ValidatePose(NewPose(r3.Vec{X: math.NaN()}, Identity())))
	require.Error(t, ValidatePose(NewPose(r3.Vec{}, RotationMatrix{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}})))
}

func TestCentroid(t *testing.T) {
	c := Centroid(r3.Vec{X: 3}, r3.Vec{Y: 3}, r3.Vec{Z: 3})
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, c)
	assert.Equal(t, r3.Vec{}, Centroid())
}
