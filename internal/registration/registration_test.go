package registration

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/mesh"
)

func TestComputeErrors_FromLogs(t *testing.T) {
	digitized, err := LoadLandmarks("testdata/digitized.yaml")
	require.NoError(t, err)
	planned, err := LoadLandmarks("testdata/planned.yaml")
	require.NoError(t, err)
	result, err := LoadResult("testdata/result.yaml")
	require.NoError(t, err)

	assert.InDelta(t, 12.5, digitized[0].X, 1e-9)
	assert.InDelta(t, 2.5, result.Translation.X, 1e-9)

	errs, err := result.Errors(digitized, planned)
	require.NoError(t, err)
	require.Len(t, errs, 3)
	assert.InDelta(t, 0, errs[0], 1e-9)
	assert.InDelta(t, 0, errs[1], 1e-9)
	assert.InDelta(t, 1, errs[2], 1e-9)

	s := Summarize(errs)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2, s.MaxIndex)
	assert.InDelta(t, 1.0/3, s.Mean, 1e-9)
	assert.InDelta(t, 1/math.Sqrt(3), s.RMS, 1e-9)
	assert.Contains(t, s.String(), "landmark 02")
}

func TestComputeErrors_RecoversRandomRegistration(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	q := geom.Quaternion{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64(), W: rng.NormFloat64()}
	n := q.Norm()
	q = geom.Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
	reg := Result{Quaternion: q, Translation: r3.Vec{X: 120, Y: -40, Z: 300}}
	fwd := reg.Pose()

	planned := make([]geom.Point3, 6)
	digitized := make([]geom.Point3, 6)
	for i := range planned {
		planned[i] = r3.Vec{X: rng.Float64() * 100, Y: rng.Float64() * 100, Z: rng.Float64() * 100}
		digitized[i] = fwd.Apply(planned[i])
	}

	errs, err := ComputeErrors(digitized, reg.Rotation(), reg.Translation, planned)
	require.NoError(t, err)
	for i, e := range errs {
		assert.InDelta(t, 0, e, 1e-9, "landmark %d", i)
	}
	for i, p := range reg.AlignAll(digitized) {
		assert.InDelta(t, 0, geom.Distance(p, planned[i]), 1e-9)
	}
}

func TestComputeErrors_CountMismatch(t *testing.T) {
	_, err := ComputeErrors(make([]geom.Point3, 3), geom.Identity(), r3.Vec{}, make([]geom.Point3, 4))
	require.ErrorIs(t, err, ErrLandmarkCountMismatch)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{3, 4})
	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 3.5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(12.5), s.RMS, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), s.StdDev, 1e-12)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 1, s.MaxIndex)

	empty := Summarize(nil)
	assert.Equal(t, -1, empty.MaxIndex)
	assert.Equal(t, "no landmarks", empty.String())

	one := Summarize([]float64{2})
	assert.Equal(t, 0.0, one.StdDev)
}

func TestParseLandmarks_Malformed(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing landmark", "num_of_landmarks: 2\nlandmark_00: [0, 0, 0]\n"},
		{"short landmark", "num_of_landmarks: 1\nlandmark_00: [0, 0]\n"},
		{"extra landmark", "num_of_landmarks: 1\nlandmark_00: [0, 0, 0]\nlandmark_01: [0, 0, 0]\n"},
		{"stray key", "num_of_landmarks: 1\nlandmark_00: [0, 0, 0]\nfoo: [1]\n"},
		{"bad unit", "num_of_landmarks: 0\nunit: furlong\n"},
		{"negative count", "num_of_landmarks: -1\n"},
		{"not yaml", "num_of_landmarks: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLandmarks([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrMalformedLog)
		})
	}
}

func TestParseResult_Malformed(t *testing.T) {
	for _, doc := range []string{
		"quaternion: [0, 0, 1]\ntranslation: [0, 0, 0]\n",
		"quaternion: [0, 0, 0, 1]\ntranslation: [0, 0]\n",
		"quaternion: [0, 0, 0, 0]\ntranslation: [0, 0, 0]\n",
		"quaternion: [0, 0, 0, 2]\ntranslation: [0, 0, 0]\n",
		"quaternion: [0, 0, 0, 1]\ntranslation: [0, .nan, 0]\n",
		"quaternion: nope\n",
	} {
		_, err := ParseResult([]byte(doc))
		require.ErrorIs(t, err, ErrMalformedLog, doc)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	pts := []geom.Point3{{X: 1, Y: 2, Z: 3}, {X: -10, Y: 0, Z: 500}}
	data, err := MarshalLandmarks(pts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "num_of_landmarks: 2")
	assert.Contains(t, string(data), "landmark_01:")

	got, err := ParseLandmarks(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range pts {
		assert.InDelta(t, 0, geom.Distance(pts[i], got[i]), 1e-9)
	}

	reg := Result{Quaternion: geom.IdentityQuaternion, Translation: r3.Vec{X: 25, Y: -5}}
	data, err = MarshalResult(reg)
	require.NoError(t, err)
	back, err := ParseResult(data)
	require.NoError(t, err)
	assert.Equal(t, reg.Quaternion, back.Quaternion)
	assert.InDelta(t, 0, geom.Distance(reg.Translation, back.Translation), 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	_, err := LoadLandmarks(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	big := filepath.Join(t.TempDir(), "big.yaml")
	require.NoError(t, os.WriteFile(big, make([]byte, maxLogSize+1), 0o644))
	_, err = LoadResult(big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestSurfaceErrors(t *testing.T) {
	skin := mesh.Plane(r3.Vec{}, 100, 4)
	reg := Result{Quaternion: geom.IdentityQuaternion, Translation: r3.Vec{Z: 2}}

	// Tracker points sit 2 mm above their planning-frame positions.
	digitized := []geom.Point3{{X: 1, Y: 1, Z: 2}, {X: -5, Y: 3, Z: 5}}
	errs, err := reg.SurfaceErrors(digitized, skin)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.InDelta(t, 0, errs[0], 1e-9)
	assert.InDelta(t, 3, errs[1], 1e-9)

	_, err = reg.SurfaceErrors(digitized, &mesh.Mesh{})
	require.ErrorIs(t, err, mesh.ErrEmptyMesh)
}
