package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/registration"
)

func writeLandmarks(t *testing.T, dir, name string, pts []geom.Point3) string {
	t.Helper()
	data, err := registration.MarshalLandmarks(pts)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeResult(t *testing.T, dir string, r registration.Result) string {
	t.Helper()
	data, err := registration.MarshalResult(r)
	require.NoError(t, err)
	path := filepath.Join(dir, "registration.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// shifted registration: tracker = planning + (10, 0, 0) mm
var shift = registration.Result{Quaternion: geom.IdentityQuaternion, Translation: geom.Point3{X: 10}}

func TestFRECommand_Landmarks(t *testing.T) {
	dir := t.TempDir()
	planned := []geom.Point3{{Z: 80}, {X: 80}, {Y: 80}}
	digitized := []geom.Point3{{X: 10, Z: 81}, {X: 90}, {X: 10, Y: 80}}
	result := writeResult(t, dir, shift)
	dig := writeLandmarks(t, dir, "digitized.yaml", digitized)
	plan := writeLandmarks(t, dir, "planned.yaml", planned)

	out, err := execute(t, "fre", "--format", "json", "--digitized", dig, "--result", result, "--planned-file", plan)
	require.NoError(t, err)
	var res FREResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "landmark", res.Mode)
	require.Len(t, res.ErrorsMm, 3)
	assert.InDelta(t, 1, res.ErrorsMm[0], 1e-9)
	assert.InDelta(t, 0, res.ErrorsMm[1], 1e-9)
	assert.Equal(t, 0, res.Summary.MaxIndex)
	assert.True(t, res.Passed)
	assert.InDelta(t, 10, res.Transform[3], 1e-9, "translation x")
	assert.InDelta(t, 1, res.Transform[0], 1e-12)
	assert.Equal(t, 1.0, res.Transform[15])

	out, err = execute(t, "fre", "--digitized", dig, "--result", result, "--planned", "0,0,80;80,0,0;0,80,0", "--max-rms", "0.5")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "landmark 00  1.000 mm")
	assert.Contains(t, out, "3 landmarks: mean 0.333 mm")
}

func TestFRECommand_Surface(t *testing.T) {
	dir := t.TempDir()
	trace := []geom.Point3{{X: 10, Z: 80.5}, {X: 90.5}, {X: 10, Z: -80.5}}
	dig := writeLandmarks(t, dir, "trace.yaml", trace)
	result := writeResult(t, dir, shift)

	out, err := execute(t, "fre", "--format", "json", "--surface", "--digitized", dig, "--result", result)
	require.NoError(t, err)
	var res FREResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "surface", res.Mode)
	for i, e := range res.ErrorsMm {
		assert.InDelta(t, 0.5, e, 1e-6, "point %d", i)
	}
	assert.InDelta(t, 0.5, res.Summary.RMS, 1e-6)
}

func TestFRECommand_Errors(t *testing.T) {
	dir := t.TempDir()
	dig := writeLandmarks(t, dir, "digitized.yaml", []geom.Point3{{}, {X: 1}})
	result := writeResult(t, dir, shift)

	_, err := execute(t, "fre", "--digitized", dig, "--result", result, "--planned", "0,0,0")
	require.ErrorIs(t, err, registration.ErrLandmarkCountMismatch)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "fre", "--digitized", dig, "--result", filepath.Join(dir, "missing.yaml"), "--planned", "0,0,0")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "fre", "--digitized", dig)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "result"), err.Error())
}
