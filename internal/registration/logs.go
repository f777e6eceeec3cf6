// Package registration reads landmark registration result logs and
// estimates per-landmark registration error.
//
// Logs are YAML written by the navigation side, in metres. Everything
// returned here is in millimetres in the planning frame.
package registration

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/security"
	"github.com/banshee-data/tmsnav/internal/units"
)

// ErrMalformedLog is returned for logs that parse as YAML but do not match
// the expected schema.
var ErrMalformedLog = errors.New("malformed result log")

// maxLogSize bounds log files read from disk.
const maxLogSize = 1 << 20

const landmarkKeyPrefix = "landmark_"

// digitizedLog is the on-disk schema: a count plus one landmark_NN entry per
// point.
type digitizedLog struct {
	NumOfLandmarks int                  `yaml:"num_of_landmarks"`
	Unit           string               `yaml:"unit,omitempty"`
	Landmarks      map[string][]float64 `yaml:",inline"`
}

type resultLog struct {
	Quaternion  []float64 `yaml:"quaternion"`
	Translation []float64 `yaml:"translation"`
}

// Result is a rigid registration from the planning frame to the tracker
// frame, translation in millimetres.
type Result struct {
	Quaternion  geom.Quaternion
	Translation geom.Point3
}

// Rotation expands the quaternion.
func (r Result) Rotation() geom.RotationMatrix {
	return geom.QuaternionToMatrix(r.Quaternion)
}

// Pose returns the registration as a pose.
func (r Result) Pose() geom.Pose {
	return geom.NewPose(r.Translation, r.Rotation())
}

// Matrix returns the registration as a row-major 4x4 transform.
func (r Result) Matrix() [16]float64 {
	return r.Pose().Matrix()
}

// ParseLandmarks decodes a digitized landmark log. Coordinates are taken as
// metres unless the log names another length unit.
func ParseLandmarks(data []byte) ([]geom.Point3, error) {
	var log digitizedLog
	if err := yaml.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}
	unit := log.Unit
	if unit == "" {
		unit = units.M
	}
	if !units.IsValidLength(unit) {
		return nil, fmt.Errorf("%w: unknown unit %q", ErrMalformedLog, unit)
	}
	if log.NumOfLandmarks < 0 {
		return nil, fmt.Errorf("%w: negative landmark count", ErrMalformedLog)
	}

	pts := make([]geom.Point3, log.NumOfLandmarks)
	for i := range pts {
		key := landmarkKey(i)
		v, ok := log.Landmarks[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedLog, key)
		}
		if len(v) != 3 {
			return nil, fmt.Errorf("%w: %s has %d coordinates, want 3", ErrMalformedLog, key, len(v))
		}
		pts[i] = r3.Vec{X: toMillimetres(v[0], unit), Y: toMillimetres(v[1], unit), Z: toMillimetres(v[2], unit)}
	}
	if extra := extraKeys(log.Landmarks, len(pts)); len(extra) > 0 {
		return nil, fmt.Errorf("%w: unexpected keys %s", ErrMalformedLog, strings.Join(extra, ", "))
	}
	return pts, nil
}

// MarshalLandmarks encodes points given in millimetres as a digitized
// landmark log in metres.
func MarshalLandmarks(pts []geom.Point3) ([]byte, error) {
	log := digitizedLog{NumOfLandmarks: len(pts), Landmarks: make(map[string][]float64, len(pts))}
	for i, p := range pts {
		log.Landmarks[landmarkKey(i)] = []float64{
			units.MillimetresToMetres(p.X),
			units.MillimetresToMetres(p.Y),
			units.MillimetresToMetres(p.Z),
		}
	}
	return yaml.Marshal(&log)
}

// ParseResult decodes a registration result log.
func ParseResult(data []byte) (Result, error) {
	var log resultLog
	if err := yaml.Unmarshal(data, &log); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}
	if len(log.Quaternion) != 4 {
		return Result{}, fmt.Errorf("%w: quaternion has %d components, want 4", ErrMalformedLog, len(log.Quaternion))
	}
	if len(log.Translation) != 3 {
		return Result{}, fmt.Errorf("%w: translation has %d components, want 3", ErrMalformedLog, len(log.Translation))
	}
	r := Result{
		Quaternion: geom.Quaternion{X: log.Quaternion[0], Y: log.Quaternion[1], Z: log.Quaternion[2], W: log.Quaternion[3]},
		Translation: r3.Vec{
			X: units.MetresToMillimetres(log.Translation[0]),
			Y: units.MetresToMillimetres(log.Translation[1]),
			Z: units.MetresToMillimetres(log.Translation[2]),
		},
	}
	if err := geom.ValidatePose(r.Pose()); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}
	return r, nil
}

// MarshalResult encodes r in the result log schema.
func MarshalResult(r Result) ([]byte, error) {
	return yaml.Marshal(&resultLog{
		Quaternion: []float64{r.Quaternion.X, r.Quaternion.Y, r.Quaternion.Z, r.Quaternion.W},
		Translation: []float64{
			units.MillimetresToMetres(r.Translation.X),
			units.MillimetresToMetres(r.Translation.Y),
			units.MillimetresToMetres(r.Translation.Z),
		},
	})
}

// LoadLandmarks reads a digitized landmark log from path.
func LoadLandmarks(path string) ([]geom.Point3, error) {
	data, err := readLog(path)
	if err != nil {
		return nil, err
	}
	pts, err := ParseLandmarks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pts, nil
}

// LoadResult reads a registration result log from path.
func LoadResult(path string) (Result, error) {
	data, err := readLog(path)
	if err != nil {
		return Result{}, err
	}
	r, err := ParseResult(data)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func readLog(path string) ([]byte, error) {
	data, err := security.ReadLimitedFile(path, []string{".yaml", ".yml"}, maxLogSize)
	if err != nil {
		return nil, fmt.Errorf("result log: %w", err)
	}
	return data, nil
}

func landmarkKey(i int) string {
	return fmt.Sprintf("%s%02d", landmarkKeyPrefix, i)
}

func toMillimetres(v float64, unit string) float64 {
	if unit == units.M {
		return units.MetresToMillimetres(v)
	}
	return v
}

func extraKeys(m map[string][]float64, n int) []string {
	var extra []string
	for k := range m {
		if !strings.HasPrefix(k, landmarkKeyPrefix) {
			extra = append(extra, k)
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(k[len(landmarkKeyPrefix):], "%d", &idx); err != nil || idx < 0 || idx >= n || landmarkKey(idx) != k {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}
