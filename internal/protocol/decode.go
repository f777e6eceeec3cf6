package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tmsnav/internal/geom"
)

// Telemetry message prefixes.
const (
	PointPrefix    = "__msg_point_"
	PosePrefix     = "__msg_pose_"
	ToolPosePrefix = "__msg_toolpose_"
)

// ErrMessageParse is returned for telemetry that does not decode.
var ErrMessageParse = errors.New("malformed message")

// Kind identifies a telemetry message.
type Kind int

const (
	KindUnknown Kind = iota
	KindPoint
	KindPose
	KindToolPose
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindPose:
		return "pose"
	case KindToolPose:
		return "toolpose"
	default:
		return "unknown"
	}
}

// Message is a decoded telemetry datagram. Only the fields for Kind are set.
type Message struct {
	Kind Kind
	// Point is the pointer tip for KindPoint, in millimetres.
	Point geom.Point3
	// Pose and Quaternion are the tracked tool for KindPose.
	Pose       geom.Pose
	Quaternion geom.Quaternion
	// Seed and Direction are the two tool points for KindToolPose.
	Seed      geom.Point3
	Direction geom.Point3
}

// Classify reports which telemetry message data carries.
func Classify(data []byte) Kind {
	s := string(data)
	switch {
	case strings.HasPrefix(s, ToolPosePrefix):
		return KindToolPose
	case strings.HasPrefix(s, PosePrefix):
		return KindPose
	case strings.HasPrefix(s, PointPrefix):
		return KindPoint
	default:
		return KindUnknown
	}
}

// Decode parses any known telemetry message.
func Decode(data []byte) (Message, error) {
	switch Classify(data) {
	case KindPoint:
		p, err := ParsePoint(data)
		return Message{Kind: KindPoint, Point: p}, err
	case KindPose:
		pose, q, err := ParsePose(data)
		return Message{Kind: KindPose, Pose: pose, Quaternion: q}, err
	case KindToolPose:
		seed, dir, err := ParseToolPose(data)
		return Message{Kind: KindToolPose, Seed: seed, Direction: dir}, err
	default:
		return Message{}, fmt.Errorf("%w: unknown prefix in %q", ErrMessageParse, truncate(string(data)))
	}
}

// ParsePoint decodes "__msg_point_x_y_z".
func ParsePoint(data []byte) (geom.Point3, error) {
	v, err := parseFields(data, PointPrefix, 3)
	if err != nil {
		return geom.Point3{}, err
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

// ParsePose decodes "__msg_pose_x_y_z_qx_qy_qz_qw". The quaternion is
// expanded without normalisation.
func ParsePose(data []byte) (geom.Pose, geom.Quaternion, error) {
	v, err := parseFields(data, PosePrefix, 7)
	if err != nil {
		return geom.Pose{}, geom.Quaternion{}, err
	}
	q := geom.Quaternion{X: v[3], Y: v[4], Z: v[5], W: v[6]}
	return geom.NewPose(r3.Vec{X: v[0], Y: v[1], Z: v[2]}, geom.QuaternionToMatrix(q)), q, nil
}

// ParseToolPose decodes "__msg_toolpose_x1_y1_z1_x2_y2_z2": a seed point
// and a second point fixing the in-plane axis.
func ParseToolPose(data []byte) (geom.Point3, geom.Point3, error) {
	v, err := parseFields(data, ToolPosePrefix, 6)
	if err != nil {
		return geom.Point3{}, geom.Point3{}, err
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, r3.Vec{X: v[3], Y: v[4], Z: v[5]}, nil
}

func parseFields(data []byte, prefix string, n int) ([]float64, error) {
	s := strings.TrimRight(string(data), "\x00\r\n\t ")
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("%w: expected prefix %q in %q", ErrMessageParse, prefix, truncate(s))
	}
	tokens := strings.Split(s[len(prefix):], "_")
	if len(tokens) != n {
		return nil, fmt.Errorf("%w: %s has %d fields, want %d", ErrMessageParse, prefix, len(tokens), n)
	}
	out := make([]float64, n)
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q: %v", ErrMessageParse, i, tok, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: field %d %q is not finite", ErrMessageParse, i, tok)
		}
		out[i] = v
	}
	return out, nil
}

// PointMessage renders a point telemetry message. Used by simulators and
// capture tooling.
func PointMessage(p geom.Point3) string {
	return PointPrefix + joinFormatted(FormatDefault, p.X, p.Y, p.Z)
}

// PoseMessage renders a pose telemetry message at pose precision.
func PoseMessage(origin geom.Point3, q geom.Quaternion) string {
	return PosePrefix + joinFormatted(FormatPose, origin.X, origin.Y, origin.Z, q.X, q.Y, q.Z, q.W)
}

// ToolPoseMessage renders a tool pose telemetry message.
func ToolPoseMessage(seed, dir geom.Point3) string {
	return ToolPosePrefix + joinFormatted(FormatDefault, seed.X, seed.Y, seed.Z, dir.X, dir.Y, dir.Z)
}

func joinFormatted(f func(float64) string, vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = f(v)
	}
	return strings.Join(parts, "_")
}

func truncate(s string) string {
	const limit = 40
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
