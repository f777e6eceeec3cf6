package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/units"
)

// MaxCommandLength is the longest command the navigation side accepts.
const MaxCommandLength = 150

// AckBufferSize is the largest acknowledgement datagram read back.
const AckBufferSize = 512

// ErrMessageTooLong is returned by Encode for commands over MaxCommandLength.
var ErrMessageTooLong = errors.New("command exceeds maximum length")

// Command is one outbound text command.
type Command struct {
	Opcode string
	Fields []string
}

// NewCommand returns a command with the given opcode and fields.
func NewCommand(opcode string, fields ...string) Command {
	return Command{Opcode: opcode, Fields: fields}
}

// String renders the command as it appears on the wire.
func (c Command) String() string {
	if len(c.Fields) == 0 {
		return c.Opcode
	}
	return c.Opcode + "_" + strings.Join(c.Fields, "_")
}

// Encode returns the wire bytes, refusing commands longer than
// MaxCommandLength.
func (c Command) Encode() ([]byte, error) {
	s := c.String()
	if len(s) > MaxCommandLength {
		return nil, fmt.Errorf("%w: %d > %d characters", ErrMessageTooLong, len(s), MaxCommandLength)
	}
	return []byte(s), nil
}

// LandmarkOpcodes names the three commands of a landmark upload.
type LandmarkOpcodes struct {
	Count   string // LANDMARK_NUM_OF_ON_IMG
	Current string // LANDMARK_CURRENT_ON_IMG
	Last    string // LANDMARK_LAST_RECEIVED
}

// PoseOpcodes names the two commands of a target pose upload.
type PoseOpcodes struct {
	Orientation string // TARGET_POSE_ORIENTATION
	Translation string // TARGET_POSE_TRANSLATION
}

// LandmarkCount announces how many landmarks follow.
func LandmarkCount(opcode string, n int) Command {
	return NewCommand(opcode, FormatIndex(n))
}

// LandmarkPoint carries landmark idx, converted from millimetres to metres.
func LandmarkPoint(opcode string, idx int, p geom.Point3) Command {
	return NewCommand(opcode,
		FormatIndex(idx),
		FormatPose(units.MillimetresToMetres(p.X)),
		FormatPose(units.MillimetresToMetres(p.Y)),
		FormatPose(units.MillimetresToMetres(p.Z)),
	)
}

// LandmarkLast terminates a landmark upload.
func LandmarkLast(opcode string) Command {
	return NewCommand(opcode)
}

// LandmarkSequence returns the full upload for pts in send order: the count,
// one command per landmark, then the terminator.
func LandmarkSequence(ops LandmarkOpcodes, pts []geom.Point3) []Command {
	cmds := make([]Command, 0, len(pts)+2)
	cmds = append(cmds, LandmarkCount(ops.Count, len(pts)))
	for i, p := range pts {
		cmds = append(cmds, LandmarkPoint(ops.Current, i, p))
	}
	return append(cmds, LandmarkLast(ops.Last))
}

// PoseOrientation carries a unit quaternion as qx, qy, qz, qw.
func PoseOrientation(opcode string, q geom.Quaternion) Command {
	return NewCommand(opcode, FormatPose(q.X), FormatPose(q.Y), FormatPose(q.Z), FormatPose(q.W))
}

// PoseTranslation carries a position converted from millimetres to metres.
func PoseTranslation(opcode string, p geom.Point3) Command {
	return NewCommand(opcode,
		FormatPose(units.MillimetresToMetres(p.X)),
		FormatPose(units.MillimetresToMetres(p.Y)),
		FormatPose(units.MillimetresToMetres(p.Z)),
	)
}

// PoseCommands returns the orientation then translation commands for pose.
func PoseCommands(ops PoseOpcodes, pose geom.Pose) []Command {
	return []Command{
		PoseOrientation(ops.Orientation, pose.Quaternion()),
		PoseTranslation(ops.Translation, pose.Origin),
	}
}

// poseFieldMaxLength is the widest pose field for magnitudes below 10: a
// sign, one integer digit, the point and the decimals.
const poseFieldMaxLength = PoseDecimals + 3

// Pose command field counts.
const (
	OrientationFields = 4
	TranslationFields = 3
)

// MaxPoseOpcodeLength is the longest opcode whose pose command with fields
// values of magnitude below 10 (unit quaternions, translations under 10 m)
// always encodes.
func MaxPoseOpcodeLength(fields int) int {
	return MaxCommandLength - fields*(poseFieldMaxLength+1)
}

// ManualTranslation carries a robot jog in millimetres.
func ManualTranslation(opcode string, d [3]float64) Command {
	return NewCommand(opcode, FormatDefault(d[0]), FormatDefault(d[1]), FormatDefault(d[2]))
}

// ManualRotation carries a robot jog angle in degrees.
func ManualRotation(opcode string, deg float64) Command {
	return NewCommand(opcode, FormatDefault(deg))
}

// IndexCommand appends a two digit index, as used to select one landmark.
func IndexCommand(opcode string, idx int) Command {
	return NewCommand(opcode, FormatIndex(idx))
}

// PathCommand appends a file path, as used by the ICP registration request.
func PathCommand(opcode, path string) Command {
	return NewCommand(opcode, path)
}
