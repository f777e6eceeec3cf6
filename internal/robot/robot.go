// Package robot forwards discrete teleoperation commands to the robot
// controller. It performs no kinematics: each jog is one MAN_ADJUST_T or
// MAN_ADJUST_R command and the controller decides how to move.
package robot

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/protocol"
)

// Default jog steps.
const (
	DefaultTranslationStepMm = 5.0
	DefaultRotationStepDeg   = 0.5
)

// Opcode names looked up in the robot command group.
const (
	OpManualTranslate = "MAN_ADJUST_T"
	OpManualRotate    = "MAN_ADJUST_R"
	OpSessionEnd      = "SESSION_END"
	OpConnect         = "ROB_CONN_ON"
	OpDisconnect      = "ROB_CONN_OFF"
	OpJointAngles     = "GET_JNT_ANGS"
	OpEffectorPose    = "GET_EFF_POSE"
	OpExecute         = "EXECUTE_MOTION"
	OpConfirm         = "EXECUTE_MOVE_CONFIRM"
	OpEndAndBack      = "EXECUTE_ENDBACK"
	OpBackToInit      = "EXECUTE_BACKINIT"
	OpBackToOffset    = "EXECUTE_BACKOFFSET"
)

var (
	ErrUnknownCommand   = errors.New("unknown robot command")
	ErrUnknownDirection = errors.New("unknown jog direction")
)

// queries expect a reply datagram after the ack.
var queries = map[string]bool{
	OpJointAngles:  true,
	OpEffectorPose: true,
}

// Direction is a jog button.
type Direction int

const (
	Backward Direction = iota
	Forward
	Left
	Right
	Closer
	Farther
	Pitch
	Roll
	Yaw
)

var directionNames = [...]string{"backward", "forward", "left", "right", "closer", "farther", "pitch", "roll", "yaw"}

func (d Direction) String() string {
	if d >= 0 && int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// IsRotation reports whether d jogs the tool angle rather than its position.
func (d Direction) IsRotation() bool {
	return d == Pitch || d == Roll || d == Yaw
}

// ParseDirection accepts the names returned by String.
func ParseDirection(s string) (Direction, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, name := range directionNames {
		if key == name {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// Translation returns the tool frame offset for a translation jog of v mm.
// X points backward, Y right and Z away from the head.
func (d Direction) Translation(v float64) [3]float64 {
	switch d {
	case Backward:
		return [3]float64{v, 0, 0}
	case Forward:
		return [3]float64{-v, 0, 0}
	case Left:
		return [3]float64{0, -v, 0}
	case Right:
		return [3]float64{0, v, 0}
	case Closer:
		return [3]float64{0, 0, -v}
	case Farther:
		return [3]float64{0, 0, v}
	}
	return [3]float64{}
}

// JogCommand builds the command for one jog. The controller resolves which
// axis a rotation jog turns about, so pitch, roll and yaw carry only the
// angle.
func JogCommand(commands map[string]string, d Direction, value float64) (protocol.Command, error) {
	if d < 0 || int(d) >= len(directionNames) {
		return protocol.Command{}, fmt.Errorf("%w: %v", ErrUnknownDirection, d)
	}
	name := OpManualTranslate
	if d.IsRotation() {
		name = OpManualRotate
	}
	op, ok := commands[name]
	if !ok {
		return protocol.Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if d.IsRotation() {
		return protocol.ManualRotation(op, value), nil
	}
	return protocol.ManualTranslation(op, d.Translation(value)), nil
}

// Sender is the synchronous command transport, normally a
// *network.CommandChannel.
type Sender interface {
	Send(cmd protocol.Command) ([]byte, error)
	Receive() ([]byte, error)
}

// Steps holds the jog step sizes. Zero fields take the defaults.
type Steps struct {
	TranslationMm float64 `json:"translation_mm"`
	RotationDeg   float64 `json:"rotation_deg"`
}

// Controller sends robot commands over one channel.
type Controller struct {
	sender   Sender
	commands map[string]string
	steps    Steps
}

// NewController returns a controller using the opcodes in commands.
func NewController(sender Sender, commands map[string]string, steps Steps) *Controller {
	if steps.TranslationMm <= 0 {
		steps.TranslationMm = DefaultTranslationStepMm
	}
	if steps.RotationDeg <= 0 {
		steps.RotationDeg = DefaultRotationStepDeg
	}
	return &Controller{sender: sender, commands: commands, steps: steps}
}

// Steps returns the configured jog steps.
func (c *Controller) Steps() Steps { return c.steps }

// Commands lists the plain commands this controller can send, sorted.
func (c *Controller) Commands() []string {
	var names []string
	for name := range c.commands {
		if name == OpManualTranslate || name == OpManualRotate {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Jog sends one jog of the configured step size.
func (c *Controller) Jog(d Direction) error {
	v := c.steps.TranslationMm
	if d.IsRotation() {
		v = c.steps.RotationDeg
	}
	return c.JogBy(d, v)
}

// JogBy sends one jog of value mm or degrees.
func (c *Controller) JogBy(d Direction, value float64) error {
	cmd, err := JogCommand(c.commands, d, value)
	if err != nil {
		return err
	}
	if _, err := c.sender.Send(cmd); err != nil {
		return fmt.Errorf("jog %s: %w", d, err)
	}
	return nil
}

// Do sends the plain command name. Queries (joint angles, effector pose)
// wait for the reply datagram and return it; other commands return nil.
func (c *Controller) Do(name string) ([]byte, error) {
	op, ok := c.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if _, err := c.sender.Send(protocol.NewCommand(op)); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !queries[name] {
		return nil, nil
	}
	reply, err := c.sender.Receive()
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w", name, err)
	}
	monitoring.Logf("robot: %s: %s", name, reply)
	return reply, nil
}
