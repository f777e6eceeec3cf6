package config

import (
	"fmt"
	"sort"

	"github.com/banshee-data/tmsnav/internal/protocol"
)

// DefaultCommandsPath is the shipped opcode table.
const DefaultCommandsPath = "config/commands.json"

// Command groups, one per module.
const (
	GroupMedImg    = "MegImgCmd"
	GroupTargetViz = "TargetVizCmd"
	GroupRobot     = "RobCtrlCmd"
)

// Opcode names each module group must define.
var requiredCommands = map[string][]string{
	GroupMedImg: {
		"LANDMARK_NUM_OF_ON_IMG",
		"LANDMARK_CURRENT_ON_IMG",
		"LANDMARK_LAST_RECEIVED",
		"TARGET_POSE_ORIENTATION",
		"TARGET_POSE_TRANSLATION",
	},
	GroupTargetViz: {"VISUALIZE_START", "VISUALIZE_STOP"},
	GroupRobot:     {"MAN_ADJUST_T", "MAN_ADJUST_R"},
}

// poseOpcodeFields is the number of pose fields each pose command carries.
var poseOpcodeFields = map[string]int{
	"TARGET_POSE_ORIENTATION": protocol.OrientationFields,
	"TARGET_POSE_TRANSLATION": protocol.TranslationFields,
}

// CommandSet maps group -> command name -> opcode. Opcodes are opaque
// strings agreed with the navigation side.
type CommandSet map[string]map[string]string

// LoadCommandSet reads and validates a command table.
func LoadCommandSet(path string) (CommandSet, error) {
	cs := CommandSet{}
	if err := readJSON(path, &cs); err != nil {
		return nil, err
	}
	if err := cs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cs, nil
}

// Validate checks that present groups define the opcodes their module
// needs, that no opcode is empty and that the target pose opcodes leave
// room for their fields.
func (cs CommandSet) Validate() error {
	for group, cmds := range cs {
		for name, op := range cmds {
			if op == "" {
				return fmt.Errorf("%s.%s: empty opcode", group, name)
			}
		}
		if group == GroupMedImg {
			for name, fields := range poseOpcodeFields {
				op, ok := cmds[name]
				if limit := protocol.MaxPoseOpcodeLength(fields); ok && len(op) > limit {
					return fmt.Errorf("%s.%s: opcode is %d characters, at most %d fit with the pose fields: %w",
						group, name, len(op), limit, protocol.ErrMessageTooLong)
				}
			}
		}
		if err := cs.Require(group, requiredCommands[group]...); err != nil {
			return err
		}
	}
	return nil
}

// Group returns the opcodes of one module.
func (cs CommandSet) Group(name string) (map[string]string, error) {
	g, ok := cs[name]
	if !ok {
		return nil, fmt.Errorf("%w: command group %s", ErrMissingKey, name)
	}
	return g, nil
}

// Require checks that group defines every name.
func (cs CommandSet) Require(group string, names ...string) error {
	g, err := cs.Group(group)
	if err != nil {
		return err
	}
	var missing []string
	for _, n := range names {
		if _, ok := g[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s %v", ErrMissingKey, group, missing)
	}
	return nil
}
