// Package protocol encodes planner output into the fixed-field text commands
// sent to the navigation side and decodes the telemetry it streams back.
//
// Commands are ASCII, underscore-delimited: {opcode}_{field}_{field}...
// Opcodes come from configuration and are treated as opaque prefixes.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Field layouts used on the wire.
const (
	DefaultDecimals = 5
	DefaultWidth    = 10
	PoseDecimals    = 15
	PoseWidth       = 17
)

// FormatNumber renders v with a fixed number of decimals and then left-pads
// it with '0' to width characters. A leading sign stays in front of the
// padding, so -1.5 at 1 decimal and width 6 is "-001.5". Strings already at
// or beyond width are returned unchanged.
func FormatNumber(v float64, decimals, width int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if len(s) >= width {
		return s
	}
	pad := strings.Repeat("0", width-len(s))
	if s[0] == '-' || s[0] == '+' {
		return s[:1] + pad + s[1:]
	}
	return pad + s
}

// FormatDefault formats with 5 decimals and width 10.
func FormatDefault(v float64) string {
	return FormatNumber(v, DefaultDecimals, DefaultWidth)
}

// FormatPose formats with 15 decimals and width 17.
func FormatPose(v float64) string {
	return FormatNumber(v, PoseDecimals, PoseWidth)
}

// FormatIndex renders a landmark index or count as two digits.
func FormatIndex(i int) string {
	return fmt.Sprintf("%02d", i)
}
