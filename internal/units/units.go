// Package units provides shared constants and conversions for lengths and
// angles. The planning frame works in millimetres and radians; the wire
// protocol and result logs use metres, operators type degrees.
package units

import "math"

// Length unit constants
const (
	MM = "mm"
	M  = "m"
)

// ValidLengthUnits contains all valid length unit values
var ValidLengthUnits = []string{MM, M}

// IsValidLength checks if the given unit is a known length unit
func IsValidLength(unit string) bool {
	for _, u := range ValidLengthUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// MillimetresToMetres converts a planning-frame length to wire units.
func MillimetresToMetres(mm float64) float64 { return mm / 1000 }

// MetresToMillimetres converts a wire or log length to planning-frame units.
func MetresToMillimetres(m float64) float64 { return m * 1000 }

// DegreesToRadians converts an operator angle to radians.
func DegreesToRadians(deg float64) float64 { return deg / 180 * math.Pi }
