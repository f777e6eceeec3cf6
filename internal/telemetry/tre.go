// Package telemetry turns tracker telemetry into live target registration
// error (TRE) estimates.
//
// Point messages are compared against the closest skin surface point, pose
// messages against the planned target translation. Each estimate carries a
// red-to-green color that turns fully green as the distance reaches zero.
package telemetry

import (
	"fmt"
	"time"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/protocol"
)

// Distance thresholds below which the indicator color starts moving toward
// green.
const (
	DefaultColorChangeThresholdMm = 4.0
	FineTuneThresholdMm           = 15.0
)

// Color is an RGB triple in [0, 1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// ColorByDistance maps dist onto a red-to-green ramp: red at or beyond
// threshold, green at zero.
func ColorByDistance(dist, threshold float64) Color {
	indx := 0.0
	if threshold > 0 && threshold >= dist {
		indx = (threshold - dist) / threshold
	}
	return Color{R: 1 - indx, G: indx}
}

// Sample is one TRE estimate.
type Sample struct {
	Kind       protocol.Kind `json:"-"`
	KindName   string        `json:"kind"`
	Time       time.Time     `json:"time"`
	Tracked    geom.Point3   `json:"tracked"`
	Reference  geom.Point3   `json:"reference"`
	DistanceMm float64       `json:"distance_mm"`
	Color      Color         `json:"color"`
}

func newSample(kind protocol.Kind, at time.Time, tracked, reference geom.Point3, threshold float64) Sample {
	d := geom.Distance(tracked, reference)
	return Sample{
		Kind:       kind,
		KindName:   kind.String(),
		Time:       at,
		Tracked:    tracked,
		Reference:  reference,
		DistanceMm: d,
		Color:      ColorByDistance(d, threshold),
	}
}

// Annotation is the operator-facing TRE readout.
func (s Sample) Annotation() string {
	return fmt.Sprintf("Estimate of TRE: %.4f mm", s.DistanceMm)
}
