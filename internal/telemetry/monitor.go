package telemetry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/mesh"
	"github.com/banshee-data/tmsnav/internal/protocol"
	"github.com/banshee-data/tmsnav/internal/timeutil"
)

// ErrNoReference is returned when a message arrives before the monitor has
// something to measure it against.
var ErrNoReference = errors.New("no reference for telemetry")

// SkinSurface answers closest-point queries on the skin.
type SkinSurface interface {
	ClosestPoint(p geom.Point3) (geom.Point3, mesh.Triangle, error)
}

// TargetSource supplies the currently planned target.
type TargetSource interface {
	Target() (geom.Pose, bool)
}

// ToolPoseFunc receives an externally tracked tool direction.
type ToolPoseFunc func(seed, direction geom.Point3) error

// Config configures a Monitor. Unset thresholds take their defaults.
type Config struct {
	Skin   SkinSurface
	Target TargetSource
	// OnToolPose handles toolpose messages; without it they are rejected.
	OnToolPose ToolPoseFunc
	// OnSample is called for each new estimate.
	OnSample func(Sample)

	PointThresholdMm float64
	PoseThresholdMm  float64
	Clock            timeutil.Clock
}

// Counts tallies handled messages by outcome.
type Counts struct {
	Point    uint64 `json:"point"`
	Pose     uint64 `json:"pose"`
	ToolPose uint64 `json:"toolpose"`
	Errors   uint64 `json:"errors"`
}

// Monitor decodes telemetry and keeps the latest estimate per message kind.
// Handle is safe to use as a network.Handler.
type Monitor struct {
	cfg Config

	mu     sync.Mutex
	latest map[protocol.Kind]Sample
	counts Counts
}

// NewMonitor returns a monitor for cfg.
func NewMonitor(cfg Config) *Monitor {
	if cfg.PointThresholdMm <= 0 {
		cfg.PointThresholdMm = DefaultColorChangeThresholdMm
	}
	if cfg.PoseThresholdMm <= 0 {
		cfg.PoseThresholdMm = FineTuneThresholdMm
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Monitor{cfg: cfg, latest: make(map[protocol.Kind]Sample)}
}

// Handle decodes data and dispatches it by kind.
func (m *Monitor) Handle(data []byte) error {
	msg, err := protocol.Decode(data)
	if err == nil {
		switch msg.Kind {
		case protocol.KindPoint:
			_, err = m.HandlePoint(msg.Point)
		case protocol.KindPose:
			_, err = m.HandlePose(msg.Pose)
		case protocol.KindToolPose:
			err = m.HandleToolPose(msg.Seed, msg.Direction)
		}
	}
	if err != nil {
		m.mu.Lock()
		m.counts.Errors++
		m.mu.Unlock()
	}
	return err
}

// HandlePoint measures a pointer tip against the closest skin point.
func (m *Monitor) HandlePoint(tip geom.Point3) (Sample, error) {
	if m.cfg.Skin == nil {
		return Sample{}, fmt.Errorf("%w: no skin surface", ErrNoReference)
	}
	closest, _, err := m.cfg.Skin.ClosestPoint(tip)
	if err != nil {
		return Sample{}, fmt.Errorf("closest skin point: %w", err)
	}
	s := newSample(protocol.KindPoint, m.cfg.Clock.Now(), tip, closest, m.cfg.PointThresholdMm)
	m.record(s)
	return s, nil
}

// HandlePose measures a tracked tool pose against the target translation.
func (m *Monitor) HandlePose(current geom.Pose) (Sample, error) {
	if m.cfg.Target == nil {
		return Sample{}, fmt.Errorf("%w: no target source", ErrNoReference)
	}
	target, ok := m.cfg.Target.Target()
	if !ok {
		return Sample{}, fmt.Errorf("%w: no target planned", ErrNoReference)
	}
	s := newSample(protocol.KindPose, m.cfg.Clock.Now(), current.Origin, target.Origin, m.cfg.PoseThresholdMm)
	m.record(s)
	return s, nil
}

// HandleToolPose forwards an externally tracked tool direction.
func (m *Monitor) HandleToolPose(seed, direction geom.Point3) error {
	if m.cfg.OnToolPose == nil {
		return fmt.Errorf("%w: toolpose messages not accepted", ErrNoReference)
	}
	if err := m.cfg.OnToolPose(seed, direction); err != nil {
		return err
	}
	m.mu.Lock()
	m.counts.ToolPose++
	m.mu.Unlock()
	return nil
}

func (m *Monitor) record(s Sample) {
	m.mu.Lock()
	m.latest[s.Kind] = s
	switch s.Kind {
	case protocol.KindPoint:
		m.counts.Point++
	case protocol.KindPose:
		m.counts.Pose++
	}
	m.mu.Unlock()

	if m.cfg.OnSample != nil {
		m.cfg.OnSample(s)
	}
}

// Latest returns the most recent estimate of kind.
func (m *Monitor) Latest(kind protocol.Kind) (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.latest[kind]
	return s, ok
}

// Counts returns message tallies.
func (m *Monitor) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}
