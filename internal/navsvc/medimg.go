package navsvc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/loop"
	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/network"
	"github.com/banshee-data/tmsnav/internal/plan"
	"github.com/banshee-data/tmsnav/internal/protocol"
	"github.com/banshee-data/tmsnav/internal/telemetry"
	"github.com/banshee-data/tmsnav/internal/timeutil"
	"github.com/banshee-data/tmsnav/internal/units"
)

// Medical image planning command names.
const (
	CmdLandmarkCount       = "LANDMARK_NUM_OF_ON_IMG"
	CmdLandmarkCurrent     = "LANDMARK_CURRENT_ON_IMG"
	CmdLandmarkLast        = "LANDMARK_LAST_RECEIVED"
	CmdPoseOrientation     = "TARGET_POSE_ORIENTATION"
	CmdPoseTranslation     = "TARGET_POSE_TRANSLATION"
	CmdDigitizeHighlighted = "START_LANDMARK_DIG_NUM"
	CmdDigitizePrevAndHigh = "START_LANDMARK_DIG_PREV_DIG_HILIGHT"
	CmdDigitizePrev        = "START_LANDMARK_DIG_PREV"
	CmdAutoDigitize        = "START_AUTO_DIGITIZE"
	CmdRegister            = "START_REGISTRATION"
	CmdRegisterPrevious    = "START_USE_PREV_REGISTRATION"
	CmdTREStart            = "START_TRE_CALCULATION_START"
	CmdTREStop             = "START_TRE_CALCULATION_STOP"
	CmdICPDigitize         = "ICP_DIGITIZE"
	CmdICPClearPrev        = "ICP_CLEAR_PREV"
	CmdICPClearAll         = "ICP_CLEAR_ALL"
	CmdICPRegister         = "ICP_REGISTER"
)

// plainMedImgCommands carry no fields and expect only an ack.
var plainMedImgCommands = map[string]bool{
	CmdDigitizePrev: true,
	CmdAutoDigitize: true,
	CmdICPDigitize:  true,
	CmdICPClearPrev: true,
	CmdICPClearAll:  true,
}

// MedImgOptions configures a MedImg module.
type MedImgOptions struct {
	Commands map[string]string
	Planner  *plan.Planner
	// Skin is measured against by TRE point telemetry. Without it TRE
	// cannot start.
	Skin telemetry.SkinSurface
	Loop *loop.Loop

	ColorChangeThresholdMm float64
	GridCount              int
	GridSpacingMm          float64
	Clock                  timeutil.Clock
	// OnSample receives each TRE estimate.
	OnSample func(telemetry.Sample)
}

// MedImg is the medical image planning module: it pushes planned landmarks
// for registration, plans and sends tool poses, and estimates TRE from
// tracked pointer telemetry.
type MedImg struct {
	ch       Channel
	cmds     opcodes
	planner  *plan.Planner
	hasSkin  bool
	monitor  *telemetry.Monitor
	poller   *network.Poller
	log      monitoring.Logger
	gridN    int
	gridStep float64

	mu        sync.Mutex
	landmarks []geom.Point3
	residual  string
}

// NewMedImg returns a MedImg module sending on ch.
func NewMedImg(ch Channel, opts MedImgOptions) (*MedImg, error) {
	cmds := opcodes(opts.Commands)
	for _, name := range []string{CmdLandmarkCount, CmdLandmarkCurrent, CmdLandmarkLast, CmdPoseOrientation, CmdPoseTranslation} {
		if _, err := cmds.get(name); err != nil {
			return nil, err
		}
	}
	if opts.Planner == nil {
		return nil, fmt.Errorf("medimg: planner required")
	}
	if opts.GridCount <= 0 {
		opts.GridCount = plan.DefaultGridCount
	}
	if opts.GridSpacingMm <= 0 {
		opts.GridSpacingMm = plan.DefaultGridSpacing
	}

	m := &MedImg{
		ch:       ch,
		cmds:     cmds,
		planner:  opts.Planner,
		hasSkin:  opts.Skin != nil,
		log:      monitoring.For("medimg"),
		gridN:    opts.GridCount,
		gridStep: opts.GridSpacingMm,
	}
	m.monitor = telemetry.NewMonitor(telemetry.Config{
		Skin:             opts.Skin,
		Target:           opts.Planner,
		OnToolPose:       m.planFromToolPose,
		OnSample:         opts.OnSample,
		PointThresholdMm: opts.ColorChangeThresholdMm,
		Clock:            opts.Clock,
	})
	if opts.Loop != nil {
		m.poller = network.NewPoller("medimg", opts.Loop, ch, m.monitor.Handle)
	}
	m.planner.SetCommitCheck(m.encodePose)
	return m, nil
}

// Monitor returns the TRE monitor fed by the telemetry poller.
func (m *MedImg) Monitor() *telemetry.Monitor { return m.monitor }

// Planner returns the module's planner.
func (m *MedImg) Planner() *plan.Planner { return m.planner }

// PushLandmarks sends the planned landmark set: the count, each landmark
// in order, then the terminal marker. Any failure stops the sequence.
func (m *MedImg) PushLandmarks(pts []geom.Point3) error {
	if len(pts) < 3 {
		return fmt.Errorf("%w: got %d", ErrTooFewLandmarks, len(pts))
	}
	ops := protocol.LandmarkOpcodes{
		Count:   m.cmds[CmdLandmarkCount],
		Current: m.cmds[CmdLandmarkCurrent],
		Last:    m.cmds[CmdLandmarkLast],
	}
	cmds := protocol.LandmarkSequence(ops, pts)
	n, err := m.ch.SendAll(cmds)
	if err != nil {
		return fmt.Errorf("landmark upload stopped after %d of %d commands: %w", n, len(cmds), err)
	}
	m.mu.Lock()
	m.landmarks = append([]geom.Point3(nil), pts...)
	m.mu.Unlock()
	m.log.Printf("pushed %d landmarks", len(pts))
	return nil
}

// Landmarks returns the last landmark set pushed.
func (m *MedImg) Landmarks() []geom.Point3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]geom.Point3(nil), m.landmarks...)
}

// Digitize asks the tracker to digitize landmark idx, optionally first
// re-digitizing the previous one.
func (m *MedImg) Digitize(idx int, withPrevious bool) error {
	if idx < 0 {
		return fmt.Errorf("%w: highlight a landmark first (index %d)", ErrInvalidArgument, idx)
	}
	name := CmdDigitizeHighlighted
	if withPrevious {
		name = CmdDigitizePrevAndHigh
	}
	op, err := m.cmds.get(name)
	if err != nil {
		return err
	}
	_, err = m.ch.Send(protocol.IndexCommand(op, idx))
	return err
}

// Command sends one of the field-less digitizing or ICP commands.
func (m *MedImg) Command(name string) error {
	if !plainMedImgCommands[name] {
		return fmt.Errorf("%w: %s is not a plain command", ErrUnknownCommand, name)
	}
	cmd, err := m.cmds.command(name)
	if err != nil {
		return err
	}
	_, err = m.ch.Send(cmd)
	return err
}

// Register starts landmark registration, or reuses the previous one, and
// waits for the residual the navigation side reports back (mm).
func (m *MedImg) Register(usePrevious bool) (string, error) {
	name := CmdRegister
	if usePrevious {
		name = CmdRegisterPrevious
	}
	cmd, err := m.cmds.command(name)
	if err != nil {
		return "", err
	}
	if _, err := m.ch.Send(cmd); err != nil {
		return "", err
	}
	data, err := m.ch.Receive()
	if err != nil {
		return "", fmt.Errorf("registration residual: %w", err)
	}
	residual := strings.TrimSpace(string(data))
	m.mu.Lock()
	m.residual = residual
	m.mu.Unlock()
	m.log.Printf("Registration residual: %smm", residual)
	return residual, nil
}

// RegisterICP requests surface registration against the mesh at path, as
// the navigation side sees it.
func (m *MedImg) RegisterICP(meshPath string) error {
	meshPath = strings.TrimSpace(meshPath)
	if meshPath == "" {
		return fmt.Errorf("%w: select a mesh file first", ErrInvalidArgument)
	}
	op, err := m.cmds.get(CmdICPRegister)
	if err != nil {
		return err
	}
	_, err = m.ch.Send(protocol.PathCommand(op, meshPath))
	return err
}

func (m *MedImg) poseCommands(pose geom.Pose) []protocol.Command {
	ops := protocol.PoseOpcodes{
		Orientation: m.cmds[CmdPoseOrientation],
		Translation: m.cmds[CmdPoseTranslation],
	}
	return protocol.PoseCommands(ops, pose)
}

// encodePose rejects a target whose pose commands cannot be encoded, before
// the planner commits it.
func (m *MedImg) encodePose(pose geom.Pose) error {
	for _, cmd := range m.poseCommands(pose) {
		if _, err := cmd.Encode(); err != nil {
			return fmt.Errorf("encode target pose: %w", err)
		}
	}
	return nil
}

// sendPose sends the orientation then translation of pose.
func (m *MedImg) sendPose(pose geom.Pose) error {
	if _, err := m.ch.SendAll(m.poseCommands(pose)); err != nil {
		return fmt.Errorf("send target pose: %w", err)
	}
	return nil
}

// PlanPose plans a target from 2, 3 or 4 landmarks and sends it.
func (m *MedImg) PlanPose(landmarks []geom.Point3) (geom.Pose, error) {
	pose, err := m.planner.Plan(landmarks)
	if err != nil {
		return geom.Pose{}, err
	}
	return pose, m.sendPose(pose)
}

func (m *MedImg) planFromToolPose(seed, second geom.Point3) error {
	_, err := m.PlanPose([]geom.Point3{seed, second})
	return err
}

// SetPolicy switches the orientation policy. If a target has been planned
// it is re-derived under the new policy and sent, and returned; otherwise
// the returned pose is nil.
func (m *MedImg) SetPolicy(p plan.Policy) (*geom.Pose, error) {
	pose, err := m.planner.SetPolicy(p)
	if err != nil || pose == nil {
		return nil, err
	}
	return pose, m.sendPose(*pose)
}

// SetPlanOnBrain selects the surface later plans are made on.
func (m *MedImg) SetPlanOnBrain(on bool) {
	m.planner.SetPlanOnBrain(on)
}

// Adjust moves the target by dT mm and rotates it by dRDeg degrees about
// its own axes, then sends it.
func (m *MedImg) Adjust(dT, dRDeg [3]float64) (geom.Pose, error) {
	var dR [3]float64
	for i, d := range dRDeg {
		dR[i] = units.DegreesToRadians(d)
	}
	pose, err := m.planner.Adjust(dT, dR)
	if err != nil {
		return geom.Pose{}, err
	}
	return pose, m.sendPose(pose)
}

// Randomize sends a random perturbation of the target. The planned target
// itself is unchanged.
func (m *MedImg) Randomize() (geom.Pose, error) {
	pose, err := m.planner.Randomize()
	if err != nil {
		return geom.Pose{}, err
	}
	return pose, m.sendPose(pose)
}

// PlanGrid builds a grid plan around the target. Zero arguments take the
// configured count and spacing.
func (m *MedImg) PlanGrid(count int, spacingMm float64) (*plan.GridPlan, error) {
	if count <= 0 {
		count = m.gridN
	}
	if spacingMm <= 0 {
		spacingMm = m.gridStep
	}
	g, err := m.planner.PlanGrid(count, spacingMm)
	if err != nil {
		return nil, err
	}
	m.log.Printf("grid plan %s: %d waypoints at %.2f mm", g.ID, g.Len(), g.Spacing)
	return g, nil
}

// GridNext moves to the next grid waypoint and sends it.
func (m *MedImg) GridNext() (geom.Pose, int, error) {
	pose, idx, err := m.planner.GridNext()
	if err != nil {
		return geom.Pose{}, 0, err
	}
	return pose, idx, m.sendPose(pose)
}

// StartTRE asks the tracker to stream pointer positions and starts polling
// them. Starting while already polling only re-sends the request.
func (m *MedImg) StartTRE() error {
	if !m.hasSkin {
		return ErrNoSkin
	}
	if m.poller == nil {
		return fmt.Errorf("medimg: no loop for telemetry polling")
	}
	cmd, err := m.cmds.command(CmdTREStart)
	if err != nil {
		return err
	}
	if _, err := m.ch.Send(cmd); err != nil {
		return err
	}
	return m.poller.Start()
}

// StopTRE asks the tracker to stop streaming and stops polling.
func (m *MedImg) StopTRE() error {
	cmd, err := m.cmds.command(CmdTREStop)
	if err != nil {
		return err
	}
	if _, err := m.ch.Send(cmd); err != nil {
		return err
	}
	if m.poller != nil {
		m.poller.Stop()
	}
	return nil
}

// MedImgStatus is the module state shown on the admin routes.
type MedImgStatus struct {
	Channel   ChannelStatus     `json:"channel"`
	Poller    *PollerStatus     `json:"poller,omitempty"`
	Telemetry telemetry.Counts  `json:"telemetry"`
	TRE       *telemetry.Sample `json:"tre,omitempty"`
	Landmarks int               `json:"landmarks"`
	Residual  string            `json:"registration_residual,omitempty"`
	Plan      PlanView          `json:"plan"`
}

// Status returns a snapshot of the module.
func (m *MedImg) Status() MedImgStatus {
	m.mu.Lock()
	st := MedImgStatus{Landmarks: len(m.landmarks), Residual: m.residual}
	m.mu.Unlock()

	st.Channel = channelStatus(m.ch)
	if m.poller != nil {
		ps := pollerStatus(m.poller)
		st.Poller = &ps
	}
	st.Telemetry = m.monitor.Counts()
	if s, ok := m.monitor.Latest(protocol.KindPoint); ok {
		st.TRE = &s
	}
	st.Plan = NewPlanView(m.planner.Snapshot())
	return st
}
