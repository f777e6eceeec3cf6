package navsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/tmsnav/internal/config"
	"github.com/banshee-data/tmsnav/internal/loop"
	"github.com/banshee-data/tmsnav/internal/mesh"
	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/network"
	"github.com/banshee-data/tmsnav/internal/plan"
	"github.com/banshee-data/tmsnav/internal/robot"
	"github.com/banshee-data/tmsnav/internal/telemetry"
	"github.com/banshee-data/tmsnav/internal/timeutil"
)

// Config holds everything a Service is built from.
type Config struct {
	Network  config.NetworkConfig
	Commands config.CommandSet
	// Planning may be nil for the built-in defaults.
	Planning *config.PlanningConfig

	// Skin is the head surface in the planning frame. Without it TRE and
	// 2-landmark planning on skin are unavailable.
	Skin *mesh.Mesh
	// Brain is the cortex surface in the planning frame. Required when
	// planning on the brain.
	Brain plan.Surface

	// Factory opens sockets; nil means real UDP.
	Factory network.UDPSocketFactory
	Clock   timeutil.Clock
	// OnSample receives every TRE estimate from both telemetry streams.
	OnSample func(telemetry.Sample)
}

// Channels is the set of command channels a Service runs over.
type Channels struct {
	MedImg    Channel
	TargetViz Channel
	Robot     Channel
}

// OpenChannels binds the three module channels described by cfg.
func OpenChannels(cfg config.NetworkConfig, factory network.UDPSocketFactory) (Channels, error) {
	var chs Channels
	var opened []Channel
	fail := func(err error) (Channels, error) {
		for _, ch := range opened {
			ch.Close()
		}
		return Channels{}, err
	}
	for _, m := range []struct {
		suffix string
		dst    *Channel
	}{
		{config.SuffixMedImg, &chs.MedImg},
		{config.SuffixTargetViz, &chs.TargetViz},
		{config.SuffixRobot, &chs.Robot},
	} {
		ep, err := cfg.Endpoint(m.suffix)
		if err != nil {
			return fail(err)
		}
		ch, err := network.Open(ep, factory)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, ch)
		*m.dst = ch
	}
	return chs, nil
}

// Service owns the three modules, their channels and the loop they run on.
type Service struct {
	loop      *loop.Loop
	planner   *plan.Planner
	chs       Channels
	medImg    *MedImg
	targetViz *TargetViz
	robot     *robot.Controller
	history   *TREHistory
	log       monitoring.Logger
}

// New opens the channels in cfg.Network and builds the modules.
func New(cfg Config) (*Service, error) {
	if err := cfg.Commands.Validate(); err != nil {
		return nil, err
	}
	chs, err := OpenChannels(cfg.Network, cfg.Factory)
	if err != nil {
		return nil, err
	}
	s, err := NewWithChannels(cfg, chs)
	if err != nil {
		chs.closeAll()
		return nil, err
	}
	return s, nil
}

// NewWithChannels builds the modules over already open channels.
func NewWithChannels(cfg Config, chs Channels) (*Service, error) {
	pc := cfg.Planning
	if pc == nil {
		pc = config.DefaultPlanningConfig()
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	groups := make(map[string]map[string]string)
	for _, g := range []string{config.GroupMedImg, config.GroupTargetViz, config.GroupRobot} {
		group, err := cfg.Commands.Group(g)
		if err != nil {
			return nil, err
		}
		groups[g] = group
	}

	// Typed nil meshes must not become non-nil interfaces.
	var skin plan.Surface
	var skinTRE telemetry.SkinSurface
	if cfg.Skin != nil {
		skin, skinTRE = cfg.Skin, cfg.Skin
	}

	s := &Service{
		loop:    loop.New(cfg.Clock),
		chs:     chs,
		history: NewTREHistory(DefaultHistorySize),
		log:     monitoring.For("navsvc"),
	}
	onSample := func(sample telemetry.Sample) {
		s.history.Add(sample)
		if cfg.OnSample != nil {
			cfg.OnSample(sample)
		}
	}
	s.planner = plan.NewPlanner(skin, cfg.Brain, pc.PlannerOptions())

	var err error
	s.medImg, err = NewMedImg(chs.MedImg, MedImgOptions{
		Commands:               groups[config.GroupMedImg],
		Planner:                s.planner,
		Skin:                   skinTRE,
		Loop:                   s.loop,
		ColorChangeThresholdMm: pc.GetColorChangeThresholdMm(),
		GridCount:              pc.GetGridCount(),
		GridSpacingMm:          pc.GetGridSpacingMm(),
		Clock:                  cfg.Clock,
		OnSample:               onSample,
	})
	if err != nil {
		return nil, fmt.Errorf("medimg: %w", err)
	}
	s.targetViz, err = NewTargetViz(chs.TargetViz, TargetVizOptions{
		Commands:        groups[config.GroupTargetViz],
		Target:          s.planner,
		Loop:            s.loop,
		PoseThresholdMm: pc.GetFineTuneThresholdMm(),
		Clock:           cfg.Clock,
		OnSample:        onSample,
	})
	if err != nil {
		return nil, fmt.Errorf("targetviz: %w", err)
	}
	s.robot = robot.NewController(chs.Robot, groups[config.GroupRobot], pc.RobotSteps())
	return s, nil
}

// Run processes module operations and telemetry until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.log.Printf("running")
	return s.loop.Run(ctx)
}

// Exec runs fn on the service loop and returns its error. Operations on
// the modules must go through Exec so they do not race telemetry polling
// for channel replies.
func (s *Service) Exec(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if err := s.loop.Do(ctx, func() { res <- fn() }); err != nil {
		return err
	}
	return <-res
}

// MedImg returns the medical image planning module.
func (s *Service) MedImg() *MedImg { return s.medImg }

// TargetViz returns the target visualization module.
func (s *Service) TargetViz() *TargetViz { return s.targetViz }

// Robot returns the robot controller.
func (s *Service) Robot() *robot.Controller { return s.robot }

// Planner returns the shared planner.
func (s *Service) Planner() *plan.Planner { return s.planner }

// History returns the recent TRE estimates of both modules.
func (s *Service) History() *TREHistory { return s.history }

// RobotStatus is the robot module state shown on the admin routes.
type RobotStatus struct {
	Channel  ChannelStatus `json:"channel"`
	Steps    robot.Steps   `json:"steps"`
	Commands []string      `json:"commands"`
}

// Status is a snapshot of every module.
type Status struct {
	MedImg    MedImgStatus    `json:"medimg"`
	TargetViz TargetVizStatus `json:"targetviz"`
	Robot     RobotStatus     `json:"robot"`
}

// Status returns a snapshot of every module. It is safe to call off the
// loop.
func (s *Service) Status() Status {
	return Status{
		MedImg:    s.medImg.Status(),
		TargetViz: s.targetViz.Status(),
		Robot: RobotStatus{
			Channel:  channelStatus(s.chs.Robot),
			Steps:    s.robot.Steps(),
			Commands: s.robot.Commands(),
		},
	}
}

// Close stops telemetry polling and closes every channel.
func (s *Service) Close() error {
	if s.medImg.poller != nil {
		s.medImg.poller.Stop()
	}
	if s.targetViz.poller != nil {
		s.targetViz.poller.Stop()
	}
	return s.chs.closeAll()
}

func (c Channels) closeAll() error {
	var errs []error
	for _, ch := range []Channel{c.MedImg, c.TargetViz, c.Robot} {
		if ch != nil {
			errs = append(errs, ch.Close())
		}
	}
	return errors.Join(errs...)
}
