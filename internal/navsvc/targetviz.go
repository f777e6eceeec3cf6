package navsvc

import (
	"github.com/banshee-data/tmsnav/internal/loop"
	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/network"
	"github.com/banshee-data/tmsnav/internal/protocol"
	"github.com/banshee-data/tmsnav/internal/telemetry"
	"github.com/banshee-data/tmsnav/internal/timeutil"
)

// Target visualization command names.
const (
	CmdVisualizeStart = "VISUALIZE_START"
	CmdVisualizeStop  = "VISUALIZE_STOP"
)

// TargetVizOptions configures a TargetViz module.
type TargetVizOptions struct {
	Commands map[string]string
	// Target supplies the planned pose tracked coil poses are compared to.
	Target          telemetry.TargetSource
	Loop            *loop.Loop
	PoseThresholdMm float64
	Clock           timeutil.Clock
	OnSample        func(telemetry.Sample)
}

// TargetViz compares the tracked coil pose with the planned target.
type TargetViz struct {
	ch      Channel
	cmds    opcodes
	monitor *telemetry.Monitor
	poller  *network.Poller
	log     monitoring.Logger
}

// NewTargetViz returns a TargetViz module sending on ch.
func NewTargetViz(ch Channel, opts TargetVizOptions) (*TargetViz, error) {
	cmds := opcodes(opts.Commands)
	for _, name := range []string{CmdVisualizeStart, CmdVisualizeStop} {
		if _, err := cmds.get(name); err != nil {
			return nil, err
		}
	}
	tv := &TargetViz{ch: ch, cmds: cmds, log: monitoring.For("targetviz")}
	tv.monitor = telemetry.NewMonitor(telemetry.Config{
		Target:          opts.Target,
		OnSample:        opts.OnSample,
		PoseThresholdMm: opts.PoseThresholdMm,
		Clock:           opts.Clock,
	})
	if opts.Loop != nil {
		tv.poller = network.NewPoller("targetviz", opts.Loop, ch, tv.monitor.Handle)
	}
	return tv, nil
}

// Monitor returns the monitor fed by the pose poller.
func (tv *TargetViz) Monitor() *telemetry.Monitor { return tv.monitor }

// Start asks the tracker to stream coil poses and starts polling them.
func (tv *TargetViz) Start() error {
	cmd, err := tv.cmds.command(CmdVisualizeStart)
	if err != nil {
		return err
	}
	if _, err := tv.ch.Send(cmd); err != nil {
		return err
	}
	if tv.poller == nil {
		return nil
	}
	return tv.poller.Start()
}

// Stop asks the tracker to stop streaming and stops polling.
func (tv *TargetViz) Stop() error {
	cmd, err := tv.cmds.command(CmdVisualizeStop)
	if err != nil {
		return err
	}
	if _, err := tv.ch.Send(cmd); err != nil {
		return err
	}
	if tv.poller != nil {
		tv.poller.Stop()
	}
	tv.log.Printf("visualization stopped")
	return nil
}

// TargetVizStatus is the module state shown on the admin routes.
type TargetVizStatus struct {
	Channel   ChannelStatus     `json:"channel"`
	Poller    *PollerStatus     `json:"poller,omitempty"`
	Telemetry telemetry.Counts  `json:"telemetry"`
	Pose      *telemetry.Sample `json:"pose,omitempty"`
}

// Status returns a snapshot of the module.
func (tv *TargetViz) Status() TargetVizStatus {
	st := TargetVizStatus{Channel: channelStatus(tv.ch), Telemetry: tv.monitor.Counts()}
	if tv.poller != nil {
		ps := pollerStatus(tv.poller)
		st.Poller = &ps
	}
	if s, ok := tv.monitor.Latest(protocol.KindPose); ok {
		st.Pose = &s
	}
	return st
}
