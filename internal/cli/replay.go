package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/navsvc"
	"github.com/banshee-data/tmsnav/internal/plan"
	"github.com/banshee-data/tmsnav/internal/protocol"
	"github.com/banshee-data/tmsnav/internal/security"
	"github.com/banshee-data/tmsnav/internal/telemetry"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Capture string
	Port    int
	Speed   float64
	Scene   SceneOptions
	Target  landmarkInput
	Chart   string
}

// ReplayResult is the output of the replay command.
type ReplayResult struct {
	Stats   telemetry.ReplayStats `json:"stats"`
	Counts  telemetry.Counts      `json:"counts"`
	Latest  []telemetry.Sample    `json:"latest"`
	Samples int                   `json:"samples"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay captured tracker telemetry through the TRE monitor",
		Long: `Read UDP telemetry from a pcap capture and feed each datagram to the TRE
monitor. Point messages are measured against the stand-in skin; pose messages
against the target planned from --landmarks, if given. Toolpose messages
re-plan the target.

Examples:
  tmsnav replay --pcap session.pcap --port 5005
  tmsnav replay --pcap session.pcap --landmarks "0,0,80;10,0,79.4;0,10,79.4" --speed 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Capture, "pcap", "", "pcap capture (required)")
	_ = cmd.MarkFlagRequired("pcap")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "keep only datagrams sent to this UDP port; 0 keeps all")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 0, "pace by capture timestamps at this speed; 0 replays as fast as possible")
	opts.Scene.addFlags(cmd)
	opts.Target.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Chart, "chart", "", "write an HTML chart of the TRE estimates to this file")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	skin, brain, err := opts.Scene.Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid head model", err)
	}
	pl := plan.NewPlanner(skin, brain, plan.Options{})
	if opts.Target.File != "" || opts.Target.Inline != "" {
		pts, err := opts.Target.load()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read landmarks", err)
		}
		if _, err := pl.Plan(pts); err != nil {
			return WrapExitError(ExitCommandError, "planning failed", err)
		}
	}

	if opts.Chart != "" {
		if err := security.ValidateOutputPath(opts.Chart); err != nil {
			return WrapExitError(ExitCommandError, "invalid chart path", err)
		}
	}

	var samples []telemetry.Sample
	mon := telemetry.NewMonitor(telemetry.Config{
		Skin:   skin,
		Target: pl,
		OnToolPose: func(seed, second geom.Point3) error {
			_, err := pl.Plan([]geom.Point3{seed, second})
			return err
		},
		OnSample: func(s telemetry.Sample) { samples = append(samples, s) },
	})

	stats, err := telemetry.ReplayFile(cmd.Context(), opts.Capture, telemetry.ReplayConfig{
		Port:  opts.Port,
		Speed: opts.Speed,
	}, mon.Handle)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if opts.Chart != "" {
		if err := writeChart(opts.Chart, samples); err != nil {
			return WrapExitError(ExitCommandError, "failed to write chart", err)
		}
	}

	res := ReplayResult{Stats: stats, Counts: mon.Counts(), Samples: len(samples)}
	var b strings.Builder
	fmt.Fprintf(&b, "%d packets, %d delivered, %d skipped, %d handler errors",
		stats.Packets, stats.Delivered, stats.Skipped, stats.HandlerErrors)
	for _, k := range []protocol.Kind{protocol.KindPoint, protocol.KindPose} {
		if s, ok := mon.Latest(k); ok {
			res.Latest = append(res.Latest, s)
			fmt.Fprintf(&b, "\nlast %s: %s", s.KindName, s.Annotation())
		}
	}
	return opts.emit(cmd, res, b.String())
}

func writeChart(path string, samples []telemetry.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := navsvc.RenderTREChart(f, "tmsnav replay "+filepath.Base(path), samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
