package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tmsnav/internal/config"
	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/navsvc"
	"github.com/banshee-data/tmsnav/internal/plan"
	"github.com/banshee-data/tmsnav/internal/protocol"
	"github.com/banshee-data/tmsnav/internal/security"
)

// PlanOptions holds flags shared by the offline planning commands.
type PlanOptions struct {
	*RootOptions
	Scene       SceneOptions
	Landmarks   landmarkInput
	Planning    string
	Policy      string
	PlanOnBrain bool
	Commands    string
}

func (o *PlanOptions) addFlags(cmd *cobra.Command) {
	o.Scene.addFlags(cmd)
	o.Landmarks.addFlags(cmd)
	cmd.Flags().StringVar(&o.Planning, "planning", "", "planning config (JSON); built-in defaults when empty")
	cmd.Flags().StringVar(&o.Policy, "policy", "", "tool rotation policy (skin|skinclosest|cortex); overrides the config")
	cmd.Flags().BoolVar(&o.PlanOnBrain, "plan-on-brain", false, "anchor the plan on the cortex")
}

// poseOpcodes resolves the target pose opcodes from the command config.
func (o *PlanOptions) poseOpcodes() (protocol.PoseOpcodes, error) {
	ops := protocol.PoseOpcodes{Orientation: navsvc.CmdPoseOrientation, Translation: navsvc.CmdPoseTranslation}
	if o.Commands == "" {
		return ops, nil
	}
	cs, err := config.LoadCommandSet(o.Commands)
	if err != nil {
		return ops, WrapExitError(ExitCommandError, "failed to load command config", err)
	}
	if err := cs.Require(config.GroupMedImg, ops.Orientation, ops.Translation); err != nil {
		return ops, WrapExitError(ExitCommandError, "invalid command config", err)
	}
	group, _ := cs.Group(config.GroupMedImg)
	return protocol.PoseOpcodes{Orientation: group[ops.Orientation], Translation: group[ops.Translation]}, nil
}

// planner builds a planner over the stand-in head and plans from the
// landmarks.
func (o *PlanOptions) planner() (*plan.Planner, *config.PlanningConfig, error) {
	pc := config.DefaultPlanningConfig()
	if o.Planning != "" {
		var err error
		if pc, err = config.LoadPlanningConfig(o.Planning); err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to load planning config", err)
		}
	}
	if err := pc.Validate(); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid planning config", err)
	}
	skin, brain, err := o.Scene.Build()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid head model", err)
	}
	pts, err := o.Landmarks.load()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to read landmarks", err)
	}

	opts := pc.PlannerOptions()
	if o.Policy != "" {
		if opts.Policy, err = plan.ParsePolicy(o.Policy); err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "invalid policy", err)
		}
	}
	opts.PlanOnBrain = opts.PlanOnBrain || o.PlanOnBrain

	pl := plan.NewPlanner(skin, brain, opts)
	if _, err := pl.Plan(pts); err != nil {
		return nil, nil, WrapExitError(ExitFailure, "planning failed", err)
	}
	return pl, pc, nil
}

// PlanResult is the output of the plan command.
type PlanResult struct {
	Plan     navsvc.PlanView `json:"plan"`
	Commands []string        `json:"commands"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a coil pose from landmarks",
		Long: `Plan the coil pose for a set of 2 to 4 landmarks against the stand-in head
and print the plan with the target pose commands the image module would
receive.

Examples:
  tmsnav plan --landmarks "0,0,80;10,0,79.4;0,10,79.4;-10,0,79.4"
  tmsnav plan --landmarks-file digitized.yaml --policy cortex --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := opts.poseOpcodes()
			if err != nil {
				return err
			}
			pl, _, err := opts.planner()
			if err != nil {
				return err
			}
			target, _ := pl.Target()
			res := PlanResult{Plan: navsvc.NewPlanView(pl.Snapshot())}
			for _, c := range protocol.PoseCommands(ops, target) {
				res.Commands = append(res.Commands, c.String())
			}
			return opts.emit(cmd, res, strings.Join(res.Commands, "\n"))
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Commands, "commands", "", "command opcode config; command names are sent as opcodes when empty")
	return cmd
}

// GridOptions holds flags for the grid command.
type GridOptions struct {
	PlanOptions
	Count     int
	SpacingMm float64
	PlotDir   string
}

// NewGridCommand creates the grid command.
func NewGridCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GridOptions{PlanOptions: PlanOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Plan a spiral grid of waypoints around a planned pose",
		Long: `Plan a pose from landmarks, then lay a spiral grid of waypoints around it,
each re-projected onto the anchor surface. --plot writes a PNG of the grid.

Examples:
  tmsnav grid --landmarks "0,0,80;10,0,79.4;0,10,79.4" --count 25 --spacing 2
  tmsnav grid --landmarks-file digitized.yaml --plot ./plots`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, pc, err := opts.planner()
			if err != nil {
				return err
			}
			count, spacing := opts.Count, opts.SpacingMm
			if count == 0 {
				count = pc.GetGridCount()
			}
			if spacing == 0 {
				spacing = pc.GetGridSpacingMm()
			}
			g, err := pl.PlanGrid(count, spacing)
			if err != nil {
				return WrapExitError(ExitFailure, "grid planning failed", err)
			}

			if opts.PlotDir != "" {
				path := filepath.Join(opts.PlotDir, security.SanitizeFilename("grid_"+g.ID.String())+".png")
				if err := security.ValidateOutputPath(path); err != nil {
					return WrapExitError(ExitCommandError, "invalid plot directory", err)
				}
				if err := monitoring.PlotGridPlan(g, path); err != nil {
					return WrapExitError(ExitCommandError, "failed to plot grid", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
			}

			view := navsvc.NewPlanView(pl.Snapshot()).Grid
			var b strings.Builder
			fmt.Fprintf(&b, "grid %s: %d waypoints, %.2f mm", view.ID, len(view.Waypoints), view.SpacingMm)
			for i, w := range view.Waypoints {
				fmt.Fprintf(&b, "\n%02d  %9.3f %9.3f %9.3f", i, w.Origin[0], w.Origin[1], w.Origin[2])
			}
			return opts.emit(cmd, view, b.String())
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().IntVar(&opts.Count, "count", 0, "number of waypoints including the base; config default when 0")
	cmd.Flags().Float64Var(&opts.SpacingMm, "spacing", 0, "waypoint spacing (mm); config default when 0")
	cmd.Flags().StringVar(&opts.PlotDir, "plot", "", "directory for a PNG of the grid")
	return cmd
}
