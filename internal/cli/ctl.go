package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tmsnav/internal/httputil"
	"github.com/banshee-data/tmsnav/internal/navsvc"
)

// CtlOptions holds flags for the ctl commands.
type CtlOptions struct {
	*RootOptions
	Addr string

	// client replaces the HTTP transport in tests.
	client httputil.HTTPClient
}

func (o *CtlOptions) admin() *httputil.AdminClient {
	return httputil.NewAdminClient(o.Addr, o.client)
}

// NewCtlCommand creates the ctl command and its subcommands.
func NewCtlCommand(rootOpts *RootOptions) *cobra.Command {
	return newCtlCommand(&CtlOptions{RootOptions: rootOpts})
}

func newCtlCommand(opts *CtlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running tmsnav serve through its admin routes",
		Long: `Send module actions to a running "tmsnav serve" and print the result.

Examples:
  tmsnav ctl status
  tmsnav ctl medimg plan landmarks="0,0,80;10,0,79.4;0,10,79.4"
  tmsnav ctl medimg adjust dt=1,0,0 dr=0,0,5
  tmsnav ctl targetviz start
  tmsnav ctl robot jog farther --value 2
  tmsnav ctl robot jog yaw --value -0.5
  tmsnav ctl robot cmd ROB_CONN_ON`,
	}
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "http://127.0.0.1:8080", "base URL of the running service")

	cmd.AddCommand(newCtlStatusCommand(opts))
	cmd.AddCommand(newCtlMedImgCommand(opts))
	cmd.AddCommand(newCtlTargetVizCommand(opts))
	cmd.AddCommand(newCtlRobotCommand(opts))
	return cmd
}

func newCtlStatusCommand(opts *CtlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show module status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st navsvc.Status
			if err := opts.admin().Get(cmd.Context(), "tmsnav", &st); err != nil {
				return WrapExitError(ExitCommandError, "status failed", err)
			}
			return opts.emit(cmd, st, statusText(st))
		},
	}
}

func statusText(st navsvc.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "medimg     %-8s sent %d, timeouts %d", st.MedImg.Channel.State, st.MedImg.Channel.Stats.Sent, st.MedImg.Channel.Stats.Timeouts)
	if st.MedImg.Poller != nil {
		fmt.Fprintf(&b, ", tre %s", st.MedImg.Poller.State)
	}
	fmt.Fprintf(&b, "\ntargetviz  %-8s sent %d, timeouts %d", st.TargetViz.Channel.State, st.TargetViz.Channel.Stats.Sent, st.TargetViz.Channel.Stats.Timeouts)
	if st.TargetViz.Poller != nil {
		fmt.Fprintf(&b, ", poses %s", st.TargetViz.Poller.State)
	}
	fmt.Fprintf(&b, "\nrobot      %-8s sent %d, timeouts %d", st.Robot.Channel.State, st.Robot.Channel.Stats.Sent, st.Robot.Channel.Stats.Timeouts)
	fmt.Fprintf(&b, "\npolicy %s, plan on brain %t", st.MedImg.Plan.Policy, st.MedImg.Plan.PlanOnBrain)
	if t := st.MedImg.Plan.Target; t != nil {
		fmt.Fprintf(&b, "\ntarget %s", poseText(t))
	}
	if st.MedImg.Residual != "" {
		fmt.Fprintf(&b, "\nregistration residual %s mm", st.MedImg.Residual)
	}
	return b.String()
}

func poseText(p *navsvc.PoseView) string {
	return fmt.Sprintf("origin (%.3f, %.3f, %.3f) mm, quaternion (%.6f, %.6f, %.6f, %.6f)",
		p.Origin[0], p.Origin[1], p.Origin[2], p.Quaternion[0], p.Quaternion[1], p.Quaternion[2], p.Quaternion[3])
}

func resultText(res navsvc.ActionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ok %s", res.Action)
	if res.Pose != nil {
		fmt.Fprintf(&b, "\npose %s", poseText(res.Pose))
	}
	if res.Index != nil {
		fmt.Fprintf(&b, "\nwaypoint %d", *res.Index)
	}
	if res.Grid != nil {
		fmt.Fprintf(&b, "\ngrid %s: %d waypoints, %.2f mm", res.Grid.ID, len(res.Grid.Waypoints), res.Grid.SpacingMm)
	}
	if res.Residual != "" {
		fmt.Fprintf(&b, "\nresidual %s mm", res.Residual)
	}
	if res.Reply != "" {
		fmt.Fprintf(&b, "\nreply %s", res.Reply)
	}
	return b.String()
}

// parseKeyValues turns "key=value" arguments into form values.
func parseKeyValues(args []string) (url.Values, error) {
	form := url.Values{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", a)
		}
		form.Add(k, v)
	}
	return form, nil
}

func (o *CtlOptions) post(cmd *cobra.Command, route string, form url.Values) error {
	var res navsvc.ActionResult
	if err := o.admin().Post(cmd.Context(), route, form, &res); err != nil {
		return WrapExitError(ExitFailure, route+" failed", err)
	}
	return o.emit(cmd, res, resultText(res))
}

func newCtlMedImgCommand(opts *CtlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "medimg ACTION [key=value ...]",
		Short: "Run an image module action",
		Long: `Run an image module action. Actions and their arguments:

  push-landmarks landmarks=x,y,z;...    plan landmarks=x,y,z;...
  digitize index=N [with_previous=true] command name=NAME
  register [use_previous=true]          register-icp mesh=PATH
  policy policy=skin|skinclosest|cortex plan-on-brain on=true|false
  adjust [dt=x,y,z] [dr=x,y,z]          randomize
  grid [count=N] [spacing=MM]           grid-next
  tre-start                             tre-stop`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := parseKeyValues(args[1:])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			form.Set("action", args[0])
			return opts.post(cmd, "medimg-action", form)
		},
	}
}

func newCtlTargetVizCommand(opts *CtlOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "targetviz start|stop",
		Short:     "Start or stop target visualization",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.post(cmd, "targetviz-action", url.Values{"action": {args[0]}})
		},
	}
}

func newCtlRobotCommand(opts *CtlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "robot",
		Short: "Jog the robot or send a robot command",
	}

	var value float64
	jog := &cobra.Command{
		Use:   "jog DIRECTION",
		Short: "Jog one step: left, right, forward, backward, closer, farther, pitch, roll or yaw",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := url.Values{"direction": {args[0]}}
			if value != 0 {
				form.Set("value", fmt.Sprint(value))
			}
			return opts.post(cmd, "robot-jog", form)
		},
	}
	jog.Flags().Float64Var(&value, "value", 0, "step size (mm or deg); configured step when 0")

	send := &cobra.Command{
		Use:   "cmd NAME",
		Short: "Send a named robot command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.post(cmd, "robot-command", url.Values{"name": {args[0]}})
		},
	}

	cmd.AddCommand(jog, send)
	return cmd
}
