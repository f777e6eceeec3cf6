package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tmsnav/internal/registration"
)

// FREOptions holds flags for the fre command.
type FREOptions struct {
	*RootOptions
	Digitized string
	Result    string
	Planned   landmarkInput
	Surface   bool
	Scene     SceneOptions
	MaxRMSMm  float64
}

// FREResult is the output of the fre command.
type FREResult struct {
	Mode     string               `json:"mode"`
	ErrorsMm []float64            `json:"errors_mm"`
	Summary  registration.Summary `json:"summary"`
	Passed   bool                 `json:"passed"`
	// Transform is the registration, row-major 4x4, translation in mm.
	Transform [16]float64 `json:"registration_transform"`
}

// NewFRECommand creates the fre command.
func NewFRECommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FREOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fre",
		Short: "Compute registration error from result logs",
		Long: `Align digitized landmarks with a registration result and report the
per-landmark distance to the planned landmarks. With --surface the digitized
points are treated as an ICP surface trace and measured against the skin.

Exit codes:
  0 - RMS error within --max-rms (or no limit given)
  1 - RMS error above --max-rms
  2 - Command error (unreadable logs, count mismatch, etc.)

Examples:
  tmsnav fre --digitized digitized.yaml --result registration.yaml --planned-file planned.yaml
  tmsnav fre --digitized trace.yaml --result icp.yaml --surface --max-rms 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFRE(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Digitized, "digitized", "", "digitized landmark log (required)")
	_ = cmd.MarkFlagRequired("digitized")
	cmd.Flags().StringVar(&opts.Result, "result", "", "registration result log (required)")
	_ = cmd.MarkFlagRequired("result")
	cmd.Flags().StringVar(&opts.Planned.File, "planned-file", "", "planned landmark log (YAML, metres)")
	cmd.Flags().StringVar(&opts.Planned.Inline, "planned", "", `planned landmarks in mm: "x,y,z;x,y,z;..."`)
	cmd.Flags().BoolVar(&opts.Surface, "surface", false, "measure against the skin surface instead of planned landmarks")
	cmd.Flags().Float64Var(&opts.MaxRMSMm, "max-rms", 0, "fail when the RMS error exceeds this (mm); 0 disables")
	opts.Scene.addFlags(cmd)

	return cmd
}

func runFRE(opts *FREOptions, cmd *cobra.Command) error {
	digitized, err := registration.LoadLandmarks(opts.Digitized)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read digitized landmarks", err)
	}
	result, err := registration.LoadResult(opts.Result)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read registration result", err)
	}

	res := FREResult{Mode: "landmark", Transform: result.Matrix()}
	if opts.Surface {
		res.Mode = "surface"
		skin, _, err := opts.Scene.Build()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid head model", err)
		}
		res.ErrorsMm, err = result.SurfaceErrors(digitized, skin)
		if err != nil {
			return WrapExitError(ExitCommandError, "surface error failed", err)
		}
	} else {
		planned, err := opts.Planned.load()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read planned landmarks", err)
		}
		res.ErrorsMm, err = result.Errors(digitized, planned)
		if err != nil {
			return WrapExitError(ExitCommandError, "registration error failed", err)
		}
	}
	res.Summary = registration.Summarize(res.ErrorsMm)
	res.Passed = opts.MaxRMSMm <= 0 || res.Summary.RMS <= opts.MaxRMSMm

	var b strings.Builder
	for i, e := range res.ErrorsMm {
		fmt.Fprintf(&b, "landmark %02d  %.3f mm\n", i, e)
	}
	b.WriteString(res.Summary.String())
	if err := opts.emit(cmd, res, b.String()); err != nil {
		return err
	}
	if !res.Passed {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("rms error %.3f mm exceeds %.3f mm", res.Summary.RMS, opts.MaxRMSMm)}
	}
	return nil
}
