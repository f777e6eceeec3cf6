// Package cli implements the tmsnav command line: the navigation service,
// offline planning and registration tools, and a client for the running
// service's admin routes.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tmsnav/internal/monitoring"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tmsnav CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tmsnav",
		Short: "TMS navigation planning core",
		Long:  "Coil pose planning, registration checks and module control for TMS navigation.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !opts.Verbose && cmd.Name() != "serve" {
				monitoring.SetLogger(nil)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewGridCommand(opts))
	cmd.AddCommand(NewFRECommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewCtlCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}
