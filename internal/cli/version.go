package cli

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/tmsnav/internal/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			return rootOpts.emit(cmd, info, info.String())
		},
	}
}
