package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/telemetry-copier/internal/copier"
)

// VersionInfo describes the build.
type VersionInfo struct {
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("telemetry-copier %s (%s)\n", v.Version, v.GitSHA)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newFormatter(rootOpts, cmd).Success(VersionInfo{
				Version: copier.Version,
				GitSHA:  copier.GitSHA,
			})
		},
	}
}
