package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTrackCommand creates the track command.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track <archive>",
		Short: "Convert a single track archive",
		Long: `Convert every CSV file in one track archive.

The archive may be a local path or a bucket URL (s3://, gs://, file://).
Outputs are written to <output_root>/<track>/<file>.json where <track> is the
archive name without its extension.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runTrack(opts *RootOptions, archive string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	rt, err := newRuntime(ctx, opts, cmd)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer rt.Close()

	formatter.VerboseLog("Converting %s into %s", archive, rt.cfg.OutputRoot)

	res, err := rt.copier.ProcessSingle(ctx, archive)
	if err != nil {
		if ctx.Err() != nil {
			if res != nil {
				formatter.Success(newTrackSummary(res, opts.Verbose))
			}
			formatter.Error(ErrCodeCancelled, "interrupted", nil)
			return WrapExitError(ExitFailure, "interrupted", err)
		}
		formatter.Error(ErrCodeExtraction, err.Error(), nil)
		return WrapExitError(ExitCommandError, "extract archive", err)
	}

	if err := formatter.Success(newTrackSummary(res, opts.Verbose)); err != nil {
		return err
	}
	if n := res.Failed(); n > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d files failed", n, res.Total))
	}
	return nil
}
