package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAllCommand creates the all command.
func NewAllCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all [archive...]",
		Short: "Convert every track archive",
		Long: `Convert several track archives in order.

Archives default to the "archives" list of the config file. An archive that
cannot be extracted is reported and the batch moves on to the next one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runAll(opts *RootOptions, archives []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	rt, err := newRuntime(ctx, opts, cmd)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer rt.Close()

	if len(archives) == 0 {
		archives = rt.cfg.Archives
	}
	if len(archives) == 0 {
		err := NewExitError(ExitCommandError, "no archives given and none configured")
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}

	formatter.VerboseLog("Converting %d archives into %s", len(archives), rt.cfg.OutputRoot)

	run, err := rt.copier.ProcessAll(ctx, archives)
	if outErr := formatter.Success(newRunSummary(run, opts.Verbose)); outErr != nil {
		return outErr
	}
	if err != nil {
		formatter.Error(ErrCodeCancelled, "interrupted", nil)
		return WrapExitError(ExitFailure, "interrupted", err)
	}
	if run.Failed() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d archives failed, processed %d/%d files",
			len(run.ArchiveFailures), run.Processed(), run.Total()))
	}
	return nil
}
