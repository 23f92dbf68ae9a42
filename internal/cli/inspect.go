package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/telemetry-copier/internal/copier"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <csv>...",
		Short: "Describe CSV files and how they would be converted",
		Long: `Parse CSV files and report their columns, size, row count, and whether
they would be downsampled with the current configuration.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args, cmd)
		},
	}

	return cmd
}

type inspectReports []*copier.Report

func (r inspectReports) String() string {
	var b strings.Builder
	for _, rep := range r {
		cols := make([]string, len(rep.Columns))
		for i, c := range rep.Columns {
			cols[i] = fmt.Sprintf("%s (%s)", c, rep.Kinds[i])
		}
		fmt.Fprintf(&b, "%s\n", rep.Path)
		fmt.Fprintf(&b, "  size:       %.2f MB\n", rep.SizeMB)
		fmt.Fprintf(&b, "  rows:       %d\n", rep.Rows)
		fmt.Fprintf(&b, "  columns:    %s\n", strings.Join(cols, ", "))
		fmt.Fprintf(&b, "  telemetry:  %s\n", yesNo(rep.Telemetry))
		if rep.SpeedColumn != "" {
			fmt.Fprintf(&b, "  speed:      %s\n", rep.SpeedColumn)
		}
		if rep.WouldDownsample {
			fmt.Fprintf(&b, "  downsample: yes (~%d rows)\n", rep.EstimatedRows)
		} else {
			fmt.Fprintf(&b, "  downsample: no\n")
		}
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func runInspect(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer setupLogging(cfg, cmd).Close()

	converter := copier.NewConverter(
		copier.NewClassifier(cfg.TelemetryKeywords),
		cfg.DownsampleRate,
		cfg.ChunkRows,
		cfg.SizeThresholdBytes(),
	)

	var reports inspectReports
	var failures []FailureSummary
	for _, path := range paths {
		rep, err := converter.Inspect(path)
		if err != nil {
			failures = append(failures, FailureSummary{File: path, Stage: "parse", Error: err.Error()})
			continue
		}
		reports = append(reports, rep)
	}

	if len(reports) > 0 {
		if err := formatter.Success(reports); err != nil {
			return err
		}
	}
	if len(failures) > 0 {
		msg := fmt.Sprintf("%d of %d files could not be inspected", len(failures), len(paths))
		formatter.Error(ErrCodeInspect, msg, failures)
		return NewExitError(ExitFailure, msg)
	}
	return nil
}
