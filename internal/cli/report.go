package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/chanwatch/chanwatch/internal/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Channel int64
	Output  string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a channel's meeting report",
		Long: `Render the meeting timeline of one voice channel as a standalone
HTML page.

Example:
  chanwatch report -c config.yaml --channel 1014131138124148818 -o standup.html`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Channel, "channel", 0, "channel id to report on (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "report.html", "output file")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	st, cfg, intervals, err := loadStore(opts.RootOptions, zapcore.WarnLevel)
	if err != nil {
		return err
	}

	rec := report.NewReconstructor(st, intervals.MeetingInterval, cfg.MeetingUserc)
	html := report.NewRenderer(st, rec).Render(opts.Channel)

	if err := os.WriteFile(opts.Output, html, 0o644); err != nil {
		return WrapExitError(ExitFailure, "failed to write report", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", opts.Output, len(html))
	return nil
}
