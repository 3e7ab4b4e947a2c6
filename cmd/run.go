package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/pipeline"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the input directory once",
	Long: `Process every image in the input directory once and print a report.

Rejected and failed files are listed in the report and do not change the
exit status. Misconfiguration, such as a missing input directory or an
unwritable output directory, exits with status 1 before any file is read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(appConfig)
		if err != nil {
			return err
		}
		return runOnce(ctx, p, cmd)
	},
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, cmd *cobra.Command) error {
	report, err := p.Run(ctx)
	if report != nil {
		if printErr := renderReport(cmd, report); printErr != nil {
			return printErr
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func renderReport(cmd *cobra.Command, report *pipeline.Report) error {
	if jsonOutput {
		return printReportJSON(cmd.OutOrStdout(), report)
	}
	return printReport(cmd.OutOrStdout(), report)
}
