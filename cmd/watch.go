package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaos-io/bgstrip/logger"
	"github.com/chaos-io/bgstrip/schedule"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run on a schedule or when the input directory changes",
	Long: `Run a batch repeatedly until interrupted.

With --schedule (a cron expression or a descriptor such as "@every 10m")
batches start on the schedule. Without it, a batch starts once the input
directory has been quiet for --debounce after a change.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(appConfig)
		if err != nil {
			return err
		}

		log := logger.ComponentLogger("watch")
		run := func(ctx context.Context) {
			if err := runOnce(ctx, p, cmd); err != nil {
				log.Errorw("batch failed", logger.FieldError, err)
			}
		}

		var trigger schedule.Trigger
		if spec := appConfig.Watch.Schedule; spec != "" {
			trigger, err = schedule.NewCron(spec, run, log)
		} else {
			trigger, err = schedule.NewDirWatcher(appConfig.Input.Dir, appConfig.Watch.Debounce, run, log)
		}
		if err != nil {
			return err
		}
		return trigger.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().String("schedule", "", "cron expression; watch the input directory when empty")
	watchCmd.Flags().Duration("debounce", 0, "quiet period after a change before a batch starts (default 2s)")
}
