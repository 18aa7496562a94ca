package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsim/internal/feed"
	"github.com/roach88/feedsim/internal/scheduler"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Spec   string
	Mode   string
	RunNow bool
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run periodic simulation sweeps",
		Long: `Periodically reload the feed and simulate every post until interrupted.

The schedule is a cron expression or a descriptor such as "@every 5m".
It defaults to the schedule section of the config.

Examples:
  feedsim schedule --spec "@every 1m"
  feedsim schedule --spec "*/10 * * * *" --mode single --run-now`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Spec, "spec", "", "cron schedule (default from config)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "simulation mode, single or all (default from config)")
	cmd.Flags().BoolVar(&opts.RunNow, "run-now", false, "run one sweep before waiting for the schedule")

	return cmd
}

func runSchedule(opts *ScheduleOptions, cmd *cobra.Command) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	spec := firstNonEmpty(opts.Spec, cfg.Schedule.Spec)
	if spec == "" {
		return NewExitError(ExitCommandError, "no schedule: set --spec or schedule.spec")
	}
	mode, err := feed.ParseMode(firstNonEmpty(opts.Mode, cfg.Schedule.Mode))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}
	log := opts.log()

	eng, err := opts.newEngine()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	defer func() {
		eng.Stop()
		<-done
	}()

	sched := scheduler.New(eng, scheduler.WithLogger(log))
	if err := sched.AddSweep(spec, mode); err != nil {
		return WrapExitError(ExitCommandError, "invalid schedule", err)
	}

	if opts.RunNow {
		// A failed first sweep is logged by the scheduler; the schedule still runs.
		_ = sched.RunNow(scheduler.SweepName(mode))
	}

	sched.Start()
	fmt.Fprintf(cmd.OutOrStdout(), "sweeping (%s) on %q, press Ctrl+C to stop\n", mode, spec)

	<-ctx.Done()
	log.Info("shutting down scheduler")
	stopped := sched.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
	defer cancel()
	select {
	case <-stopped.Done():
	case <-waitCtx.Done():
		log.Warn("sweep still running at shutdown")
	}
	return nil
}
