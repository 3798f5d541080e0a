package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/kwharvest/internal/metrics"
	"github.com/ppiankov/kwharvest/internal/pipeline"
)

var scheduleOnce bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run harvest and accumulate on a cron schedule",
	Long: `Schedule stays in the foreground and runs the daily pipeline every time
the cron spec fires: harvest, then accumulate for the harvested
marketplace, then archive when archive.path is set. Runs never overlap;
a run still busy when the next one is due causes that one to be skipped.

Example:
  kwharvest schedule                      (uses schedule.spec, default "0 3 * * *")
  kwharvest schedule --spec "@every 12h"
  kwharvest schedule --once               (run the pipeline now and exit)`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().String("spec", "", "cron spec (5 fields or @descriptor)")
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "run the pipeline once and exit")
	_ = viper.BindPFlag("schedule.spec", scheduleCmd.Flags().Lookup("spec"))
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	p := pipeline.NewPipeline(cfg, logger, metrics.New("kwharvest"))
	if scheduleOnce {
		return runPipeline(ctx, p)
	}

	c, err := newScheduler(cfg.Schedule.Spec, logger, func() {
		if err := runPipeline(ctx, p); err != nil {
			logger.Error("scheduled run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	for _, e := range c.Entries() {
		fmt.Fprintf(os.Stderr, "Next run: %s\n", e.Next.Format(time.RFC1123))
	}

	<-ctx.Done()
	fmt.Fprintf(os.Stderr, "Stopping scheduler, waiting for a running pipeline...\n")
	<-c.Stop().Done()
	return nil
}

// newScheduler registers job under spec; overlapping runs are skipped
func newScheduler(spec string, logger *zap.Logger, job func()) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return c, nil
}

// runPipeline runs one daily pipeline and reports it on stderr
func runPipeline(ctx context.Context, p *pipeline.Pipeline) error {
	res, err := p.Run(ctx)
	if res != nil {
		for _, sum := range res.Harvests {
			printHarvestSummary(sum)
		}
		if res.Ledger != nil {
			fmt.Fprintf(os.Stderr, "Ledger %s: %d appended\n", res.Ledger.LedgerPath, len(res.Ledger.Appended))
		}
		if res.Archived > 0 {
			fmt.Fprintf(os.Stderr, "Archived %d snapshots\n", res.Archived)
		}
	}
	if err != nil {
		return err
	}
	return p.WriteMetrics()
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
