package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/kwharvest/internal/suggest"
	"github.com/ppiankov/kwharvest/internal/validate"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the suggestion endpoints and proxy daemons answer",
	Long: `Check tries the endpoint of every configured engine and, when the
proxy is enabled, the control and SOCKS port of every proxy endpoint.
Transient failures (5xx, 429, timeouts) are retried with backoff.

Exits non-zero when anything is unreachable, so it can gate a cron job:
  kwharvest check && kwharvest harvest`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	client := suggest.NewClient(suggest.Options{UserAgent: cfg.HTTP.UserAgent})
	targets := validate.Targets(cfg, client.EndpointURL)
	results := validate.NewValidator(cfg.HTTP.Timeout, len(targets), client.UserAgent()).Validate(ctx, targets)

	for _, r := range results {
		status := "ok"
		switch {
		case r.RateLimited:
			status = "rate limited"
		case !r.Reachable:
			status = "FAIL"
		}
		fmt.Printf("%-18s %-13s %6v  %s\n", r.Name, status, r.Latency.Round(time.Millisecond), r.URL)
		if r.Error != "" {
			logger.Debug("check failed", zap.String("target", r.Name), zap.Int("attempts", r.Attempts), zap.String("error", r.Error))
		}
	}

	if failed := validate.Unreachable(results); len(failed) > 0 {
		for _, r := range failed {
			if r.Error != "" {
				fmt.Fprintf(os.Stderr, "%s: %s\n", r.Name, r.Error)
			}
		}
		return fmt.Errorf("%d of %d targets unreachable", len(failed), len(results))
	}
	return nil
}
