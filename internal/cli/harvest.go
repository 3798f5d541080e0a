package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/kwharvest/internal/harvest"
	"github.com/ppiankov/kwharvest/internal/metrics"
	"github.com/ppiankov/kwharvest/internal/pipeline"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Query the suggestion engines for every seed and write today's raw dumps",
	Long: `Harvest reads the seed files, rotates the proxy identity before each
seed, queries each configured engine and writes one raw dump per engine
and seed length under <data-root>/<date>/.

Seeds that cannot be served get a sentinel row instead of suggestions:
  rank 10*(n+1)+0  engine returned nothing
  rank 10*(n+1)+1  network error
  rank 10*(n+1)+2  proxy unavailable

Example:
  kwharvest harvest
  kwharvest harvest --engines amazon,ebay,google --lengths 2,3 --workers 2
  kwharvest harvest --no-proxy --robots`,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	f := harvestCmd.Flags()
	f.StringSlice("engines", nil, "engines to query (amazon, ebay, google)")
	f.IntSlice("lengths", nil, "seed lengths to harvest (2, 3, 4)")
	f.Int("workers", 0, "parallel workers, one proxy endpoint each")
	f.Bool("no-proxy", false, "connect directly instead of through the proxy daemon")
	f.Bool("robots", false, "skip engines whose robots.txt disallows the endpoint")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile")

	_ = viper.BindPFlag("harvest.engines", f.Lookup("engines"))
	_ = viper.BindPFlag("harvest.seed_lengths", f.Lookup("lengths"))
	_ = viper.BindPFlag("harvest.workers", f.Lookup("workers"))
	_ = viper.BindPFlag("harvest.respect_robots", f.Lookup("robots"))
	_ = viper.BindPFlag("metrics.textfile_path", f.Lookup("metrics-file"))
}

func runHarvest(cmd *cobra.Command, args []string) error {
	noProxy, _ := cmd.Flags().GetBool("no-proxy")
	if noProxy {
		viper.Set("proxy.enabled", false)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	p := pipeline.NewPipeline(cfg, logger, metrics.New("kwharvest"))
	summaries, err := p.Harvest(ctx)
	for _, sum := range summaries {
		printHarvestSummary(sum)
	}
	if err != nil {
		return err
	}
	return p.WriteMetrics()
}

func printHarvestSummary(sum *harvest.Summary) {
	fmt.Fprintf(os.Stderr, "Harvest %s (%d-letter seeds): %d seeds in %v\n",
		sum.RunID, sum.SeedLength, sum.Seeds, sum.Elapsed.Round(time.Second))
	if len(sum.Skipped) > 0 {
		fmt.Fprintf(os.Stderr, "  skipped by robots.txt: %v\n", sum.Skipped)
	}
	fmt.Fprintf(os.Stderr, "  empty: %d  failed: %d  no proxy: %d\n", sum.Empty, sum.Failed, sum.NoProxy)

	engines := make([]string, 0, len(sum.Files))
	for e := range sum.Files {
		engines = append(engines, e)
	}
	sort.Strings(engines)
	for _, e := range engines {
		fmt.Fprintf(os.Stderr, "  %-7s %5d keywords  %s\n", e, sum.Keywords[e], sum.Files[e])
	}
}
