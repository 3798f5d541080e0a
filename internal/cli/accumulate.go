package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/kwharvest/internal/metrics"
	"github.com/ppiankov/kwharvest/internal/pipeline"
	"github.com/ppiankov/kwharvest/internal/snapshot"
)

var accumulateDate string

var accumulateCmd = &cobra.Command{
	Use:   "accumulate",
	Short: "Append today's newly seen keywords to the half-month ledger",
	Long: `Accumulate compares the day's keywords (all seed lengths) with every
earlier day of its half-month bucket (1st-14th or 15th-end) and appends
the new ones, shortened to at most three words, to

  <data-root>/<bucket start>/googletrends/googletrends_keywords.csv

Running it twice for the same day appends nothing the second time.

Example:
  kwharvest accumulate
  kwharvest accumulate --date 2022-5-18 --cache
  kwharvest accumulate --stopwords my_stopwords.txt`,
	RunE: runAccumulate,
}

func init() {
	rootCmd.AddCommand(accumulateCmd)
	f := accumulateCmd.Flags()
	f.StringVar(&accumulateDate, "date", "", "day to record, YYYY-M-D (default: today)")
	f.Bool("cache", false, "cache earlier days' keyword lists on disk")
	f.String("stopwords", "", "stopword file replacing the built-in list of the locale")

	_ = viper.BindPFlag("ledger.cache", f.Lookup("cache"))
	_ = viper.BindPFlag("ledger.stopwords_file", f.Lookup("stopwords"))
}

func runAccumulate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	day, err := parseDay(accumulateDate)
	if err != nil {
		return err
	}

	p := pipeline.NewPipeline(cfg, logger, metrics.New("kwharvest"))
	res, err := p.Accumulate(day)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Bucket %s: %d history days", snapshot.FormatDate(res.Bucket), res.HistoryDays)
	if len(res.MissingDays) > 0 {
		fmt.Fprintf(os.Stderr, " (%d missing)", len(res.MissingDays))
	}
	fmt.Fprintf(os.Stderr, ", %d new keywords, %d appended\n", len(res.New), len(res.Appended))
	for _, kw := range res.Appended {
		fmt.Println(kw)
	}
	fmt.Fprintln(os.Stderr, res.LedgerPath)
	return p.WriteMetrics()
}
