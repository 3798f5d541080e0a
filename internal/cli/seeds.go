package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/kwharvest/internal/model"
	"github.com/ppiankov/kwharvest/internal/seed"
)

var (
	seedsNouns  string
	seedsHeader bool
)

var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Generate 2-, 3- and 4-letter seed files from a noun list",
	Long: `Seeds expands the locale alphabet into letter combinations and keeps
only those that prefix at least one noun of the list.

Example:
  kwharvest seeds --nouns data/nouns_en.csv --header
  kwharvest seeds --nouns data/nouns_de.csv --locale de`,
	RunE: runSeeds,
}

func init() {
	rootCmd.AddCommand(seedsCmd)
	seedsCmd.Flags().StringVar(&seedsNouns, "nouns", "", "noun CSV (first column is used)")
	seedsCmd.Flags().BoolVar(&seedsHeader, "header", false, "skip the first CSV record")
	_ = seedsCmd.MarkFlagRequired("nouns")
}

func runSeeds(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	loc, err := model.LookupLocale(cfg.Locale)
	if err != nil {
		return err
	}

	nouns, err := seed.LoadNounsFile(seedsNouns, seedsHeader)
	if err != nil {
		return err
	}
	logger.Debug("nouns loaded", zap.Int("count", len(nouns)), zap.String("file", seedsNouns))

	res := seed.Expand(nouns, loc.Alphabet)
	paths, err := seed.Write(cfg.Harvest.SeedDir, loc.Code, res)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Nouns: %d\n", len(nouns))
	fmt.Fprintf(os.Stderr, "2-letter seeds: %d (%d with noun matches)\n", len(res.Seeds2), len(res.Filtered2))
	fmt.Fprintf(os.Stderr, "3-letter seeds: %d\n", len(res.Seeds3))
	fmt.Fprintf(os.Stderr, "4-letter seeds: %d\n", len(res.Seeds4))
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
