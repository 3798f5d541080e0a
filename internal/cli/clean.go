package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/kwharvest/internal/pipeline"
	"github.com/ppiankov/kwharvest/internal/snapshot"
)

var (
	cleanDate       string
	cleanSeedLength int
	cleanArchive    bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean one day's raw dumps and print or archive the result",
	Long: `Clean drops duplicate lines, malformed rows, sentinel ranks and
single-word keywords, keeping the last rank seen per keyword.

Without --archive the cleaned rows of one seed length are printed in raw
dump format. With --archive every seed length of the day is stored in the
SQLite archive (archive.path).

Example:
  kwharvest clean --date 2022-5-3 --seed-length 4
  kwharvest clean --date 2022-5-3 --archive --marketplace ebay`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringVar(&cleanDate, "date", "", "day to clean, YYYY-M-D (default: today)")
	cleanCmd.Flags().IntVar(&cleanSeedLength, "seed-length", 4, "seed length to print (2, 3, 4)")
	cleanCmd.Flags().BoolVar(&cleanArchive, "archive", false, "store all seed lengths in the SQLite archive")
	cleanCmd.Flags().String("archive-path", "", "SQLite archive file")
	_ = viper.BindPFlag("archive.path", cleanCmd.Flags().Lookup("archive-path"))
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	day, err := parseDay(cleanDate)
	if err != nil {
		return err
	}

	layout, err := snapshot.NewLayout(cfg.DataRoot, cfg.Marketplace, cfg.Locale, logger)
	if err != nil {
		return err
	}

	if !cleanArchive {
		snap, err := layout.LoadDay(day, cleanSeedLength)
		if err != nil {
			return err
		}
		for _, row := range snap.Rows {
			fmt.Println(snapshot.FormatRow(row))
		}
		fmt.Fprintf(os.Stderr, "%d keywords\n", len(snap.Rows))
		return nil
	}

	if cfg.Archive.Path == "" {
		return errors.New("archive.path is not set (use --archive-path or the config file)")
	}

	ctx, cancel := signalContext()
	defer cancel()

	n, err := pipeline.NewPipeline(cfg, logger, nil).Archive(ctx, day)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "archived %d snapshots of %s to %s\n", n, snapshot.FormatDate(day), cfg.Archive.Path)
	return nil
}

// parseDay parses a YYYY-M-D flag value; empty means today
func parseDay(s string) (time.Time, error) {
	if s == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	return snapshot.ParseDate(s)
}
