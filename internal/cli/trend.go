package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/kwharvest/internal/cluster"
	"github.com/ppiankov/kwharvest/internal/model"
	"github.com/ppiankov/kwharvest/internal/snapshot"
	"github.com/ppiankov/kwharvest/internal/store"
	"github.com/ppiankov/kwharvest/internal/trend"
)

var (
	trendRecent      string
	trendPrevious    string
	trendSeedLength  int
	trendTop         int
	trendFormat      string
	trendFalling     bool
	trendCluster     bool
	trendFromArchive bool
)

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Report keywords that climbed between two days",
	Long: `Trend joins the cleaned snapshots of two days on keyword and reports
the keywords whose rank improved (trend = previous rank - recent rank),
largest gain first. Keywords present on only one day are ignored.

Example:
  kwharvest trend --recent 2022-5-3 --previous 2022-5-2
  kwharvest trend --recent 2022-5-3 --previous 2022-4-26 --top 20 --format json
  kwharvest trend --recent 2022-5-3 --previous 2022-5-2 --cluster`,
	RunE: runTrend,
}

func init() {
	rootCmd.AddCommand(trendCmd)
	f := trendCmd.Flags()
	f.StringVar(&trendRecent, "recent", "", "recent day, YYYY-M-D (default: today)")
	f.StringVar(&trendPrevious, "previous", "", "previous day, YYYY-M-D (default: day before recent, or the latest earlier archived day with --from-archive)")
	f.IntVar(&trendSeedLength, "seed-length", 0, "seed length to compare (default: trend.seed_length)")
	f.IntVar(&trendTop, "top", 0, "rows to report (default: trend.top)")
	f.StringVar(&trendFormat, "format", "csv", "output format (csv, json, yaml)")
	f.BoolVar(&trendFalling, "falling", false, "report keywords that lost rank instead")
	f.BoolVar(&trendCluster, "cluster", false, "group the reported keywords with the cluster provider")
	f.BoolVar(&trendFromArchive, "from-archive", false, "read snapshots from the SQLite archive instead of raw dumps")
}

// trendReport is the json/yaml shape of the report
type trendReport struct {
	Marketplace string           `json:"marketplace" yaml:"marketplace"`
	Locale      string           `json:"locale" yaml:"locale"`
	Recent      string           `json:"recent" yaml:"recent"`
	Previous    string           `json:"previous" yaml:"previous"`
	SeedLength  int              `json:"seed_length" yaml:"seed_length"`
	Rows        []model.TrendRow `json:"rows" yaml:"rows"`
	Clusters    []cluster.Group  `json:"clusters,omitempty" yaml:"clusters,omitempty"`
}

func runTrend(cmd *cobra.Command, args []string) error {
	if err := validateTrendFormat(trendFormat); err != nil {
		return err
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	recent, err := parseDay(trendRecent)
	if err != nil {
		return err
	}
	var previous time.Time
	if trendPrevious != "" {
		if previous, err = snapshot.ParseDate(trendPrevious); err != nil {
			return err
		}
	}

	n := cfg.Trend.SeedLength
	if trendSeedLength != 0 {
		n = trendSeedLength
	}
	if err := model.ValidateSeedLength(n); err != nil {
		return err
	}
	top := cfg.Trend.Top
	if trendTop > 0 {
		top = trendTop
	}

	ctx, cancel := signalContext()
	defer cancel()

	src, err := openSnapshotSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.close()

	if trendPrevious == "" {
		if previous, err = previousDay(ctx, src.days, recent); err != nil {
			return err
		}
	}

	recentSnap, err := src.load(ctx, recent, n)
	if err != nil {
		return fmt.Errorf("recent snapshot: %w", err)
	}
	previousSnap, err := src.load(ctx, previous, n)
	if err != nil {
		return fmt.Errorf("previous snapshot: %w", err)
	}

	rows := trend.Compute(recentSnap, previousSnap)
	if trendFalling {
		rows = trend.Filter(rows, func(r model.TrendRow) bool { return r.Trend < 0 })
		rows = trend.Rising(invert(rows), top)
		rows = invert(rows)
	} else {
		rows = trend.Rising(rows, top)
	}
	logger.Debug("trend computed",
		zap.Int("recent", len(recentSnap.Rows)),
		zap.Int("previous", len(previousSnap.Rows)),
		zap.Int("reported", len(rows)))

	report := trendReport{
		Marketplace: cfg.Marketplace,
		Locale:      cfg.Locale,
		Recent:      snapshot.FormatDate(recent),
		Previous:    snapshot.FormatDate(previous),
		SeedLength:  n,
		Rows:        rows,
	}

	if trendCluster {
		groups, err := clusterRows(ctx, cfg, rows)
		if err != nil {
			return err
		}
		report.Clusters = groups
	}

	return writeTrendReport(os.Stdout, trendFormat, report)
}

// invert flips the sign of every trend so falling rows sort like rising ones
func invert(rows []model.TrendRow) []model.TrendRow {
	out := make([]model.TrendRow, len(rows))
	for i, r := range rows {
		r.Trend = -r.Trend
		out[i] = r
	}
	return out
}

// snapshotSource reads cleaned snapshots from raw dumps or the archive.
// days is nil when the source cannot list what it holds.
type snapshotSource struct {
	load  func(ctx context.Context, day time.Time, seedLength int) (model.Snapshot, error)
	days  func(ctx context.Context) ([]time.Time, error)
	close func()
}

func openSnapshotSource(cfg *model.Config, logger *zap.Logger) (*snapshotSource, error) {
	if !trendFromArchive {
		layout, err := snapshot.NewLayout(cfg.DataRoot, cfg.Marketplace, cfg.Locale, logger)
		if err != nil {
			return nil, err
		}
		return &snapshotSource{
			load: func(_ context.Context, day time.Time, n int) (model.Snapshot, error) {
				return layout.LoadDay(day, n)
			},
			close: func() {},
		}, nil
	}

	if cfg.Archive.Path == "" {
		return nil, errors.New("archive.path is not set")
	}
	archive, err := store.Open(cfg.Archive.Path)
	if err != nil {
		return nil, err
	}
	return archiveSource(archive, cfg.Marketplace, cfg.Locale), nil
}

func archiveSource(archive *store.Archive, marketplace, locale string) *snapshotSource {
	return &snapshotSource{
		load: func(ctx context.Context, day time.Time, n int) (model.Snapshot, error) {
			return archive.Load(ctx, marketplace, locale, day, n)
		},
		days: func(ctx context.Context) ([]time.Time, error) {
			return archive.Days(ctx, marketplace, locale)
		},
		close: func() { _ = archive.Close() },
	}
}

// previousDay picks the latest listed day before recent, falling back to
// the calendar day before when nothing earlier is known
func previousDay(ctx context.Context, days func(context.Context) ([]time.Time, error), recent time.Time) (time.Time, error) {
	fallback := recent.AddDate(0, 0, -1)
	if days == nil {
		return fallback, nil
	}
	listed, err := days(ctx)
	if err != nil {
		return time.Time{}, err
	}
	// listed is oldest first
	for i := len(listed) - 1; i >= 0; i-- {
		if listed[i].Before(recent) {
			return listed[i], nil
		}
	}
	return fallback, nil
}

func validateTrendFormat(format string) error {
	switch format {
	case "csv", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown format %q (want csv, json or yaml)", format)
	}
}

func clusterRows(ctx context.Context, cfg *model.Config, rows []model.TrendRow) ([]cluster.Group, error) {
	c, err := cluster.New(cluster.Config{
		Provider: cfg.Cluster.Provider,
		Model:    cfg.Cluster.Model,
		APIKey:   cfg.Cluster.APIKey,
		BaseURL:  cfg.Cluster.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("--cluster needs cluster.provider (openai, anthropic, ollama)")
	}

	keywords := make([]string, len(rows))
	for i, r := range rows {
		keywords[i] = r.Keyword
	}
	fmt.Fprintf(os.Stderr, "Clustering %d keywords with %s...\n", len(keywords), c.Name())
	return c.Cluster(ctx, keywords, cfg.Cluster.Clusters)
}

func writeTrendReport(w io.Writer, format string, report trendReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(report)
	case "csv":
		cw := csv.NewWriter(w)
		header := []string{"keyword", "rank_recent", "rank_previous", "trend"}
		if len(report.Clusters) > 0 {
			header = append(header, "cluster")
		}
		_ = cw.Write(header)

		labels := make(map[string]string)
		for _, g := range report.Clusters {
			for _, kw := range g.Keywords {
				labels[kw] = g.Label
			}
		}
		for _, r := range report.Rows {
			rec := []string{r.Keyword, strconv.Itoa(r.RecentRank), strconv.Itoa(r.PreviousRank), strconv.Itoa(r.Trend)}
			if len(report.Clusters) > 0 {
				rec = append(rec, labels[r.Keyword])
			}
			_ = cw.Write(rec)
		}
		cw.Flush()
		return cw.Error()
	default:
		return validateTrendFormat(format)
	}
}
