// Package harvest drives one day's suggestion harvest: for every seed it
// rotates the egress identity, queries each engine and writes the ranked
// results to the dated raw dumps.
package harvest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/kwharvest/internal/metrics"
	"github.com/ppiankov/kwharvest/internal/model"
	"github.com/ppiankov/kwharvest/internal/proxy"
	"github.com/ppiankov/kwharvest/internal/snapshot"
	"github.com/ppiankov/kwharvest/internal/suggest"
	"github.com/ppiankov/kwharvest/internal/util"
	"github.com/ppiankov/kwharvest/internal/worker"
)

// Suggester looks up suggestions for one seed. *suggest.Client implements it.
type Suggester interface {
	LookupMarketplace(ctx context.Context, seed string, px proxy.Config) ([]string, error)
	LookupAuction(ctx context.Context, seed, geo string, px proxy.Config) ([]string, error)
	LookupSearchEngine(ctx context.Context, seed, language, country, searchContext string, px proxy.Config) ([]string, error)
	EndpointURL(engine string) string
}

// Options configures a Harvester
type Options struct {
	Root    string
	Locale  string
	Engines []string

	Geo      string
	Language string
	Country  string
	Context  string

	// Rotators holds one rotator per worker; its length is the worker count
	Rotators []proxy.Rotator
	Limiter  *worker.Limiter
	Robots   *util.RobotsChecker
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Harvester runs harvests. It is safe to reuse across seed lengths.
type Harvester struct {
	client Suggester
	opts   Options
	logger *zap.Logger
}

// New validates opts and creates a Harvester
func New(client Suggester, opts Options) (*Harvester, error) {
	if client == nil {
		return nil, errors.New("harvest: nil suggester")
	}
	if _, err := model.LookupLocale(opts.Locale); err != nil {
		return nil, err
	}
	if len(opts.Engines) == 0 {
		return nil, &model.ValidationError{Field: "engines", Value: "", Reason: "at least one engine is required"}
	}
	for _, e := range opts.Engines {
		if err := model.ValidateMarketplace(e); err != nil {
			return nil, err
		}
	}
	if len(opts.Rotators) == 0 {
		return nil, errors.New("harvest: at least one proxy rotator is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Harvester{client: client, opts: opts, logger: opts.Logger}, nil
}

// Summary describes one finished harvest of a seed length
type Summary struct {
	RunID      string
	Date       time.Time
	SeedLength int
	Seeds      int
	Files      map[string]string // engine -> raw dump path
	Keywords   map[string]int    // engine -> suggestion rows written
	Empty      int
	Failed     int
	NoProxy    int
	Skipped    []string // engines disallowed by robots.txt
	Elapsed    time.Duration
}

type seedJob struct {
	seq  int
	seed string
	h    *Harvester
	n    int
	engs []string
}

type seedResult struct {
	seq  int
	seed string
	rows map[string][]model.RankedKeywordRow
	err  error

	empty, failed, noProxy int
}

func (r *seedResult) Seq() int        { return r.seq }
func (r *seedResult) GetError() error { return r.err }

// Execute queries every engine for the seed, rotating the worker's
// identity before each lookup
func (j *seedJob) Execute(ctx context.Context, w int) worker.Result {
	h := j.h
	res := &seedResult{seq: j.seq, seed: j.seed, rows: make(map[string][]model.RankedKeywordRow, len(j.engs))}
	rotator := h.opts.Rotators[w%len(h.opts.Rotators)]

	for _, engine := range j.engs {
		px, err := rotator.Rotate(ctx)
		if h.opts.Metrics != nil {
			h.opts.Metrics.ObserveRotation(err)
		}
		if err != nil {
			if ctx.Err() != nil {
				res.err = ctx.Err()
				return res
			}
			h.logger.Warn("proxy unavailable, skipping lookup",
				zap.String("engine", engine),
				zap.String("seed", j.seed),
				zap.Int("worker", w),
				zap.Error(err))
			res.rows[engine] = sentinelRows(j.seed, j.n, model.SentinelNoProxy)
			res.noProxy++
			h.observe(engine, metrics.OutcomeProxyUnavailable, 0)
			continue
		}

		if h.opts.Limiter != nil {
			if err := h.opts.Limiter.Wait(ctx, h.client.EndpointURL(engine)); err != nil {
				res.err = err
				return res
			}
		}

		start := time.Now()
		keywords, err := h.lookup(ctx, engine, j.seed, px)
		elapsed := time.Since(start)

		switch {
		case err != nil && ctx.Err() != nil:
			res.err = ctx.Err()
			return res
		case err != nil:
			outcome := metrics.OutcomeDecodeError
			if suggest.IsNetworkError(err) {
				outcome = metrics.OutcomeNetworkError
			}
			h.logger.Warn("lookup failed",
				zap.String("engine", engine),
				zap.String("seed", j.seed),
				zap.Stringer("proxy", px),
				zap.Error(err))
			res.rows[engine] = sentinelRows(j.seed, j.n, model.SentinelNetwork)
			res.failed++
			h.observe(engine, outcome, elapsed)
		case len(keywords) == 0:
			res.rows[engine] = sentinelRows(j.seed, j.n, model.SentinelEmpty)
			res.empty++
			h.observe(engine, metrics.OutcomeEmpty, elapsed)
		default:
			rows := make([]model.RankedKeywordRow, len(keywords))
			for i, kw := range keywords {
				rows[i] = model.RankedKeywordRow{Keyword: kw, Rank: i + 1}
			}
			res.rows[engine] = rows
			h.observe(engine, metrics.OutcomeOK, elapsed)
		}
	}
	return res
}

func (h *Harvester) lookup(ctx context.Context, engine, seed string, px proxy.Config) ([]string, error) {
	switch engine {
	case model.EngineMarketplace:
		return h.client.LookupMarketplace(ctx, seed, px)
	case model.EngineAuction:
		return h.client.LookupAuction(ctx, seed, h.opts.Geo, px)
	case model.EngineSearchEngine:
		return h.client.LookupSearchEngine(ctx, seed, h.opts.Language, h.opts.Country, h.opts.Context, px)
	}
	return nil, fmt.Errorf("unknown engine %q", engine)
}

func (h *Harvester) observe(engine, outcome string, d time.Duration) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.ObserveLookup(engine, outcome, d)
	}
}

func sentinelRows(seed string, seedLength, offset int) []model.RankedKeywordRow {
	return []model.RankedKeywordRow{{Keyword: seed, Rank: model.SentinelRank(seedLength, offset)}}
}

// Run harvests every seed of one length and writes one raw dump per
// engine under date's directory. Rows keep seed order whatever the worker
// count. Nothing is
// written when ctx is cancelled mid-run.
func (h *Harvester) Run(ctx context.Context, date time.Time, seedLength int, seeds []string) (*Summary, error) {
	if err := model.ValidateSeedLength(seedLength); err != nil {
		return nil, err
	}

	started := time.Now()
	sum := &Summary{
		RunID:      uuid.NewString(),
		Date:       date,
		SeedLength: seedLength,
		Seeds:      len(seeds),
		Files:      make(map[string]string),
		Keywords:   make(map[string]int),
	}
	logger := h.logger.With(zap.String("run_id", sum.RunID), zap.Int("seed_length", seedLength))

	engines := h.allowedEngines(ctx, logger, sum)
	if len(engines) == 0 {
		return nil, fmt.Errorf("no engine may be queried (disallowed: %v)", sum.Skipped)
	}

	logger.Info("harvest started",
		zap.Strings("engines", engines),
		zap.Int("seeds", len(seeds)),
		zap.Int("workers", len(h.opts.Rotators)))

	jobs := make([]worker.Job, len(seeds))
	for i, s := range seeds {
		jobs[i] = &seedJob{seq: i, seed: s, h: h, n: seedLength, engs: engines}
	}
	results := worker.Run(ctx, len(h.opts.Rotators), jobs)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("harvest interrupted: %w", err)
	}
	if len(results) != len(seeds) {
		return nil, fmt.Errorf("harvest incomplete: %d of %d seeds", len(results), len(seeds))
	}

	perEngine := make(map[string][]model.RankedKeywordRow, len(engines))
	for _, r := range results {
		sr := r.(*seedResult)
		if sr.err != nil {
			return nil, fmt.Errorf("seed %q: %w", sr.seed, sr.err)
		}
		sum.Empty += sr.empty
		sum.Failed += sr.failed
		sum.NoProxy += sr.noProxy
		for _, engine := range engines {
			perEngine[engine] = append(perEngine[engine], sr.rows[engine]...)
		}
	}

	sentinels, _ := model.SentinelRanks(seedLength)
	for _, engine := range engines {
		layout := snapshot.Layout{Root: h.opts.Root, Marketplace: engine, Locale: h.opts.Locale}
		path := layout.RawPath(date, seedLength)
		if err := writeDump(path, perEngine[engine]); err != nil {
			return nil, err
		}
		sum.Files[engine] = path

		n := 0
		for _, row := range perEngine[engine] {
			if !sentinels[row.Rank] {
				n++
			}
		}
		sum.Keywords[engine] = n
		if h.opts.Metrics != nil {
			h.opts.Metrics.AddKeywords(engine, seedLength, n)
		}
	}

	sum.Elapsed = time.Since(started)
	logger.Info("harvest finished",
		zap.Any("keywords", sum.Keywords),
		zap.Int("empty", sum.Empty),
		zap.Int("failed", sum.Failed),
		zap.Int("no_proxy", sum.NoProxy),
		zap.Duration("elapsed", sum.Elapsed))
	return sum, nil
}

// allowedEngines drops engines whose robots.txt forbids the endpoint and
// applies any crawl delay to the limiter
func (h *Harvester) allowedEngines(ctx context.Context, logger *zap.Logger, sum *Summary) []string {
	if h.opts.Robots == nil {
		return h.opts.Engines
	}

	var allowed []string
	for _, engine := range h.opts.Engines {
		endpoint := h.client.EndpointURL(engine)
		v, err := h.opts.Robots.Check(ctx, endpoint)
		if err != nil {
			logger.Debug("robots.txt unavailable, allowing", zap.String("engine", engine), zap.Error(err))
		}
		if !v.Allowed {
			logger.Warn("robots.txt disallows engine, skipping", zap.String("engine", engine), zap.String("url", endpoint))
			sum.Skipped = append(sum.Skipped, engine)
			h.observe(engine, metrics.OutcomeRobotsDisallowed, 0)
			continue
		}
		if h.opts.Limiter != nil && v.CrawlDelay > 0 {
			if err := h.opts.Limiter.SetCrawlDelay(endpoint, v.CrawlDelay); err != nil {
				logger.Debug("crawl delay not applied", zap.String("engine", engine), zap.Error(err))
			}
		}
		allowed = append(allowed, engine)
	}
	return allowed
}

// writeDump writes rows in raw dump format through a temp file so a
// failed run never leaves a truncated dump behind
func writeDump(path string, rows []model.RankedKeywordRow) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create dump: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	for _, row := range rows {
		if _, err := w.WriteString(snapshot.FormatRow(row) + "\n"); err != nil {
			_ = f.Close()
			return fmt.Errorf("write dump: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush dump: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dump: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename dump: %w", err)
	}
	return nil
}
