// Package pipeline wires the daily run: harvest the suggestion engines,
// record newly seen keywords in the ledger and archive the cleaned
// snapshots.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/kwharvest/internal/cache"
	"github.com/ppiankov/kwharvest/internal/harvest"
	"github.com/ppiankov/kwharvest/internal/ledger"
	"github.com/ppiankov/kwharvest/internal/metrics"
	"github.com/ppiankov/kwharvest/internal/model"
	"github.com/ppiankov/kwharvest/internal/proxy"
	"github.com/ppiankov/kwharvest/internal/seed"
	"github.com/ppiankov/kwharvest/internal/snapshot"
	"github.com/ppiankov/kwharvest/internal/store"
	"github.com/ppiankov/kwharvest/internal/suggest"
	"github.com/ppiankov/kwharvest/internal/util"
	"github.com/ppiankov/kwharvest/internal/worker"
)

// Pipeline orchestrates the daily run
type Pipeline struct {
	config    *model.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	suggester harvest.Suggester
	rotators  []proxy.Rotator
	now       func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSuggester replaces the HTTP suggestion client
func WithSuggester(s harvest.Suggester) Option {
	return func(p *Pipeline) { p.suggester = s }
}

// WithRotators replaces the rotators built from the proxy settings
func WithRotators(r []proxy.Rotator) Option {
	return func(p *Pipeline) { p.rotators = r }
}

// WithClock sets the clock that dates the harvest
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline for a validated configuration
func NewPipeline(cfg *model.Config, logger *zap.Logger, m *metrics.Metrics, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New("kwharvest")
	}
	p := &Pipeline{
		config:  cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rotators == nil {
		p.rotators = BuildRotators(cfg)
	}
	return p
}

// Metrics returns the collectors the pipeline reports to
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// BuildRotators returns one rotator per worker. Workers share endpoints
// round-robin when fewer endpoints than workers are configured.
func BuildRotators(cfg *model.Config) []proxy.Rotator {
	rotators := make([]proxy.Rotator, cfg.Harvest.Workers)
	if !cfg.Proxy.Enabled {
		for i := range rotators {
			rotators[i] = proxy.Static{}
		}
		return rotators
	}

	endpoints := cfg.ProxyEndpoints()
	for i := range rotators {
		ep := endpoints[i%len(endpoints)]
		rotators[i] = proxy.NewControlRotator(ep.ControlAddr, ep.SOCKSAddr, cfg.Proxy.Password)
	}
	return rotators
}

// Harvest runs every configured seed length for today, shortest first.
// All dumps of the run are dated with the day it started. Summaries of
// completed lengths are returned even when a later one fails.
func (p *Pipeline) Harvest(ctx context.Context) ([]*harvest.Summary, error) {
	cfg := p.config
	client := p.suggester
	var userAgent string
	if client == nil {
		c := suggest.NewClient(suggest.Options{
			Timeout:      cfg.HTTP.Timeout,
			UserAgent:    cfg.HTTP.UserAgent,
			MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
			Logger:       p.logger,
		})
		client = c
		userAgent = c.UserAgent()
	}

	opts := harvest.Options{
		Root:     cfg.DataRoot,
		Locale:   cfg.Locale,
		Engines:  cfg.Harvest.Engines,
		Geo:      cfg.Geo,
		Language: cfg.Harvest.Language,
		Country:  cfg.Harvest.Country,
		Context:  cfg.Harvest.Context,
		Rotators: p.rotators,
		Limiter:  worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize),
		Metrics:  p.metrics,
		Logger:   p.logger,
	}
	if cfg.Harvest.RespectRobots {
		opts.Robots = util.NewRobotsChecker(userAgent, cfg.HTTP.Timeout)
	}

	h, err := harvest.New(client, opts)
	if err != nil {
		return nil, err
	}

	lengths := append([]int(nil), cfg.Harvest.SeedLengths...)
	sort.Ints(lengths)

	// one date for every length, so a run crossing midnight stays in one day directory
	date := p.now()
	var summaries []*harvest.Summary
	for _, n := range lengths {
		seeds, err := seed.Read(cfg.Harvest.SeedDir, cfg.Locale, n)
		if err != nil {
			return summaries, fmt.Errorf("%d-letter seeds: %w (run 'kwharvest seeds' first)", n, err)
		}
		sum, err := h.Run(ctx, date, n, seeds)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, sum)
	}
	p.metrics.MarkRun("harvest", p.now())
	return summaries, nil
}

// Accumulate records day in the ledger of the configured marketplace
func (p *Pipeline) Accumulate(day time.Time) (*ledger.Result, error) {
	cfg := p.config
	loc, err := model.LookupLocale(cfg.Locale)
	if err != nil {
		return nil, err
	}
	layout, err := snapshot.NewLayout(cfg.DataRoot, cfg.Marketplace, cfg.Locale, p.logger)
	if err != nil {
		return nil, err
	}

	stops := ledger.DefaultStopwords()
	if cfg.Ledger.StopwordsFile != "" {
		if err := stops.LoadFile(loc.StopwordLanguage, cfg.Ledger.StopwordsFile); err != nil {
			return nil, err
		}
	}

	opts := []ledger.Option{ledger.WithLogger(p.logger)}
	var dayCache *cache.LayeredCache
	if cfg.Ledger.Cache {
		dayCache = cache.NewLayeredCache(time.Hour, cfg.Ledger.CacheDir, cfg.Ledger.CacheTTL)
		opts = append(opts, ledger.WithCache(dayCache, cfg.Ledger.CacheTTL))
	}

	res, err := ledger.NewAccumulator(layout, stops.For(loc.StopwordLanguage), opts...).Record(day)
	if err != nil {
		return nil, err
	}

	if dayCache != nil {
		hits, misses := dayCache.Stats()
		pruned, err := dayCache.Prune()
		if err != nil {
			p.logger.Warn("cache prune failed", zap.Error(err))
		}
		p.logger.Debug("history cache", zap.Int64("hits", hits), zap.Int64("misses", misses), zap.Int("pruned", pruned))
	}
	p.metrics.LedgerAppended.WithLabelValues(cfg.Marketplace, cfg.Locale).Add(float64(len(res.Appended)))
	p.metrics.MarkRun("accumulate", p.now())
	return res, nil
}

// Archive stores the cleaned snapshots of day, every seed length that has
// a dump, in the archive at archive.path. It returns the archived count.
func (p *Pipeline) Archive(ctx context.Context, day time.Time) (int, error) {
	cfg := p.config
	if cfg.Archive.Path == "" {
		return 0, errors.New("archive.path is not set")
	}
	layout, err := snapshot.NewLayout(cfg.DataRoot, cfg.Marketplace, cfg.Locale, p.logger)
	if err != nil {
		return 0, err
	}
	archive, err := store.Open(cfg.Archive.Path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = archive.Close() }()

	archived := 0
	for _, n := range model.SeedLengths {
		snap, err := layout.LoadDay(day, n)
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("no dump to archive", zap.String("date", snapshot.FormatDate(day)), zap.Int("seed_length", n))
			continue
		}
		if err != nil {
			return archived, err
		}
		if err := archive.Save(ctx, cfg.Marketplace, cfg.Locale, snap); err != nil {
			return archived, err
		}
		p.logger.Info("archived snapshot",
			zap.String("date", snapshot.FormatDate(day)),
			zap.Int("seed_length", n),
			zap.Int("keywords", len(snap.Rows)))
		archived++
	}
	return archived, nil
}

// RunResult contains the outcome of one daily run
type RunResult struct {
	Harvests []*harvest.Summary
	Ledger   *ledger.Result // nil when the marketplace was not harvested
	Archived int
}

// Run harvests, then records the ledger and archives the day when the
// configured marketplace was among the harvested engines
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	p.logger.Info("pipeline started")

	res := &RunResult{}
	summaries, err := p.Harvest(ctx)
	res.Harvests = summaries
	if err != nil {
		return res, fmt.Errorf("harvest: %w", err)
	}
	if len(summaries) == 0 || !harvested(p.config.Harvest.Engines, p.config.Marketplace) {
		p.logger.Info("marketplace not harvested, skipping ledger", zap.String("marketplace", p.config.Marketplace))
		return res, nil
	}
	day := summaries[0].Date

	ledgerRes, err := p.Accumulate(day)
	if err != nil {
		return res, fmt.Errorf("accumulate: %w", err)
	}
	res.Ledger = ledgerRes

	if p.config.Archive.Path != "" {
		n, err := p.Archive(ctx, day)
		res.Archived = n
		if err != nil {
			return res, fmt.Errorf("archive: %w", err)
		}
	}

	p.logger.Info("pipeline finished", zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// WriteMetrics exports the collectors to metrics.textfile_path, if set
func (p *Pipeline) WriteMetrics() error {
	path := p.config.Metrics.TextfilePath
	if path == "" {
		return nil
	}
	if err := p.metrics.WriteTextfile(path); err != nil {
		return err
	}
	p.logger.Debug("metrics written", zap.String("path", path))
	return nil
}

func harvested(engines []string, marketplace string) bool {
	for _, e := range engines {
		if e == marketplace {
			return true
		}
	}
	return false
}
