package harvest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/kwharvest/internal/metrics"
	"github.com/ppiankov/kwharvest/internal/model"
	"github.com/ppiankov/kwharvest/internal/proxy"
	"github.com/ppiankov/kwharvest/internal/suggest"
	"github.com/ppiankov/kwharvest/internal/util"
	"github.com/ppiankov/kwharvest/internal/worker"
)

var harvestDay = time.Date(2022, 5, 3, 10, 0, 0, 0, time.UTC)

// fakeSuggester answers from a table keyed by engine and seed
type fakeSuggester struct {
	answers map[string][]string
	errs    map[string]error
	delay   func(seed string) time.Duration

	mu    sync.Mutex
	proxy []proxy.Config
}

func (f *fakeSuggester) answer(ctx context.Context, engine, seed string, px proxy.Config) ([]string, error) {
	f.mu.Lock()
	f.proxy = append(f.proxy, px)
	f.mu.Unlock()
	if f.delay != nil {
		select {
		case <-time.After(f.delay(seed)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	key := engine + "/" + seed
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.answers[key], nil
}

func (f *fakeSuggester) LookupMarketplace(ctx context.Context, seed string, px proxy.Config) ([]string, error) {
	return f.answer(ctx, model.EngineMarketplace, seed, px)
}

func (f *fakeSuggester) LookupAuction(ctx context.Context, seed, geo string, px proxy.Config) ([]string, error) {
	return f.answer(ctx, model.EngineAuction, seed, px)
}

func (f *fakeSuggester) LookupSearchEngine(ctx context.Context, seed, language, country, searchContext string, px proxy.Config) ([]string, error) {
	return f.answer(ctx, model.EngineSearchEngine, seed, px)
}

func (f *fakeSuggester) EndpointURL(engine string) string {
	return "http://" + engine + ".test/complete"
}

type failingRotator struct {
	failFirst int32 // fail the first n rotations
	calls     int32
}

func (r *failingRotator) Rotate(ctx context.Context) (proxy.Config, error) {
	if atomic.AddInt32(&r.calls, 1) <= r.failFirst {
		return proxy.Config{}, &proxy.ProxyUnavailableError{Addr: "127.0.0.1:9051", Op: "dial", Err: errors.New("refused")}
	}
	return proxy.Config{SOCKSAddr: "127.0.0.1:9050"}, nil
}

func readDump(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestNew_Validation(t *testing.T) {
	rot := []proxy.Rotator{proxy.Static{}}
	_, err := New(&fakeSuggester{}, Options{Locale: "fr", Engines: []string{"amazon"}, Rotators: rot})
	assert.Error(t, err)

	_, err = New(&fakeSuggester{}, Options{Locale: "en", Engines: []string{"bing"}, Rotators: rot})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = New(&fakeSuggester{}, Options{Locale: "en", Engines: []string{"amazon"}})
	assert.Error(t, err)

	_, err = New(&fakeSuggester{}, Options{Locale: "en", Rotators: rot})
	assert.Error(t, err)
}

func TestRun_WritesRankedRowsAndSentinels(t *testing.T) {
	root := t.TempDir()
	fs := &fakeSuggester{
		answers: map[string][]string{
			"amazon/ab": {"abc toy", "abs belt"},
			"ebay/ab":   {"ab roller"},
		},
		errs: map[string]error{
			"ebay/ac": &suggest.NetworkError{Engine: "ebay", Seed: "ac", Err: errors.New("timeout")},
		},
	}
	m := metrics.New("test")

	h, err := New(fs, Options{
		Root:     root,
		Locale:   "en",
		Engines:  []string{model.EngineMarketplace, model.EngineAuction},
		Rotators: []proxy.Rotator{proxy.Static{Config: proxy.Config{SOCKSAddr: "127.0.0.1:9050"}}},
		Metrics:  m,
	})
	require.NoError(t, err)

	sum, err := h.Run(context.Background(), harvestDay, 2, []string{"ab", "ac"})
	require.NoError(t, err)

	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, root+"/2022-5-3/amazon_en_kwf2lets_2022-5-3.csv", sum.Files["amazon"])
	assert.Equal(t, []string{"abc toy:rank1", "abs belt:rank2", "ac:rank30"}, readDump(t, sum.Files["amazon"]))
	assert.Equal(t, []string{"ab roller:rank1", "ac:rank31"}, readDump(t, sum.Files["ebay"]))
	assert.Equal(t, map[string]int{"amazon": 2, "ebay": 1}, sum.Keywords)
	assert.Equal(t, 1, sum.Empty)
	assert.Equal(t, 1, sum.Failed)

	for _, px := range fs.proxy {
		assert.Equal(t, "127.0.0.1:9050", px.SOCKSAddr)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("ebay", metrics.OutcomeNetworkError)))
	// one rotation per lookup: 2 seeds x 2 engines
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RotationsTotal.WithLabelValues(metrics.OutcomeOK)))
}

func TestRun_ProxyUnavailableSkipsSeed(t *testing.T) {
	fs := &fakeSuggester{answers: map[string][]string{"google/abc": {"abc news"}}}
	h, err := New(fs, Options{
		Root:     t.TempDir(),
		Locale:   "en",
		Engines:  []string{model.EngineSearchEngine},
		Rotators: []proxy.Rotator{&failingRotator{failFirst: 1}},
	})
	require.NoError(t, err)

	sum, err := h.Run(context.Background(), harvestDay, 3, []string{"abd", "abc"})
	require.NoError(t, err)

	assert.Equal(t, []string{"abd:rank42", "abc news:rank1"}, readDump(t, sum.Files["google"]))
	assert.Equal(t, 1, sum.NoProxy)
	// the skipped seed never reached the engine
	assert.Len(t, fs.proxy, 1)
}

func TestRun_RotatesBeforeEveryLookup(t *testing.T) {
	fs := &fakeSuggester{answers: map[string][]string{
		"amazon/ab": {"ab toy"},
		"ebay/ab":   {"ab roller"},
	}}
	rot := &failingRotator{failFirst: 1}
	h, err := New(fs, Options{
		Root:     t.TempDir(),
		Locale:   "en",
		Engines:  []string{model.EngineMarketplace, model.EngineAuction},
		Rotators: []proxy.Rotator{rot},
	})
	require.NoError(t, err)

	sum, err := h.Run(context.Background(), harvestDay, 2, []string{"ab"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&rot.calls))
	// only the lookup whose rotation failed is replaced by a sentinel
	assert.Equal(t, []string{"ab:rank32"}, readDump(t, sum.Files["amazon"]))
	assert.Equal(t, []string{"ab roller:rank1"}, readDump(t, sum.Files["ebay"]))
	assert.Equal(t, 1, sum.NoProxy)
}

func TestRun_SeedOrderWithWorkers(t *testing.T) {
	seeds := []string{"ab", "ac", "ad", "ae", "af", "ag", "ah", "ai"}
	answers := map[string][]string{}
	for _, s := range seeds {
		answers["amazon/"+s] = []string{s + " one", s + " two"}
	}
	fs := &fakeSuggester{
		answers: answers,
		// early seeds are slowest so they finish last
		delay: func(seed string) time.Duration { return time.Duration('j'-seed[1]) * time.Millisecond },
	}

	rotators := []proxy.Rotator{proxy.Static{}, proxy.Static{}, proxy.Static{}}
	h, err := New(fs, Options{
		Root:     t.TempDir(),
		Locale:   "en",
		Engines:  []string{model.EngineMarketplace},
		Rotators: rotators,
		Limiter:  worker.NewLimiter(0, 1),
	})
	require.NoError(t, err)

	sum, err := h.Run(context.Background(), harvestDay, 2, seeds)
	require.NoError(t, err)

	var want []string
	for _, s := range seeds {
		want = append(want, s+" one:rank1", s+" two:rank2")
	}
	assert.Equal(t, want, readDump(t, sum.Files["amazon"]))
}

func TestRun_CancelledWritesNothing(t *testing.T) {
	root := t.TempDir()
	fs := &fakeSuggester{delay: func(string) time.Duration { return time.Second }}
	h, err := New(fs, Options{
		Root:     root,
		Locale:   "en",
		Engines:  []string{model.EngineMarketplace},
		Rotators: []proxy.Rotator{proxy.Static{}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = h.Run(ctx, harvestDay, 2, []string{"ab", "ac"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_UnsupportedSeedLength(t *testing.T) {
	h, err := New(&fakeSuggester{}, Options{Locale: "en", Engines: []string{"amazon"}, Rotators: []proxy.Rotator{proxy.Static{}}})
	require.NoError(t, err)

	_, err = h.Run(context.Background(), harvestDay, 5, []string{"abcde"})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRun_RobotsDisallowedEngineSkipped(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /complete/\n"))
		case "/api/suggestions":
			atomic.AddInt32(&hits, 1)
			_, _ = w.Write([]byte(`{"suggestions":[{"value":"ab toy"},{"value":"ab toy"},{"value":"ab set"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := suggest.NewClient(suggest.Options{
		Timeout:         time.Second,
		UserAgent:       "kwharvest-test",
		MarketplaceURL:  srv.URL + "/api/suggestions",
		SearchEngineURL: srv.URL + "/complete/search",
	})

	h, err := New(client, Options{
		Root:     t.TempDir(),
		Locale:   "en",
		Engines:  []string{model.EngineMarketplace, model.EngineSearchEngine},
		Rotators: []proxy.Rotator{proxy.Static{}},
		Robots:   util.NewRobotsChecker("kwharvest-test", time.Second),
	})
	require.NoError(t, err)

	sum, err := h.Run(context.Background(), harvestDay, 2, []string{"ab"})
	require.NoError(t, err)

	assert.Equal(t, []string{"google"}, sum.Skipped)
	assert.NotContains(t, sum.Files, "google")
	assert.Equal(t, []string{"ab toy:rank1", "ab set:rank2"}, readDump(t, sum.Files["amazon"]))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
