package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/kwharvest/internal/model"
	"github.com/ppiankov/kwharvest/internal/proxy"
)

// Default endpoints of the three suggestion engines
const (
	DefaultMarketplaceURL  = "https://completion.amazon.com/api/2017/suggestions"
	DefaultAuctionURL      = "https://www.ebay.com/autosug"
	DefaultSearchEngineURL = "https://clients1.google.com/complete/search"
)

// NetworkError is a transport-level failure (refused, DNS, timeout).
// HTTP error statuses are not NetworkErrors.
type NetworkError struct {
	Engine string
	Seed   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s lookup %q: %v", e.Engine, e.Seed, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Options configures a Client
type Options struct {
	Timeout         time.Duration
	UserAgent       string // empty picks a random browser identity
	MaxBodyBytes    int64
	MarketplaceURL  string
	AuctionURL      string
	SearchEngineURL string
	Logger          *zap.Logger
}

// Client looks up autocomplete suggestions. The browser identity is
// chosen once per client.
type Client struct {
	userAgent       string
	timeout         time.Duration
	maxBytes        int64
	marketplaceURL  string
	auctionURL      string
	searchEngineURL string
	logger          *zap.Logger
}

// NewClient creates a new Client with the given options
func NewClient(opts Options) *Client {
	c := &Client{
		userAgent:       opts.UserAgent,
		timeout:         opts.Timeout,
		maxBytes:        opts.MaxBodyBytes,
		marketplaceURL:  opts.MarketplaceURL,
		auctionURL:      opts.AuctionURL,
		searchEngineURL: opts.SearchEngineURL,
		logger:          opts.Logger,
	}
	if c.userAgent == "" {
		c.userAgent = RandomUserAgent()
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.maxBytes <= 0 {
		c.maxBytes = 1 << 20
	}
	if c.marketplaceURL == "" {
		c.marketplaceURL = DefaultMarketplaceURL
	}
	if c.auctionURL == "" {
		c.auctionURL = DefaultAuctionURL
	}
	if c.searchEngineURL == "" {
		c.searchEngineURL = DefaultSearchEngineURL
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// UserAgent returns the browser identity used by this client
func (c *Client) UserAgent() string {
	return c.userAgent
}

// EndpointURL returns the base URL queried for engine, or "" if unknown
func (c *Client) EndpointURL(engine string) string {
	switch engine {
	case model.EngineMarketplace:
		return c.marketplaceURL
	case model.EngineAuction:
		return c.auctionURL
	case model.EngineSearchEngine:
		return c.searchEngineURL
	}
	return ""
}

type marketplaceResponse struct {
	Suggestions []struct {
		Value string `json:"value"`
	} `json:"suggestions"`
}

// LookupMarketplace returns the marketplace suggestions for seed, deduplicated.
// Non-200 responses yield an empty list.
func (c *Client) LookupMarketplace(ctx context.Context, seed string, px proxy.Config) ([]string, error) {
	q := url.Values{}
	q.Set("limit", "11")
	q.Set("prefix", seed)
	q.Add("suggestion-type", "WIDGET")
	q.Add("suggestion-type", "KEYWORD")
	q.Set("page-type", "Gateway")
	q.Set("alias", "aps")
	q.Set("site-variant", "desktop")
	q.Set("version", "3")
	q.Set("event", "onKeyPress")
	q.Set("wc", "")
	q.Set("lop", "en_US")
	q.Set("fb", "1")
	q.Set("mid", "ATVPDKIKX0DER")
	q.Set("plain-mid", "1")
	q.Set("client-info", "amazon-search-ui")

	body, ok, err := c.get(ctx, model.EngineMarketplace, seed, c.marketplaceURL, q, px)
	if err != nil || !ok {
		return []string{}, err
	}

	var resp marketplaceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return []string{}, fmt.Errorf("decode %s response: %w", model.EngineMarketplace, err)
	}

	keywords := make([]string, 0, len(resp.Suggestions))
	seen := make(map[string]bool, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		if seen[s.Value] {
			continue
		}
		seen[s.Value] = true
		keywords = append(keywords, s.Value)
	}
	return keywords, nil
}

type auctionResponse struct {
	Res struct {
		Sug []string `json:"sug"`
	} `json:"res"`
}

// LookupAuction returns the auction site suggestions for seed in the
// market of geo (unknown geo codes fall back to US).
func (c *Client) LookupAuction(ctx context.Context, seed, geo string, px proxy.Config) ([]string, error) {
	q := url.Values{}
	q.Set("kwd", seed)
	q.Set("_jgr", "1")
	q.Set("sId", strconv.Itoa(model.AuctionSiteID(geo)))
	q.Set("_ch", "0")
	q.Set("_store", "1")
	q.Set("_help", "1")
	q.Set("callback", "0")

	body, ok, err := c.get(ctx, model.EngineAuction, seed, c.auctionURL, q, px)
	if err != nil || !ok {
		return []string{}, err
	}

	var resp auctionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return []string{}, fmt.Errorf("decode %s response: %w", model.EngineAuction, err)
	}
	if resp.Res.Sug == nil {
		return []string{}, nil
	}
	return resp.Res.Sug, nil
}

// LookupSearchEngine returns the general search engine suggestions for seed.
// searchContext is the engine's "ds" vertical ("sh" shopping, "yt" video).
func (c *Client) LookupSearchEngine(ctx context.Context, seed, language, country, searchContext string, px proxy.Config) ([]string, error) {
	q := url.Values{}
	q.Set("client", "youtube")
	q.Set("hl", language)
	q.Set("q", seed)
	q.Set("gl", country)
	q.Set("ds", searchContext)

	body, ok, err := c.get(ctx, model.EngineSearchEngine, seed, c.searchEngineURL, q, px)
	if err != nil || !ok {
		return []string{}, err
	}

	keywords, err := ParseSearchEngineResponse(body)
	if err != nil {
		return []string{}, fmt.Errorf("decode %s response: %w", model.EngineSearchEngine, err)
	}
	return keywords, nil
}

// get performs one GET. ok is false for any non-200 status; err is set
// only for transport failures.
func (c *Client) get(ctx context.Context, engine, seed, base string, query url.Values, px proxy.Config) ([]byte, bool, error) {
	transport, err := px.Transport()
	if err != nil {
		return nil, false, &NetworkError{Engine: engine, Seed: seed, Err: err}
	}
	httpClient := &http.Client{
		Timeout:   c.timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}
	defer httpClient.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+query.Encode(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*;q=0.1")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, false, &NetworkError{Engine: engine, Seed: seed, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("suggestion lookup returned non-200",
			zap.String("engine", engine),
			zap.String("seed", seed),
			zap.Int("status", resp.StatusCode))
		return nil, false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, false, &NetworkError{Engine: engine, Seed: seed, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, true, nil
}

// IsNetworkError reports whether err is a transport failure
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
