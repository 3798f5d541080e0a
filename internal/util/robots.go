// Package util holds helpers shared by the harvester.
package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsChecker answers whether a suggestion endpoint may be queried
// under its host's robots.txt. Results are cached per host.
type RobotsChecker struct {
	cache      map[string]*robotstxt.RobotsData
	mu         sync.RWMutex
	httpClient *http.Client
	userAgent  string
	agentToken string
}

// NewRobotsChecker creates a checker that identifies as userAgent
func NewRobotsChecker(userAgent string, timeout time.Duration) *RobotsChecker {
	return &RobotsChecker{
		cache: make(map[string]*robotstxt.RobotsData),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent:  userAgent,
		agentToken: NormalizeUserAgent(userAgent),
	}
}

// Verdict is the robots.txt answer for one URL
type Verdict struct {
	Allowed    bool
	CrawlDelay time.Duration
}

// Check reports whether rawURL's path may be fetched. An unreachable
// robots.txt allows everything and is reported through err so the caller
// can log it.
func (r *RobotsChecker) Check(ctx context.Context, rawURL string) (Verdict, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Verdict{}, fmt.Errorf("parse URL: %w", err)
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, parsed.Host)
	data, err := r.robotsData(ctx, parsed.Host, robotsURL)
	if err != nil {
		return Verdict{Allowed: true}, err
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	v := Verdict{Allowed: data.TestAgent(path, r.agentToken)}
	if group := data.FindGroup(r.agentToken); group != nil {
		v.CrawlDelay = group.CrawlDelay
	}
	return v, nil
}

func (r *RobotsChecker) robotsData(ctx context.Context, host string, robotsURL string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()
	if exists {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// robotstxt maps 4xx to allow-all and 5xx to disallow-all
	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.cache[host] = data
	r.mu.Unlock()
	return data, nil
}

// NormalizeUserAgent returns the product token of a User-Agent, the part
// robots.txt groups are matched against
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) > 0 {
		return strings.Split(parts[0], "/")[0]
	}
	return ua
}
