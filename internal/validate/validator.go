// Package validate checks that everything a harvest depends on answers
// before the run starts: the suggestion endpoints and the proxy daemons.
package validate

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/kwharvest/internal/model"
)

const validateMaxRetries = 3

// validateSleepFunc is the sleep function used between retries (injectable for tests)
var validateSleepFunc = time.Sleep

// Target is one endpoint to check. HTTP(S) URLs get a GET, tcp://host:port
// URLs a plain dial.
type Target struct {
	Name string
	URL  string
}

// Result is the outcome of probing one target
type Result struct {
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	Reachable   bool          `json:"reachable"`
	RateLimited bool          `json:"rate_limited,omitempty"`
	StatusCode  int           `json:"status_code,omitempty"`
	Attempts    int           `json:"attempts"`
	Latency     time.Duration `json:"latency"`
	Error       string        `json:"error,omitempty"`
}

// Validator checks targets concurrently
type Validator struct {
	httpClient *http.Client
	dialer     *net.Dialer
	maxWorkers int
	userAgent  string
}

// NewValidator creates a new validator
func NewValidator(timeout time.Duration, maxWorkers int, userAgent string) *Validator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Validator{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		dialer:     &net.Dialer{Timeout: timeout},
		maxWorkers: maxWorkers,
		userAgent:  userAgent,
	}
}

// Targets lists the suggestion endpoints of the configured engines and,
// when the proxy is enabled, the control and SOCKS port of every endpoint
func Targets(cfg *model.Config, endpointURL func(engine string) string) []Target {
	var targets []Target
	for _, engine := range cfg.Harvest.Engines {
		if u := endpointURL(engine); u != "" {
			targets = append(targets, Target{Name: engine, URL: u})
		}
	}
	if !cfg.Proxy.Enabled {
		return targets
	}
	for i, ep := range cfg.ProxyEndpoints() {
		targets = append(targets,
			Target{Name: fmt.Sprintf("proxy[%d] control", i), URL: "tcp://" + ep.ControlAddr},
			Target{Name: fmt.Sprintf("proxy[%d] socks", i), URL: "tcp://" + ep.SOCKSAddr},
		)
	}
	return targets
}

// Validate checks all targets concurrently; results keep the input order
func (v *Validator) Validate(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, v.maxWorkers)

	for i, t := range targets {
		wg.Add(1)
		go func(idx int, t Target) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = Result{Name: t.Name, URL: t.URL, Error: "context cancelled"}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = v.validateWithRetry(ctx, t)
		}(i, t)
	}

	wg.Wait()
	return results
}

// Unreachable returns the results that failed
func Unreachable(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Reachable {
			failed = append(failed, r)
		}
	}
	return failed
}

func (v *Validator) validateSingle(ctx context.Context, t Target) Result {
	result := Result{Name: t.Name, URL: t.URL}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if addr, ok := strings.CutPrefix(t.URL, "tcp://"); ok {
		conn, err := v.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			result.Error = fmt.Sprintf("dial failed: %v", err)
			return result
		}
		_ = conn.Close()
		result.Reachable = true
		return result
	}

	if _, err := url.ParseRequestURI(t.URL); err != nil {
		result.Error = fmt.Sprintf("invalid URL: %v", err)
		return result
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		return result
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	// any answer below 500 means the endpoint is up; it may still reject
	// a request without a query
	result.Reachable = resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests
	result.RateLimited = resp.StatusCode == http.StatusTooManyRequests
	return result
}

// validateWithRetry retries transient failures with exponential backoff
func (v *Validator) validateWithRetry(ctx context.Context, t Target) Result {
	var result Result
	for attempt := 0; attempt < validateMaxRetries; attempt++ {
		result = v.validateSingle(ctx, t)
		result.Attempts = attempt + 1
		if !isRetryable(result) || ctx.Err() != nil {
			return result
		}
		if attempt < validateMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			validateSleepFunc(backoff)
		}
	}
	return result
}

// isRetryable returns true for results that indicate transient failures
func isRetryable(result Result) bool {
	if result.StatusCode >= 500 && result.StatusCode < 600 {
		return true
	}
	if result.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if result.Error != "" {
		return isRetryableNetworkError(result.Error)
	}
	return false
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
