package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRobotsChecker_Check(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&fetches, 1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /complete/\nCrawl-delay: 2\n"))
	}))
	defer srv.Close()

	rc := NewRobotsChecker("Mozilla/5.0 (X11; Linux x86_64)", time.Second)
	ctx := context.Background()

	v, err := rc.Check(ctx, srv.URL+"/complete/search")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Allowed {
		t.Error("expected /complete/search to be disallowed")
	}
	if v.CrawlDelay != 2*time.Second {
		t.Errorf("crawl delay = %v, want 2s", v.CrawlDelay)
	}

	v, err = rc.Check(ctx, srv.URL+"/autosug")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !v.Allowed {
		t.Error("expected /autosug to be allowed")
	}

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", n)
	}
}

func TestRobotsChecker_MissingRobots(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	v, err := NewRobotsChecker("kwharvest", time.Second).Check(context.Background(), srv.URL+"/api")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !v.Allowed {
		t.Error("404 robots.txt should allow everything")
	}
}

func TestRobotsChecker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	v, err := NewRobotsChecker("kwharvest", time.Second).Check(context.Background(), url+"/api")
	if err == nil {
		t.Error("expected fetch error to be reported")
	}
	if !v.Allowed {
		t.Error("unreachable robots.txt should allow")
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	tests := map[string]string{
		"Mozilla/5.0 (Windows NT 10.0)": "Mozilla",
		"kwharvest/1.0":                 "kwharvest",
		"":                              "",
	}
	for in, want := range tests {
		if got := NormalizeUserAgent(in); got != want {
			t.Errorf("NormalizeUserAgent(%q) = %q, want %q", in, got, want)
		}
	}
}
