package proxy

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeControl serves a minimal control port that accepts one password
type fakeControl struct {
	ln       net.Listener
	password string
	mu       sync.Mutex
	lines    []string
}

func newFakeControl(t *testing.T, password string) *fakeControl {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fc := &fakeControl{ln: ln, password: password}
	go fc.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return fc
}

func (fc *fakeControl) serve() {
	for {
		conn, err := fc.ln.Accept()
		if err != nil {
			return
		}
		go fc.handle(conn)
	}
}

func (fc *fakeControl) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		fc.mu.Lock()
		fc.lines = append(fc.lines, line)
		fc.mu.Unlock()

		switch {
		case strings.HasPrefix(line, "AUTHENTICATE"):
			if line == `AUTHENTICATE "`+fc.password+`"` {
				_, _ = conn.Write([]byte("250 OK\r\n"))
			} else {
				_, _ = conn.Write([]byte("515 Authentication failed: Password did not match\r\n"))
				return
			}
		case line == "SIGNAL NEWNYM":
			_, _ = conn.Write([]byte("250 OK\r\n"))
		case line == "QUIT":
			_, _ = conn.Write([]byte("250 closing connection\r\n"))
			return
		default:
			_, _ = conn.Write([]byte("510 Unrecognized command\r\n"))
		}
	}
}

func (fc *fakeControl) received() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.lines...)
}

func TestControlRotator_Rotate(t *testing.T) {
	fc := newFakeControl(t, "secret")
	r := NewControlRotator(fc.ln.Addr().String(), "127.0.0.1:9050", "secret")

	cfg, err := r.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if cfg.SOCKSAddr != "127.0.0.1:9050" {
		t.Errorf("expected SOCKS addr 127.0.0.1:9050, got %q", cfg.SOCKSAddr)
	}

	// The server records lines asynchronously; give it a moment.
	deadline := time.Now().Add(time.Second)
	var lines []string
	for time.Now().Before(deadline) {
		lines = fc.received()
		if len(lines) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(lines) < 2 || lines[0] != `AUTHENTICATE "secret"` || lines[1] != "SIGNAL NEWNYM" {
		t.Errorf("unexpected control conversation: %v", lines)
	}
}

func TestControlRotator_BadPassword(t *testing.T) {
	fc := newFakeControl(t, "secret")
	r := NewControlRotator(fc.ln.Addr().String(), "127.0.0.1:9050", "wrong")

	_, err := r.Rotate(context.Background())
	if err == nil {
		t.Fatal("expected error for bad password")
	}
	if !errors.Is(err, ErrProxyUnavailable) {
		t.Errorf("expected ErrProxyUnavailable, got %v", err)
	}
	var pe *ProxyUnavailableError
	if !errors.As(err, &pe) || pe.Op != "authenticate" {
		t.Errorf("expected authenticate failure, got %v", err)
	}
}

func TestControlRotator_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	r := NewControlRotator(addr, "127.0.0.1:9050", "secret")
	_, err = r.Rotate(context.Background())
	if !errors.Is(err, ErrProxyUnavailable) {
		t.Fatalf("expected ErrProxyUnavailable, got %v", err)
	}
}

func TestQuoteControlString(t *testing.T) {
	if got := quoteControlString(`pa"ss\word`); got != `"pa\"ss\\word"` {
		t.Errorf("unexpected quoting: %s", got)
	}
}

func TestStatic_Rotate(t *testing.T) {
	s := Static{Config: Config{HTTPProxy: "http://proxy:3128"}}
	cfg, err := s.Rotate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPProxy != "http://proxy:3128" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestConfig_Transport(t *testing.T) {
	direct, err := Config{}.Transport()
	if err != nil {
		t.Fatalf("direct transport: %v", err)
	}
	if direct.Proxy == nil {
		t.Error("expected environment proxy func for direct config")
	}

	socks, err := Config{SOCKSAddr: "127.0.0.1:9050"}.Transport()
	if err != nil {
		t.Fatalf("socks transport: %v", err)
	}
	if socks.DialContext == nil {
		t.Error("expected SOCKS dialer on transport")
	}
	if socks.Proxy != nil {
		t.Error("SOCKS transport must not also use an HTTP proxy")
	}
}

func TestNewProxyFunc(t *testing.T) {
	fn := NewProxyFunc("http://plain:8080", "http://secure:8443")

	req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	u, err := fn(req)
	if err != nil || u.Host != "secure:8443" {
		t.Errorf("expected https proxy, got %v (%v)", u, err)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	u, err = fn(req)
	if err != nil || u.Host != "plain:8080" {
		t.Errorf("expected http proxy, got %v (%v)", u, err)
	}
}

func TestConfig_String(t *testing.T) {
	if got := (Config{}).String(); got != "direct" {
		t.Errorf("expected direct, got %s", got)
	}
	if got := (Config{SOCKSAddr: "127.0.0.1:9050"}).String(); got != "socks5://127.0.0.1:9050" {
		t.Errorf("unexpected: %s", got)
	}
}
