package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"
)

// ErrProxyUnavailable matches every ProxyUnavailableError via errors.Is
var ErrProxyUnavailable = errors.New("proxy unavailable")

// ProxyUnavailableError is returned when the control channel cannot be
// reached or rejects a command
type ProxyUnavailableError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ProxyUnavailableError) Error() string {
	return fmt.Sprintf("proxy unavailable: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ProxyUnavailableError) Unwrap() error { return e.Err }

func (e *ProxyUnavailableError) Is(target error) bool { return target == ErrProxyUnavailable }

// Rotator hands out a fresh egress identity
type Rotator interface {
	Rotate(ctx context.Context) (Config, error)
}

// ControlRotator asks a local anonymizing daemon for a new identity over
// its control port and returns its SOCKS endpoint
type ControlRotator struct {
	controlAddr string
	socksAddr   string
	password    string
	timeout     time.Duration
}

// NewControlRotator creates a rotator for one daemon instance
func NewControlRotator(controlAddr, socksAddr, password string) *ControlRotator {
	return &ControlRotator{
		controlAddr: controlAddr,
		socksAddr:   socksAddr,
		password:    password,
		timeout:     10 * time.Second,
	}
}

// Rotate authenticates, signals NEWNYM and returns the SOCKS config.
// It makes a single attempt.
func (r *ControlRotator) Rotate(ctx context.Context) (Config, error) {
	dialer := net.Dialer{Timeout: r.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.controlAddr)
	if err != nil {
		return Config{}, &ProxyUnavailableError{Addr: r.controlAddr, Op: "connect", Err: err}
	}
	defer func() { _ = conn.Close() }()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(r.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Config{}, &ProxyUnavailableError{Addr: r.controlAddr, Op: "connect", Err: err}
	}

	tp := textproto.NewConn(conn)

	auth := "AUTHENTICATE"
	if r.password != "" {
		auth += " " + quoteControlString(r.password)
	}
	if err := controlCommand(tp, auth); err != nil {
		return Config{}, &ProxyUnavailableError{Addr: r.controlAddr, Op: "authenticate", Err: err}
	}
	if err := controlCommand(tp, "SIGNAL NEWNYM"); err != nil {
		return Config{}, &ProxyUnavailableError{Addr: r.controlAddr, Op: "signal", Err: err}
	}
	_ = tp.PrintfLine("QUIT")

	return Config{SOCKSAddr: r.socksAddr}, nil
}

// controlCommand sends one line and expects a 250 reply
func controlCommand(tp *textproto.Conn, line string) error {
	id, err := tp.Cmd("%s", line)
	if err != nil {
		return err
	}
	tp.StartResponse(id)
	defer tp.EndResponse(id)

	_, _, err = tp.ReadResponse(250)
	return err
}

func quoteControlString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// Static always returns the same configuration. Used for --no-proxy runs
// and plain HTTP(S) proxies that have no identity to rotate.
type Static struct {
	Config Config
}

// Rotate returns the static configuration
func (s Static) Rotate(ctx context.Context) (Config, error) {
	return s.Config, nil
}
