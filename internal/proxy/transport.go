package proxy

import (
	"fmt"
	"net/http"
	"net/url"

	xproxy "golang.org/x/net/proxy"
)

// Config is the egress configuration handed to each suggestion lookup.
// A zero Config means a direct connection (environment proxies still apply).
type Config struct {
	SOCKSAddr  string
	HTTPProxy  string
	HTTPSProxy string
}

func (c Config) String() string {
	switch {
	case c.SOCKSAddr != "":
		return "socks5://" + c.SOCKSAddr
	case c.HTTPSProxy != "":
		return c.HTTPSProxy
	case c.HTTPProxy != "":
		return c.HTTPProxy
	default:
		return "direct"
	}
}

// Transport builds a fresh transport for this configuration. A new
// transport per identity keeps connections from an old circuit out of the pool.
func (c Config) Transport() (*http.Transport, error) {
	if c.SOCKSAddr == "" {
		return &http.Transport{
			Proxy: NewProxyFunc(c.HTTPProxy, c.HTTPSProxy),
		}, nil
	}

	dialer, err := xproxy.SOCKS5("tcp", c.SOCKSAddr, nil, xproxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}
	contextDialer, ok := dialer.(xproxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer for %s does not support contexts", c.SOCKSAddr)
	}

	return &http.Transport{
		DialContext:       contextDialer.DialContext,
		DisableKeepAlives: true,
	}, nil
}

// NewProxyFunc creates a proxy function for plain HTTP(S) proxies.
// If no proxy URLs are provided, falls back to environment variables.
func NewProxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}
