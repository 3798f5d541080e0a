package model

import (
	"fmt"
	"time"
)

// Config holds all kwharvest settings
type Config struct {
	Locale      string `yaml:"locale" mapstructure:"locale"`
	Marketplace string `yaml:"marketplace" mapstructure:"marketplace"`
	Geo         string `yaml:"geo" mapstructure:"geo"`
	DataRoot    string `yaml:"data_root" mapstructure:"data_root"`

	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Proxy        ProxySettings      `yaml:"proxy" mapstructure:"proxy"`
	Harvest      HarvestConfig      `yaml:"harvest" mapstructure:"harvest"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Trend        TrendConfig        `yaml:"trend" mapstructure:"trend"`
	Ledger       LedgerConfig       `yaml:"ledger" mapstructure:"ledger"`
	Archive      ArchiveConfig      `yaml:"archive" mapstructure:"archive"`
	Cluster      ClusterConfig      `yaml:"cluster" mapstructure:"cluster"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
	Schedule     ScheduleConfig     `yaml:"schedule" mapstructure:"schedule"`
}

// HTTPConfig configures suggestion lookups
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"` // empty = random browser identity
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// ProxySettings configures the anonymizing proxy daemon
type ProxySettings struct {
	Enabled     bool            `yaml:"enabled" mapstructure:"enabled"`
	ControlAddr string          `yaml:"control_addr" mapstructure:"control_addr"`
	SOCKSAddr   string          `yaml:"socks_addr" mapstructure:"socks_addr"`
	Password    string          `yaml:"password" mapstructure:"password"`
	Endpoints   []ProxyEndpoint `yaml:"endpoints,omitempty" mapstructure:"endpoints"` // one per harvest worker
}

// ProxyEndpoint is one control/SOCKS pair of a proxy daemon instance
type ProxyEndpoint struct {
	ControlAddr string `yaml:"control_addr" mapstructure:"control_addr"`
	SOCKSAddr   string `yaml:"socks_addr" mapstructure:"socks_addr"`
}

// HarvestConfig configures the harvesting driver
type HarvestConfig struct {
	Engines       []string `yaml:"engines" mapstructure:"engines"`
	SeedLengths   []int    `yaml:"seed_lengths" mapstructure:"seed_lengths"`
	SeedDir       string   `yaml:"seed_dir" mapstructure:"seed_dir"`
	Workers       int      `yaml:"workers" mapstructure:"workers"`
	RespectRobots bool     `yaml:"respect_robots" mapstructure:"respect_robots"`
	Language      string   `yaml:"language" mapstructure:"language"`
	Country       string   `yaml:"country" mapstructure:"country"`
	Context       string   `yaml:"context" mapstructure:"context"` // "sh" products, "yt" video
}

// RateLimitingConfig configures per-engine throttling
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// TrendConfig configures the rising keywords report
type TrendConfig struct {
	Top        int `yaml:"top" mapstructure:"top"`
	SeedLength int `yaml:"seed_length" mapstructure:"seed_length"`
}

// LedgerConfig configures the keyword accumulator
type LedgerConfig struct {
	StopwordsFile string        `yaml:"stopwords_file,omitempty" mapstructure:"stopwords_file"`
	Cache         bool          `yaml:"cache" mapstructure:"cache"`
	CacheDir      string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	CacheTTL      time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ArchiveConfig configures the SQLite snapshot archive
type ArchiveConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// ClusterConfig configures the keyword clustering collaborator
type ClusterConfig struct {
	Provider string `yaml:"provider,omitempty" mapstructure:"provider"` // "", "openai"
	Model    string `yaml:"model,omitempty" mapstructure:"model"`
	APIKey   string `yaml:"-" mapstructure:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Clusters int    `yaml:"clusters" mapstructure:"clusters"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console, json
}

// MetricsConfig configures the Prometheus textfile export
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path,omitempty" mapstructure:"textfile_path"`
}

// ScheduleConfig configures the cron-driven daily run
type ScheduleConfig struct {
	Spec string `yaml:"spec" mapstructure:"spec"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Locale:      "en",
		Marketplace: EngineMarketplace,
		Geo:         "US",
		DataRoot:    "./data",
		HTTP: HTTPConfig{
			Timeout:      10 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Proxy: ProxySettings{
			Enabled:     true,
			ControlAddr: "127.0.0.1:9051",
			SOCKSAddr:   "127.0.0.1:9050",
		},
		Harvest: HarvestConfig{
			Engines:     []string{EngineMarketplace},
			SeedLengths: []int{2, 3, 4},
			SeedDir:     "./data/seeds",
			Workers:     1,
			Language:    "en",
			Country:     "US",
			Context:     "sh",
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
		Trend: TrendConfig{
			Top:        50,
			SeedLength: 4,
		},
		Ledger: LedgerConfig{
			CacheDir: "./data/.cache",
			CacheTTL: 31 * 24 * time.Hour,
		},
		Cluster: ClusterConfig{
			Clusters: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Schedule: ScheduleConfig{
			Spec: "0 3 * * *",
		},
	}
}

// Validate checks every enumerated setting before any I/O happens
func (c *Config) Validate() error {
	if _, err := LookupLocale(c.Locale); err != nil {
		return err
	}
	if err := ValidateMarketplace(c.Marketplace); err != nil {
		return err
	}
	if err := ValidateAuctionGeo(c.Geo); err != nil {
		return err
	}
	for _, engine := range c.Harvest.Engines {
		if err := ValidateMarketplace(engine); err != nil {
			return err
		}
	}
	for _, n := range c.Harvest.SeedLengths {
		if err := ValidateSeedLength(n); err != nil {
			return err
		}
	}
	if err := ValidateSeedLength(c.Trend.SeedLength); err != nil {
		return err
	}
	if c.Harvest.Workers < 1 {
		return &ValidationError{Field: "harvest.workers", Value: fmt.Sprint(c.Harvest.Workers), Reason: "must be at least 1"}
	}
	if c.Proxy.Enabled && c.Harvest.Workers > 1 && len(c.Proxy.Endpoints) < c.Harvest.Workers {
		return &ValidationError{
			Field:  "proxy.endpoints",
			Value:  fmt.Sprint(len(c.Proxy.Endpoints)),
			Reason: fmt.Sprintf("need one proxy endpoint per worker (%d workers)", c.Harvest.Workers),
		}
	}
	if c.RateLimiting.RequestsPerSecond <= 0 {
		return &ValidationError{Field: "rate_limiting.requests_per_second", Value: fmt.Sprint(c.RateLimiting.RequestsPerSecond), Reason: "must be positive"}
	}
	if c.Trend.Top < 1 {
		return &ValidationError{Field: "trend.top", Value: fmt.Sprint(c.Trend.Top), Reason: "must be at least 1"}
	}
	return nil
}

// ProxyEndpoints returns the endpoint list, falling back to the single
// control/SOCKS pair when none are configured
func (c *Config) ProxyEndpoints() []ProxyEndpoint {
	if len(c.Proxy.Endpoints) > 0 {
		return c.Proxy.Endpoints
	}
	return []ProxyEndpoint{{ControlAddr: c.Proxy.ControlAddr, SOCKSAddr: c.Proxy.SOCKSAddr}}
}
