package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"ohlcvhub/internal/model"
)

// Provider names known to the daemon.
const (
	ProviderBinance = "binance"
	ProviderYahoo   = "yahoo"
	ProviderMock    = "mock"
)

// cronParser matches the scheduler's seconds-first cron format.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ProviderConfig is the static configuration of one upstream adapter.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryBound *int          `yaml:"retry_bound"`
	BackoffMin time.Duration `yaml:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max"`
}

// Retries returns the configured retry bound.
func (p ProviderConfig) Retries() int {
	if p.RetryBound == nil {
		return defaultRetryBound
	}
	return *p.RetryBound
}

// WatchConfig is one scheduled fetch.
type WatchConfig struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
	Limit    int    `yaml:"limit"`
	Cron     string `yaml:"cron"`
}

// Config holds all application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	Proxy    string `yaml:"proxy"`
	HTTP     struct {
		MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
		IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
	} `yaml:"http"`
	Providers struct {
		Binance ProviderConfig `yaml:"binance"`
		Yahoo   ProviderConfig `yaml:"yahoo"`
		Mock    struct {
			Enabled   bool    `yaml:"enabled"`
			BasePrice float64 `yaml:"base_price"`
		} `yaml:"mock"`
	} `yaml:"providers"`
	// Routes overrides the built-in asset class routing table when set.
	Routes   map[string][]string `yaml:"routes"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Batch struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"batch"`
	Watchlist []WatchConfig `yaml:"watchlist"`
}

// assetClasses are the classes the classifier can produce.
var assetClasses = map[model.AssetClass]bool{
	model.Crypto:     true,
	model.USEquity:   true,
	model.IntlEquity: true,
	model.Forex:      true,
}

// RouteTable returns base with the configured routes laid over it. Classes
// without a configured route keep their base chain.
func (c *Config) RouteTable(base map[model.AssetClass][]string) map[model.AssetClass][]string {
	out := make(map[model.AssetClass][]string, len(base)+len(c.Routes))
	for class, chain := range base {
		out[class] = chain
	}
	for class, chain := range c.Routes {
		out[model.AssetClass(class)] = chain
	}
	return out
}

const (
	defaultRetryBound  = 2
	defaultConcurrency = 4
)

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Providers.Binance.BaseURL = v
	}
	if v := os.Getenv("YAHOO_BASE_URL"); v != "" {
		cfg.Providers.Yahoo.BaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("BATCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("BATCH_CONCURRENCY: %w", err)
		}
		cfg.Batch.Concurrency = n
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.MaxIdleConnsPerHost == 0 {
		c.HTTP.MaxIdleConnsPerHost = 16
	}
	if c.HTTP.IdleConnTimeout == 0 {
		c.HTTP.IdleConnTimeout = 90 * time.Second
	}
	applyProviderDefaults(&c.Providers.Binance, "https://api.binance.com", 10*time.Second, 500*time.Millisecond, 5*time.Second)
	applyProviderDefaults(&c.Providers.Yahoo, "https://query1.finance.yahoo.com", 15*time.Second, time.Second, 8*time.Second)
	if c.Providers.Mock.BasePrice == 0 {
		c.Providers.Mock.BasePrice = 100
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/ohlcvhub.db"
	}
	if c.Batch.Concurrency == 0 {
		c.Batch.Concurrency = defaultConcurrency
	}
}

func applyProviderDefaults(p *ProviderConfig, baseURL string, timeout, backoffMin, backoffMax time.Duration) {
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.Timeout == 0 {
		p.Timeout = timeout
	}
	if p.BackoffMin == 0 {
		p.BackoffMin = backoffMin
	}
	if p.BackoffMax == 0 {
		p.BackoffMax = backoffMax
	}
}

// Validate checks that all settings are usable.
func (c *Config) Validate() error {
	for name, p := range map[string]ProviderConfig{
		ProviderBinance: c.Providers.Binance,
		ProviderYahoo:   c.Providers.Yahoo,
	} {
		if p.Timeout <= 0 {
			return fmt.Errorf("providers.%s.timeout must be positive", name)
		}
		if p.Retries() < 0 {
			return fmt.Errorf("providers.%s.retry_bound must not be negative", name)
		}
		if p.BackoffMin > p.BackoffMax {
			return fmt.Errorf("providers.%s.backoff_min must not exceed backoff_max", name)
		}
	}
	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("batch.concurrency must not be negative")
	}

	known := map[string]bool{ProviderBinance: true, ProviderYahoo: true, ProviderMock: c.Providers.Mock.Enabled}
	for class, chain := range c.Routes {
		if !assetClasses[model.AssetClass(class)] {
			return fmt.Errorf("routes.%s: unknown asset class", class)
		}
		if len(chain) == 0 {
			return fmt.Errorf("routes.%s: empty provider chain", class)
		}
		for _, name := range chain {
			if !known[name] {
				return fmt.Errorf("routes.%s: unknown or disabled provider %q", class, name)
			}
		}
	}

	for i, w := range c.Watchlist {
		if w.Symbol == "" {
			return fmt.Errorf("watchlist[%d].symbol is required", i)
		}
		if _, err := model.ParseInterval(w.Interval); err != nil {
			return fmt.Errorf("watchlist[%d].interval: %w", i, err)
		}
		if w.Limit <= 0 {
			return fmt.Errorf("watchlist[%d].limit must be positive", i)
		}
		if _, err := cronParser.Parse(w.Cron); err != nil {
			return fmt.Errorf("watchlist[%d].cron: %w", i, err)
		}
	}
	return nil
}
