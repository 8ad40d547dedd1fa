package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type StocksProvider string

const (
	HTTPProvider    StocksProvider = "http"
	TInvestProvider StocksProvider = "tinvest"
)

type StorageKind string

const (
	PostgresStorage StorageKind = "postgres"
	BackendStorage  StorageKind = "backend"
)

type RateLimits struct {
	Crypto int `yaml:"crypto"` // requests per minute
	Stocks int `yaml:"stocks"`
	Gold   int `yaml:"gold"`
}

type QuotesConfig struct {
	Address        string         `yaml:"address"`
	Token          string         `yaml:"-"`
	Timeout        time.Duration  `yaml:"timeout"`
	StocksProvider StocksProvider `yaml:"stocks_provider"`
	RateLimits     RateLimits     `yaml:"rate_limits"`
}

const (
	_quotesTimeoutDefault   = 15 * time.Second
	_stocksProviderDefault  = HTTPProvider
	_cryptoRateLimitDefault = 120
	_stocksRateLimitDefault = 120
	_goldRateLimitDefault   = 30

	// two instrument calls per new ticker against the SDK's 200/min
	_tinvestStocksRateLimitMax = 100
)

func (c *QuotesConfig) Setup() error {
	if c.Address == "" {
		return fmt.Errorf("quotes address is required")
	}
	if _, err := url.Parse(c.Address); err != nil {
		return fmt.Errorf("%w: bad quotes address", err)
	}

	if c.Timeout <= 0 {
		c.Timeout = _quotesTimeoutDefault
	}
	switch c.StocksProvider {
	case "":
		c.StocksProvider = _stocksProviderDefault
	case HTTPProvider, TInvestProvider:
	default:
		return fmt.Errorf("unknown stocks provider %q", c.StocksProvider)
	}
	if c.RateLimits.Crypto <= 0 {
		c.RateLimits.Crypto = _cryptoRateLimitDefault
	}
	if c.RateLimits.Stocks <= 0 {
		c.RateLimits.Stocks = _stocksRateLimitDefault
	}
	if c.RateLimits.Gold <= 0 {
		c.RateLimits.Gold = _goldRateLimitDefault
	}
	if c.StocksProvider == TInvestProvider && c.RateLimits.Stocks > _tinvestStocksRateLimitMax {
		c.RateLimits.Stocks = _tinvestStocksRateLimitMax
	}

	return nil
}

// WithFallbackToken returns a copy that authenticates with token when no
// quotes token was configured.
func (c QuotesConfig) WithFallbackToken(token string) QuotesConfig {
	if c.Token == "" {
		c.Token = token
	}
	return c
}

type RefreshConfig struct {
	LookupTimeout time.Duration `yaml:"lookup_timeout"` // 0 disables the per-lookup timeout
	Interval      time.Duration `yaml:"interval"`       // 0 disables periodic refresh
}

func (c *RefreshConfig) Setup() {
	if c.LookupTimeout < 0 {
		c.LookupTimeout = 0
	}
	if c.Interval < 0 {
		c.Interval = 0
	}
}

type BackendConfig struct {
	Address  string        `yaml:"address"`
	Timeout  time.Duration `yaml:"timeout"`
	Email    string        `yaml:"-"`
	Password string        `yaml:"-"`
}

const (
	_backendAddressDefault = "https://itracker-server.onrender.com/"
	_backendTimeoutDefault = 30 * time.Second
)

func (c *BackendConfig) Setup() error {
	if c.Address == "" {
		c.Address = _backendAddressDefault
	}
	if _, err := url.Parse(c.Address); err != nil {
		return fmt.Errorf("%w: bad backend address", err)
	}
	if c.Timeout <= 0 {
		c.Timeout = _backendTimeoutDefault
	}
	return nil
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type TrackerConfig struct {
	LogLevel string        `yaml:"log_level"`
	Storage  StorageKind   `yaml:"storage"`
	Server   ServerConfig  `yaml:"server"`
	Quotes   QuotesConfig  `yaml:"quotes"`
	Refresh  RefreshConfig `yaml:"refresh"`
	Backend  BackendConfig `yaml:"backend"`
}

const (
	_logLevelDefault   = "info"
	_storageDefault    = PostgresStorage
	_serverPortDefault = "8080"
)

func (c *TrackerConfig) ValidateAndSetup() error {
	if c.LogLevel == "" {
		c.LogLevel = _logLevelDefault
	}

	switch c.Storage {
	case "":
		c.Storage = _storageDefault
	case PostgresStorage, BackendStorage:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}

	if c.Server.Port == "" {
		c.Server.Port = _serverPortDefault
	}

	if err := c.Quotes.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup quotes", err)
	}
	c.Refresh.Setup()
	if err := c.Backend.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup backend", err)
	}

	return nil
}

// FillFromEnv copies secrets that never live in the config file.
func (c *TrackerConfig) FillFromEnv() {
	c.Quotes.Token = os.Getenv("QUOTES_API_TOKEN")
	c.Backend.Email = os.Getenv("BACKEND_EMAIL")
	c.Backend.Password = os.Getenv("BACKEND_PASSWORD")
}

func ParseTrackerConfig(input []byte) (TrackerConfig, error) {
	var cfg TrackerConfig
	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: can't unmarshal config", err)
	}

	cfg.FillFromEnv()

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}

func LoadTrackerConfig(filename string) (TrackerConfig, error) {
	input, err := os.ReadFile(filename)
	if err != nil {
		return TrackerConfig{}, fmt.Errorf("%w: can't read file", err)
	}

	return ParseTrackerConfig(input)
}
