// Package config loads and validates tally's YAML configuration.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IngestConfig tunes the ingest runner.
type IngestConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Lookback    time.Duration `yaml:"lookback"`
}

// PricesConfig supplies static USD prices keyed by asset symbol.
type PricesConfig struct {
	USD      map[string]string `yaml:"usd"`
	CacheTTL time.Duration     `yaml:"cacheTTL"`
}

// TelemetryConfig configures the OTLP metrics exporter.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`
}

// DatabaseConfig controls ledger store connectivity and migration behaviour.
type DatabaseConfig struct {
	Driver          DatabaseDriver `yaml:"driver"`
	DSN             string         `yaml:"dsn"`
	MaxConns        int32          `yaml:"maxConns"`
	MinConns        int32          `yaml:"minConns"`
	MaxConnLifetime time.Duration  `yaml:"maxConnLifetime"`
	RunMigrations   bool           `yaml:"runMigrations"`
	MigrationsPath  string         `yaml:"migrationsPath"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.Driver = DatabaseDriver(strings.ToLower(strings.TrimSpace(string(c.Driver))))
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		switch c.Driver {
		case DriverSQLite:
			c.DSN = "tally.db"
		case DriverPostgres:
			c.DSN = "postgresql://localhost:5432/tally"
		}
	}
	if c.Driver != DriverPostgres {
		return
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
}

func (c DatabaseConfig) validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("driver must be one of sqlite, postgres, memory")
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn required")
	}
	if c.Driver == DriverPostgres && c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	return nil
}

// APIServerConfig configures the read-only ledger HTTP API.
type APIServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the unified tally configuration sourced from YAML.
type AppConfig struct {
	Environment Environment      `yaml:"environment"`
	EnvFile     string           `yaml:"envFile"`
	Logging     LoggingConfig    `yaml:"logging"`
	Exchanges   []ExchangeConfig `yaml:"exchanges"`
	Ingest      IngestConfig     `yaml:"ingest"`
	Prices      PricesConfig     `yaml:"prices"`
	Database    DatabaseConfig   `yaml:"database"`
	APIServer   APIServerConfig  `yaml:"apiServer"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
}

// Load reads, normalises and validates an AppConfig from the YAML file at configPath.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	return Parse(reader)
}

// Parse decodes, normalises and validates an AppConfig.
func Parse(r io.Reader) (AppConfig, error) {
	bytes, err := io.ReadAll(r)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	c.EnvFile = strings.TrimSpace(c.EnvFile)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	seen := make(map[string]struct{}, len(c.Exchanges))
	for i := range c.Exchanges {
		c.Exchanges[i].normalise()
		name := c.Exchanges[i].Name
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("duplicate exchange name %q", name)
		}
		seen[name] = struct{}{}
	}

	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = 2
	}
	if c.Ingest.Lookback <= 0 {
		c.Ingest.Lookback = 30 * 24 * time.Hour
	}

	if len(c.Prices.USD) > 0 {
		upper := make(map[string]string, len(c.Prices.USD))
		for symbol, price := range c.Prices.USD {
			upper[strings.ToUpper(strings.TrimSpace(symbol))] = strings.TrimSpace(price)
		}
		c.Prices.USD = upper
	}
	if c.Prices.CacheTTL == 0 {
		c.Prices.CacheTTL = 5 * time.Minute
	}

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "tally"
	}

	c.Database.applyDefaults()

	c.APIServer.Addr = strings.TrimSpace(c.APIServer.Addr)
	if c.APIServer.Addr == "" {
		c.APIServer.Addr = ":8880"
	}
	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging format must be text or json")
	}

	if len(c.Exchanges) == 0 {
		return fmt.Errorf("at least one exchange required")
	}
	for i, ex := range c.Exchanges {
		if err := ex.validate(); err != nil {
			return fmt.Errorf("exchanges[%d]: %w", i, err)
		}
	}

	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest concurrency must be >0")
	}
	if _, err := c.Prices.Decimals(); err != nil {
		return err
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry otlpEndpoint required when enabled")
	}
	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// Decimals parses the configured USD prices.
func (p PricesConfig) Decimals() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(p.USD))
	for symbol, raw := range p.USD {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("prices.usd.%s: invalid price %q", symbol, raw)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("prices.usd.%s: price must be >=0", symbol)
		}
		out[symbol] = price
	}
	return out, nil
}

// Exchange returns the exchange with the given name.
func (c AppConfig) Exchange(name string) (ExchangeConfig, bool) {
	key := normalizeExchangeName(name)
	for _, ex := range c.Exchanges {
		if ex.Name == key {
			return ex, true
		}
	}
	return ExchangeConfig{}, false
}

// EnabledExchanges returns the exchanges not marked disabled.
func (c AppConfig) EnabledExchanges() []ExchangeConfig {
	out := make([]ExchangeConfig, 0, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		if !ex.Disabled {
			out = append(out, ex)
		}
	}
	return out
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))
	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
