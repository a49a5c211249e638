// Package config loads the gateway configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/triage-ai/palisade/services/record_gateway/internal/ratelimit"
	"github.com/triage-ai/palisade/services/record_gateway/internal/registry"
	"github.com/triage-ai/palisade/services/record_gateway/internal/remote"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all configuration for the gateway.
type Config struct {
	// Remote table service
	APIToken        string `env:"AIRTABLE_API_TOKEN,required"`
	BaseID          string `env:"AIRTABLE_BASE_ID" envDefault:"appmujqM67OAxGBby"`
	APIURL          string `env:"AIRTABLE_API_URL" envDefault:"https://api.airtable.com/v0"`
	RateLimitPerSec int    `env:"AIRTABLE_RATE_LIMIT_PER_SEC" envDefault:"5"`
	RequestTimeoutS int    `env:"AIRTABLE_REQUEST_TIMEOUT" envDefault:"30"`

	// Collection table ids
	TableTenants       string `env:"AIRTABLE_TABLE_TENANTS" envDefault:"tbl18r4MzBthXlnth"`
	TableTickets       string `env:"AIRTABLE_TABLE_TICKETS" envDefault:"tbl2qQrpJc4PC9yfk"`
	TableResidences    string `env:"AIRTABLE_TABLE_RESIDENCES" envDefault:"tblx32X9SAlBpeB3C"`
	TableMessages      string `env:"AIRTABLE_TABLE_MESSAGES" envDefault:"tblvQrZVzdAaxb7Kr"`
	TableProfessionals string `env:"AIRTABLE_TABLE_PROFESSIONALS" envDefault:"tblIcANCLun1lb2Ap"`

	// Host transport
	LogLevel       string   `env:"RECORD_GATEWAY_LOG_LEVEL" envDefault:"info"`
	Transport      string   `env:"RECORD_GATEWAY_TRANSPORT" envDefault:"stdio"`
	HTTPAddr       string   `env:"RECORD_GATEWAY_HTTP_ADDR" envDefault:":8080"`
	HTTPKeyHashes  []string `env:"RECORD_GATEWAY_HTTP_KEY_HASHES" envSeparator:","`
	AuthCacheTTLS  int      `env:"RECORD_GATEWAY_AUTH_CACHE_TTL_S" envDefault:"30"`
	OpsAddr        string   `env:"RECORD_GATEWAY_OPS_ADDR"`
	GRPCHealthPort string   `env:"RECORD_GATEWAY_GRPC_HEALTH_PORT"`

	// Audit sinks
	ClickHouseDSN string `env:"CLICKHOUSE_DSN"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
}

// Load reads the given .env files (".env" when none are named; missing
// files are ignored), then parses and validates the environment. Variables
// already set in the environment win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

// Parse reads and validates the environment without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}
	cfg.HTTPKeyHashes = compact(cfg.HTTPKeyHashes)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks bounds. Out-of-range values are errors, never clamped.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIToken) == "" {
		return errors.New("AIRTABLE_API_TOKEN is required")
	}
	if strings.TrimSpace(c.BaseID) == "" {
		return errors.New("AIRTABLE_BASE_ID must not be empty")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("AIRTABLE_API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.RateLimitPerSec < ratelimit.MinPerSecond || c.RateLimitPerSec > ratelimit.MaxPerSecond {
		return fmt.Errorf("AIRTABLE_RATE_LIMIT_PER_SEC must be between %d and %d, got %d",
			ratelimit.MinPerSecond, ratelimit.MaxPerSecond, c.RateLimitPerSec)
	}
	minS, maxS := int(remote.MinTimeout/time.Second), int(remote.MaxTimeout/time.Second)
	if c.RequestTimeoutS < minS || c.RequestTimeoutS > maxS {
		return fmt.Errorf("AIRTABLE_REQUEST_TIMEOUT must be between %d and %d seconds, got %d",
			minS, maxS, c.RequestTimeoutS)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("RECORD_GATEWAY_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.Transport {
	case TransportStdio:
	case TransportHTTP:
		if len(c.HTTPKeyHashes) == 0 && c.PostgresDSN == "" {
			return errors.New("http transport requires RECORD_GATEWAY_HTTP_KEY_HASHES or POSTGRES_DSN for API keys")
		}
	default:
		return fmt.Errorf("RECORD_GATEWAY_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Transport)
	}
	if c.AuthCacheTTLS < 0 {
		return fmt.Errorf("RECORD_GATEWAY_AUTH_CACHE_TTL_S must not be negative, got %d", c.AuthCacheTTLS)
	}
	if _, err := c.Collections(); err != nil {
		return err
	}
	return nil
}

// RequestTimeout is the per-request deadline for remote calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutS) * time.Second
}

// AuthCacheTTL is how long a verified HTTP key stays cached.
func (c *Config) AuthCacheTTL() time.Duration {
	return time.Duration(c.AuthCacheTTLS) * time.Second
}

// Collections builds the collection table from the configured ids.
func (c *Config) Collections() (*registry.Collections, error) {
	return registry.NewCollections(map[string]string{
		registry.Tenants:       c.TableTenants,
		registry.Tickets:       c.TableTickets,
		registry.Residences:    c.TableResidences,
		registry.Messages:      c.TableMessages,
		registry.Professionals: c.TableProfessionals,
	})
}

// String renders the configuration for logs with secrets redacted.
func (c *Config) String() string {
	return fmt.Sprintf("base_id=%s api_url=%s rate_limit=%d/s timeout=%ds transport=%s http_keys=%d clickhouse=%t postgres=%t",
		c.BaseID, c.APIURL, c.RateLimitPerSec, c.RequestTimeoutS, c.Transport,
		len(c.HTTPKeyHashes), c.ClickHouseDSN != "", c.PostgresDSN != "")
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
