package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the file is parsed.
const (
	EnvCacheTTL     = "TOOLGATE_CACHE_TTL_SEC"
	EnvFetchRetries = "TOOLGATE_FETCH_RETRIES"
)

// LoadConfig reads, expands, defaults and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	expandEnvVars(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnvVars expands ${VAR} references in fields that commonly carry
// secrets or deployment-specific hosts.
func expandEnvVars(c *Config) {
	c.Server.Listen = os.ExpandEnv(c.Server.Listen)
	c.Server.Auth.Token = os.ExpandEnv(c.Server.Auth.Token)
	c.Logging.File = os.ExpandEnv(c.Logging.File)
	c.Store.DSN = os.ExpandEnv(c.Store.DSN)
	c.Redis.Addr = os.ExpandEnv(c.Redis.Addr)
	c.Redis.Password = os.ExpandEnv(c.Redis.Password)
	c.Tracing.Endpoint = os.ExpandEnv(c.Tracing.Endpoint)

	for tag, d := range c.Credentials.Domains {
		d.TokenURL = os.ExpandEnv(d.TokenURL)
		d.ClientID = os.ExpandEnv(d.ClientID)
		d.ClientSecret = os.ExpandEnv(d.ClientSecret)
		c.Credentials.Domains[tag] = d
	}

	for i := range c.Applications {
		c.Applications[i].BaseURL = os.ExpandEnv(c.Applications[i].BaseURL)
		c.Applications[i].OpenAPIPath = os.ExpandEnv(c.Applications[i].OpenAPIPath)
	}
	for i := range c.Servers {
		c.Servers[i].BaseURL = os.ExpandEnv(c.Servers[i].BaseURL)
	}
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv(EnvCacheTTL); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return ValidationErrors{{EnvCacheTTL, fmt.Sprintf("must be a non-negative integer, got %q", v)}}
		}
		c.Catalog.TTL = time.Duration(sec) * time.Second
	}
	if v := os.Getenv(EnvFetchRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ValidationErrors{{EnvFetchRetries, fmt.Sprintf("must be a non-negative integer, got %q", v)}}
		}
		c.Catalog.FetchRetries = n
	}
	return nil
}
