// Package config loads the toolgate YAML configuration.
package config

import "time"

// Config is the root of a toolgate configuration file.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Native      NativeConfig      `yaml:"native"`
	Policy      PolicyConfig      `yaml:"policy"`
	Store       StoreConfig       `yaml:"store"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Redis       RedisConfig       `yaml:"redis"`
	Tracing     TracingConfig     `yaml:"tracing"`

	// Seed data for the memory store. Ignored by the postgres driver.
	Applications []Application `yaml:"applications"`
	Servers      []Server      `yaml:"servers"`
	Policies     []Policy      `yaml:"policies"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen         string     `yaml:"listen"`
	Auth           AuthConfig `yaml:"auth"`
	AllowedOrigins []string   `yaml:"allowed_origins"`
}

// AuthConfig protects the HTTP API. An empty token disables auth.
type AuthConfig struct {
	Type   string `yaml:"type"`   // bearer or header
	Token  string `yaml:"token"`
	Header string `yaml:"header"` // defaults to Authorization
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// CatalogConfig tunes OpenAPI discovery.
type CatalogConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	FetchRetries int           `yaml:"fetch_retries"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Concurrency  int           `yaml:"concurrency"`
	SyncTimeout  time.Duration `yaml:"sync_timeout"`
}

// NativeConfig tunes sessions to downstream MCP servers.
type NativeConfig struct {
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
}

// PolicyConfig selects access-policy defaults.
type PolicyConfig struct {
	// Fallback applies when an owner has neither a tool row nor a default row.
	Fallback string `yaml:"fallback"`
	// SeedMode is written into the __default__ row created on first discovery.
	SeedMode string `yaml:"seed_mode"`
}

// StoreConfig selects the durable store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory or postgres
	DSN    string `yaml:"dsn"`
}

// CredentialsConfig maps domain tags to client-credentials profiles.
type CredentialsConfig struct {
	Domains map[string]DomainCredentials `yaml:"domains"`
}

// DomainCredentials is one OAuth2 client-credentials profile.
type DomainCredentials struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// RedisConfig enables cross-process catalog invalidation.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// TracingConfig enables OTLP/HTTP trace export.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Application seeds an OpenAPI application registration.
type Application struct {
	Name                    string   `yaml:"name"`
	BaseURL                 string   `yaml:"base_url"`
	OpenAPIPath             string   `yaml:"openapi_path"`
	Domain                  string   `yaml:"domain"`
	IncludeUnreachableTools bool     `yaml:"include_unreachable_tools"`
	Selected                []string `yaml:"selected"`
	Disabled                bool     `yaml:"disabled"`
}

// Server seeds a native MCP server registration.
type Server struct {
	Name     string   `yaml:"name"`
	BaseURL  string   `yaml:"base_url"`
	Domain   string   `yaml:"domain"`
	Selected []string `yaml:"selected"`
	Disabled bool     `yaml:"disabled"`
}

// Policy seeds one access-policy row. Tool defaults to __default__.
type Policy struct {
	Owner  string   `yaml:"owner"`
	Tool   string   `yaml:"tool"`
	Mode   string   `yaml:"mode"`
	Users  []string `yaml:"users"`
	Groups []string `yaml:"groups"`
}

// Defaults.
const (
	DefaultListen       = ":8180"
	DefaultCacheTTL     = 30 * time.Second
	DefaultFetchRetries = 1
	DefaultFetchTimeout = 10 * time.Second
	DefaultSyncTimeout  = 15 * time.Second
	DefaultProbeTimeout = 10 * time.Second
	DefaultCallTimeout  = 60 * time.Second
	DefaultDomain       = "ADM"
	DefaultRedisChannel = "toolgate:catalog:reset"
)

// SetDefaults fills in every unset field.
func (c *Config) SetDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.Auth.Type == "" {
		c.Server.Auth.Type = "bearer"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Catalog.TTL == 0 {
		c.Catalog.TTL = DefaultCacheTTL
	}
	if c.Catalog.FetchTimeout == 0 {
		c.Catalog.FetchTimeout = DefaultFetchTimeout
	}
	if c.Catalog.SyncTimeout == 0 {
		c.Catalog.SyncTimeout = DefaultSyncTimeout
	}
	if c.Native.ProbeTimeout == 0 {
		c.Native.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Native.CallTimeout == 0 {
		c.Native.CallTimeout = DefaultCallTimeout
	}
	if c.Policy.Fallback == "" {
		c.Policy.Fallback = "deny"
	}
	if c.Policy.SeedMode == "" {
		c.Policy.SeedMode = "allow"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = DefaultRedisChannel
	}
	for i := range c.Applications {
		if c.Applications[i].Domain == "" {
			c.Applications[i].Domain = DefaultDomain
		}
	}
	for i := range c.Servers {
		if c.Servers[i].Domain == "" {
			c.Servers[i].Domain = DefaultDomain
		}
	}
	for i := range c.Policies {
		if c.Policies[i].Tool == "" {
			c.Policies[i].Tool = "__default__"
		}
	}
}
