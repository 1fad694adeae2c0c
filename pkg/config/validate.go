package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors:\n  - " + strings.Join(msgs, "\n  - ")
}

var validModes = map[string]bool{"allow": true, "approval": true, "deny": true}

// Validate checks the configuration for errors.
func Validate(c *Config) error {
	var errs ValidationErrors

	if !validModes[c.Policy.Fallback] {
		errs = append(errs, ValidationError{"policy.fallback", fmt.Sprintf("must be allow, approval or deny, got %q", c.Policy.Fallback)})
	}
	if !validModes[c.Policy.SeedMode] {
		errs = append(errs, ValidationError{"policy.seed_mode", fmt.Sprintf("must be allow, approval or deny, got %q", c.Policy.SeedMode)})
	}

	switch c.Server.Auth.Type {
	case "bearer", "header":
	default:
		errs = append(errs, ValidationError{"server.auth.type", fmt.Sprintf("must be bearer or header, got %q", c.Server.Auth.Type)})
	}

	if c.Catalog.FetchRetries < 0 {
		errs = append(errs, ValidationError{"catalog.fetch_retries", "must not be negative"})
	}
	if c.Catalog.Concurrency < 0 {
		errs = append(errs, ValidationError{"catalog.concurrency", "must not be negative"})
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, ValidationError{"store.dsn", "is required for the postgres driver"})
		}
	default:
		errs = append(errs, ValidationError{"store.driver", fmt.Sprintf("must be memory or postgres, got %q", c.Store.Driver)})
	}

	for tag, d := range c.Credentials.Domains {
		prefix := fmt.Sprintf("credentials.domains.%s", tag)
		if d.TokenURL == "" {
			errs = append(errs, ValidationError{prefix + ".token_url", "is required"})
		}
		if d.ClientID == "" {
			errs = append(errs, ValidationError{prefix + ".client_id", "is required"})
		}
	}

	appNames := make(map[string]bool)
	for i, app := range c.Applications {
		prefix := fmt.Sprintf("applications[%d]", i)
		if app.Name == "" {
			errs = append(errs, ValidationError{prefix + ".name", "is required"})
		} else if appNames[app.Name] {
			errs = append(errs, ValidationError{prefix + ".name", fmt.Sprintf("duplicate application name '%s'", app.Name)})
		}
		appNames[app.Name] = true
		if err := validateHTTPURL(app.BaseURL); err != "" {
			errs = append(errs, ValidationError{prefix + ".base_url", err})
		}
	}

	serverNames := make(map[string]bool)
	for i, srv := range c.Servers {
		prefix := fmt.Sprintf("servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, ValidationError{prefix + ".name", "is required"})
		} else if strings.Contains(srv.Name, "__") {
			errs = append(errs, ValidationError{prefix + ".name", "must not contain '__'"})
		} else if serverNames[srv.Name] {
			errs = append(errs, ValidationError{prefix + ".name", fmt.Sprintf("duplicate server name '%s'", srv.Name)})
		}
		serverNames[srv.Name] = true
		if err := validateHTTPURL(srv.BaseURL); err != "" {
			errs = append(errs, ValidationError{prefix + ".base_url", err})
		}
	}

	for i, p := range c.Policies {
		prefix := fmt.Sprintf("policies[%d]", i)
		if !strings.HasPrefix(p.Owner, "app:") && !strings.HasPrefix(p.Owner, "mcp:") {
			errs = append(errs, ValidationError{prefix + ".owner", "must start with app: or mcp:"})
		}
		if !validModes[p.Mode] {
			errs = append(errs, ValidationError{prefix + ".mode", fmt.Sprintf("must be allow, approval or deny, got %q", p.Mode)})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) string {
	if raw == "" {
		return "is required"
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "must be an http:// or https:// URL"
	}
	return ""
}
