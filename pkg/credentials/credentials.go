// Package credentials issues bearer tokens for upstream calls, keyed by the
// domain tag carried on each registration.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource returns a bearer token for a domain. An empty string with a
// nil error means no token is configured for the domain.
type TokenSource interface {
	Token(ctx context.Context, domain string) (string, error)
}

// DomainConfig describes an OAuth2 client-credentials grant.
type DomainConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// refreshSkew refreshes tokens this long before they expire.
const refreshSkew = 30 * time.Second

// DefaultTokenTimeout bounds one request to a token endpoint.
const DefaultTokenTimeout = 10 * time.Second

// Provider is a TokenSource backed by per-domain client-credentials grants.
// Tokens are cached and refreshed by oauth2.ReuseTokenSource.
type Provider struct {
	configs map[string]DomainConfig
	timeout time.Duration

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

var _ TokenSource = (*Provider)(nil)

// NewProvider creates a provider for the given domains.
func NewProvider(configs map[string]DomainConfig) *Provider {
	return &Provider{
		configs: configs,
		timeout: DefaultTokenTimeout,
		sources: make(map[string]oauth2.TokenSource),
	}
}

// SetTimeout bounds token endpoint requests. Non-positive values are ignored.
// It applies to domains whose source has not been created yet.
func (p *Provider) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()
}

// Token returns a cached or freshly issued token for domain. It returns
// when ctx is done even if the token endpoint has not answered.
func (p *Provider) Token(ctx context.Context, domain string) (string, error) {
	src, ok := p.source(domain)
	if !ok {
		return "", nil
	}

	type result struct {
		tok *oauth2.Token
		err error
	}
	// Buffered so the fetch can finish after the caller gave up; the
	// source's HTTP client timeout bounds it.
	done := make(chan result, 1)
	go func() {
		tok, err := src.Token()
		done <- result{tok, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("fetching token for domain %s: %w", domain, r.err)
		}
		return r.tok.AccessToken, nil
	case <-ctx.Done():
		return "", fmt.Errorf("fetching token for domain %s: %w", domain, ctx.Err())
	}
}

func (p *Provider) source(domain string) (oauth2.TokenSource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if src, ok := p.sources[domain]; ok {
		return src, true
	}
	cfg, ok := p.configs[domain]
	if !ok || cfg.TokenURL == "" {
		return nil, false
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	// The source outlives the triggering request, so it gets its own
	// context carrying a client with a timeout.
	srcCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: p.timeout})
	src := oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(srcCtx), refreshSkew)
	p.sources[domain] = src
	return src, true
}

// Static serves fixed tokens, mainly for tests and local development.
type Static map[string]string

// Token returns the configured token for domain, if any.
func (s Static) Token(_ context.Context, domain string) (string, error) {
	return s[domain], nil
}

// None never returns a token.
var None TokenSource = Static(nil)
