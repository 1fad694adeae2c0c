package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gridctl/toolgate/pkg/credentials"
	"github.com/gridctl/toolgate/pkg/logging"
)

// DefaultFetchTimeout bounds each discovery request.
const DefaultFetchTimeout = 10 * time.Second

// maxSpecSize caps a downloaded spec document.
const maxSpecSize = 10 * 1024 * 1024

const defaultSpecPath = "/openapi.json"

// BuildCandidateURLs returns the ordered, de-duplicated URLs at which the
// spec for baseURL may be served. customPath may be an absolute URL, a
// host-rooted path or a path relative to the base path.
func BuildCandidateURLs(baseURL, customPath string) ([]string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q must be a valid http:// or https:// endpoint", ErrInvalidURL, baseURL)
	}

	compose := func(path string) string {
		return parsed.Scheme + "://" + parsed.Host + path
	}

	var candidates []string
	seen := make(map[string]bool)
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			candidates = append(candidates, u)
		}
	}

	path := parsed.EscapedPath()
	basePath := strings.TrimRight(path, "/")

	if custom := strings.TrimSpace(customPath); custom != "" {
		switch {
		case strings.HasPrefix(custom, "http://") || strings.HasPrefix(custom, "https://"):
			add(custom)
		case strings.HasPrefix(custom, "/"):
			add(compose(custom))
		default:
			add(compose(basePath + "/" + custom))
		}
	}

	if strings.HasSuffix(path, defaultSpecPath) {
		add(compose(path))
		return candidates, nil
	}

	add(compose(basePath + defaultSpecPath))
	if basePath != "" {
		// Apps registered with a resource path (for example /mcp) often
		// serve their spec from the root.
		add(compose(defaultSpecPath))
	}
	return candidates, nil
}

// FetchResult describes a discovery attempt.
type FetchResult struct {
	OK         bool        `json:"ok"`
	Doc        *openapi3.T `json:"-"`
	UsedURL    string      `json:"used_url,omitempty"`
	Candidates []string    `json:"candidate_urls"`
	Rounds     int         `json:"rounds_attempted"`
	Requests   int         `json:"requests_attempted"`
	LatencyMS  int64       `json:"latency_ms"`
	Errors     []string    `json:"errors,omitempty"`
	Err        error       `json:"-"`
}

// Fetcher downloads and parses OpenAPI documents.
type Fetcher struct {
	client  *http.Client
	tokens  credentials.TokenSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewFetcher creates a fetcher. A nil client uses a default one; a nil
// token source sends no Authorization header.
func NewFetcher(client *http.Client, tokens credentials.TokenSource) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if tokens == nil {
		tokens = credentials.None
	}
	return &Fetcher{
		client:  client,
		tokens:  tokens,
		timeout: DefaultFetchTimeout,
		logger:  logging.NewDiscardLogger(),
	}
}

// SetLogger sets the logger for discovery diagnostics.
func (f *Fetcher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// SetTimeout overrides the per-request discovery timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// FetchSpecWithDiagnostics tries every candidate for retries+1 rounds and
// returns the first document that parses. It never returns nil.
func (f *Fetcher) FetchSpecWithDiagnostics(ctx context.Context, baseURL, customPath string, retries int, domain string) *FetchResult {
	started := time.Now()
	result := &FetchResult{}
	defer func() { result.LatencyMS = time.Since(started).Milliseconds() }()

	candidates, err := BuildCandidateURLs(baseURL, customPath)
	if err != nil {
		result.Err = err
		result.Errors = []string{err.Error()}
		return result
	}
	result.Candidates = candidates

	tokenCtx, cancel := context.WithTimeout(ctx, f.timeout)
	token, err := f.tokens.Token(tokenCtx, domain)
	cancel()
	if err != nil {
		// Unauthenticated discovery may still succeed.
		f.logger.Warn("token unavailable for discovery", "domain", domain, "error", err)
	}

	for round := 0; round <= max(0, retries); round++ {
		result.Rounds = round + 1
		for _, candidate := range candidates {
			result.Requests++
			doc, err := f.fetchOne(ctx, candidate, token)
			if err != nil {
				f.logger.Debug("spec candidate failed", "url", candidate, "round", result.Rounds, "error", err)
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.OK = true
			result.Doc = doc
			result.UsedURL = candidate
			return result
		}
	}

	detail := "Could not fetch a valid OpenAPI spec."
	if len(result.Errors) > 0 {
		detail += " Tried: " + strings.Join(result.Errors, "; ")
	}
	result.Err = &unreachableError{detail: detail}
	return result
}

func (f *Fetcher) fetchOne(ctx context.Context, candidate, token string) (*openapi3.T, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", candidate, err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", candidate, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: HTTP %d", candidate, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", candidate, err)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON response", candidate)
	}
	if _, ok := payload.(map[string]any); !ok {
		return nil, fmt.Errorf("%s: payload is not a JSON object", candidate)
	}

	doc, err := ParseDocument(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", candidate, err)
	}
	return doc, nil
}

// ParseDocument loads an OpenAPI 3.x document, or converts a Swagger 2.0
// document to 3.x. External references are not followed.
func ParseDocument(ctx context.Context, data []byte) (*openapi3.T, error) {
	var probe struct {
		Swagger string `json:"swagger"`
	}
	_ = json.Unmarshal(data, &probe)

	if strings.HasPrefix(probe.Swagger, "2") {
		var doc2 openapi2.T
		if err := json.Unmarshal(data, &doc2); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		doc, err := openapi2conv.ToV3(&doc2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		return doc, nil
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	loader.Context = ctx
	doc, err := loader.LoadFromData(bytes.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return doc, nil
}

// unreachableError keeps the aggregated detail as its message while
// matching ErrUpstreamUnreachable.
type unreachableError struct{ detail string }

func (e *unreachableError) Error() string { return e.detail }
func (e *unreachableError) Unwrap() error { return ErrUpstreamUnreachable }
