package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/gridctl/toolgate/pkg/logging"
	"github.com/gridctl/toolgate/pkg/openapi"
	"github.com/gridctl/toolgate/pkg/registry"
	"github.com/gridctl/toolgate/pkg/store"
)

var tracer = otel.Tracer("github.com/gridctl/toolgate/pkg/catalog")

// Defaults for Options.
const (
	DefaultTTL         = 30 * time.Second
	DefaultRetries     = 1
	DefaultSyncTimeout = 15 * time.Second
)

// SpecFetcher discovers OpenAPI documents.
type SpecFetcher interface {
	FetchSpecWithDiagnostics(ctx context.Context, baseURL, customPath string, retries int, domain string) *openapi.FetchResult
}

// Syncer receives each rebuilt catalog's per-app outcomes.
type Syncer interface {
	SyncApplications(ctx context.Context, apps []registry.AppDiscovery) error
}

// Options tunes a Builder.
type Options struct {
	TTL     time.Duration
	Retries int
	// Concurrency bounds parallel fetches. Zero means unbounded.
	Concurrency int
	SyncTimeout time.Duration
}

// Builder owns the catalog cache. One rebuild runs at a time; callers that
// waited on a rebuild reuse its result while it is fresh.
type Builder struct {
	apps    store.ApplicationSource
	fetcher SpecFetcher
	syncer  Syncer
	opts    Options
	now     func() time.Time
	logger  *slog.Logger

	rebuildMu sync.Mutex

	mu      sync.RWMutex
	current *Catalog
}

// NewBuilder creates a builder. Zero option values take the defaults.
func NewBuilder(apps store.ApplicationSource, fetcher SpecFetcher, opts Options) *Builder {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	return &Builder{
		apps:    apps,
		fetcher: fetcher,
		opts:    opts,
		now:     time.Now,
		logger:  logging.NewDiscardLogger(),
	}
}

// SetLogger sets the logger.
func (b *Builder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// SetSyncer sets the registry synchronizer run after each rebuild.
func (b *Builder) SetSyncer(s Syncer) { b.syncer = s }

// SetClock replaces the time source.
func (b *Builder) SetClock(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// Current returns the cached catalog, which may be nil or stale.
func (b *Builder) Current() *Catalog {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// ResetCatalog drops the cached catalog so the next build refetches.
func (b *Builder) ResetCatalog() {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
	b.logger.Info("catalog cache reset")
}

func (b *Builder) fresh(force bool, retryOverride *int) *Catalog {
	if force || retryOverride != nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current != nil && b.now().Sub(b.current.GeneratedAt) < b.opts.TTL {
		return b.current
	}
	return nil
}

// BuildCatalog returns a catalog no older than the TTL. force skips the
// cache; a non-nil retryOverride replaces the configured retries and also
// skips the cache. Discovery failures are reported in the catalog, not as
// an error. An error is returned only when applications cannot be loaded
// and no earlier catalog exists.
func (b *Builder) BuildCatalog(ctx context.Context, force bool, retryOverride *int) (*Catalog, error) {
	if c := b.fresh(force, retryOverride); c != nil {
		return c, nil
	}

	b.rebuildMu.Lock()
	defer b.rebuildMu.Unlock()

	if c := b.fresh(force, retryOverride); c != nil {
		return c, nil
	}

	retries := b.opts.Retries
	if retryOverride != nil {
		retries = max(0, *retryOverride)
	}

	ctx, span := tracer.Start(ctx, "catalog.rebuild")
	defer span.End()
	// The rebuilt catalog is shared by every caller, so one caller going
	// away must not fail the fetches. Per-request fetch timeouts bound it.
	ctx = context.WithoutCancel(ctx)
	span.SetAttributes(attribute.Int("catalog.retries", retries), attribute.Bool("catalog.force", force))

	apps, err := b.apps.ListEnabledApplications(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loading applications")
		if last := b.Current(); last != nil {
			b.logger.Warn("serving previous catalog; loading applications failed", "error", err)
			return last, nil
		}
		return nil, fmt.Errorf("loading applications: %w", err)
	}

	results := make([]*openapi.FetchResult, len(apps))
	var g errgroup.Group
	if b.opts.Concurrency > 0 {
		g.SetLimit(b.opts.Concurrency)
	}
	for i, app := range apps {
		g.Go(func() error {
			results[i] = b.fetcher.FetchSpecWithDiagnostics(ctx, app.BaseURL, app.OpenAPIPath, retries, app.Domain)
			return nil
		})
	}
	_ = g.Wait()

	cat, discoveries := b.assemble(apps, results)
	span.SetAttributes(attribute.Int("catalog.tools", len(cat.Tools)), attribute.Int("catalog.apps", len(apps)))

	b.mu.Lock()
	b.current = cat
	b.mu.Unlock()

	summary := cat.Summary()
	b.logger.Info("catalog rebuilt",
		"apps", summary.TotalApps,
		"healthy", summary.Healthy,
		"zero_endpoints", summary.ZeroEndpoints,
		"unreachable", summary.Unreachable,
		"tools", summary.ToolCount)

	if b.syncer != nil {
		syncCtx, cancel := context.WithTimeout(ctx, b.opts.SyncTimeout)
		if err := b.syncer.SyncApplications(syncCtx, discoveries); err != nil {
			b.logger.Warn("registry sync failed", "error", err)
		}
		cancel()
	}
	return cat, nil
}

// assemble classifies fetch results and merges every app's tools into one
// uniquely named set.
func (b *Builder) assemble(apps []store.Application, results []*openapi.FetchResult) (*Catalog, []registry.AppDiscovery) {
	cat := &Catalog{
		Tools:      make(map[string]*openapi.ToolDefinition),
		SyncErrors: []string{},
		Apps:       make([]AppDiagnostics, 0, len(apps)),
	}
	taken := make(map[string]bool)
	discoveries := make([]registry.AppDiscovery, 0, len(apps))

	for i, app := range apps {
		res := results[i]
		target := openapi.App{Name: app.Name, BaseURL: app.BaseURL, Domain: app.Domain}
		diag := AppDiagnostics{
			Name:                    app.Name,
			URL:                     app.BaseURL,
			OpenAPIPath:             app.OpenAPIPath,
			IncludeUnreachableTools: app.IncludeUnreachableTools,
			Status:                  StatusHealthy,
			UsedURL:                 res.UsedURL,
			CandidateURLs:           res.Candidates,
			Rounds:                  res.Rounds,
			Requests:                res.Requests,
			LatencyMS:               res.LatencyMS,
		}
		if diag.CandidateURLs == nil {
			diag.CandidateURLs = []string{}
		}

		var tools []openapi.ToolDefinition
		discovery := registry.AppDiscovery{App: app}
		if res.OK {
			diag.OperationCount = openapi.CountOperations(res.Doc)
			tools = openapi.SynthesizeTools(target, res.Doc)
			if diag.OperationCount == 0 {
				diag.Status = StatusZeroEndpoints
				diag.Error = zeroEndpointsMessage
			}
		} else {
			diag.Status = StatusUnreachable
			diag.Error = "OpenAPI fetch failed"
			if res.Err != nil {
				diag.Error = res.Err.Error()
			}
			discovery.Err = res.Err
			if discovery.Err == nil {
				discovery.Err = fmt.Errorf("%s", diag.Error)
			}
		}

		if app.IncludeUnreachableTools && diag.Status != StatusHealthy {
			diag.PlaceholderToolAdded = true
			tools = append(tools, openapi.PlaceholderTool(target, diag.Error))
		}

		for j := range tools {
			tool := &tools[j]
			if taken[tool.Name] {
				tool.Name = openapi.UniqueName(tool.Name, taken)
			}
			taken[tool.Name] = true
			cat.Tools[tool.Name] = tool
			diag.ToolCount++
		}
		discovery.Tools = tools

		if diag.Status != StatusHealthy {
			cat.SyncErrors = append(cat.SyncErrors, fmt.Sprintf("%s (%s): %s", app.Name, app.BaseURL, diag.Error))
			b.logger.Warn("application discovery degraded", "app", app.Name, "status", diag.Status, "error", diag.Error)
		}
		cat.Apps = append(cat.Apps, diag)
		discoveries = append(discoveries, discovery)
	}

	cat.GeneratedAt = b.now()
	return cat, discoveries
}
