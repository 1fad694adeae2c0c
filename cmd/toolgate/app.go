package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/gridctl/toolgate/pkg/audit"
	"github.com/gridctl/toolgate/pkg/catalog"
	"github.com/gridctl/toolgate/pkg/config"
	"github.com/gridctl/toolgate/pkg/credentials"
	"github.com/gridctl/toolgate/pkg/logging"
	"github.com/gridctl/toolgate/pkg/mcp"
	"github.com/gridctl/toolgate/pkg/openapi"
	"github.com/gridctl/toolgate/pkg/policy"
	"github.com/gridctl/toolgate/pkg/registry"
	"github.com/gridctl/toolgate/pkg/reload"
	"github.com/gridctl/toolgate/pkg/store"
)

// app holds the wired components shared by serve and catalog.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	resolver *policy.Resolver
	syncer   *registry.Synchronizer
	builder  *catalog.Builder
	gateway  *mcp.Gateway
	auditor  audit.Recorder
	closers  []io.Closer
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	level := logging.ParseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if cfg.File != "" {
		file := logging.NewFileWriter(logging.FileConfig{Path: cfg.File, Compress: true})
		out = io.MultiWriter(os.Stderr, file)
		closer = file
	}

	return logging.NewStructuredLogger(logging.Config{
		Level:  level,
		Format: logging.ParseFormat(cfg.Format),
		Output: out,
		Redact: true,
	}), closer
}

// openStore connects the configured store and seeds the memory driver.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgresStore(ctx, store.PostgresConfig{DSN: cfg.Store.DSN})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return st, nil
	default:
		st := store.NewMemoryStore()
		if err := reload.Seed(ctx, st, cfg); err != nil {
			return nil, err
		}
		return st, nil
	}
}

func tokenSource(cfg config.CredentialsConfig) credentials.TokenSource {
	if len(cfg.Domains) == 0 {
		return credentials.None
	}
	domains := make(map[string]credentials.DomainConfig, len(cfg.Domains))
	for tag, d := range cfg.Domains {
		domains[tag] = credentials.DomainConfig{
			TokenURL:     d.TokenURL,
			ClientID:     d.ClientID,
			ClientSecret: d.ClientSecret,
			Scopes:       d.Scopes,
		}
	}
	return credentials.NewProvider(domains)
}

// newApp wires every component from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, logCloser := newLogger(cfg.Logging)

	st, err := openStore(ctx, cfg)
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}

	tokens := tokenSource(cfg.Credentials)
	fallback, _ := store.ParseMode(cfg.Policy.Fallback)
	seedMode, _ := store.ParseMode(cfg.Policy.SeedMode)

	resolver := policy.NewResolver(st, fallback)

	syncer := registry.NewSynchronizer(st, resolver, seedMode)
	syncer.SetLogger(logging.WithComponent(logger, "registry"))

	fetcher := openapi.NewFetcher(&http.Client{}, tokens)
	fetcher.SetTimeout(cfg.Catalog.FetchTimeout)
	fetcher.SetLogger(logging.WithComponent(logger, "fetcher"))

	builder := catalog.NewBuilder(st, fetcher, catalog.Options{
		TTL:         cfg.Catalog.TTL,
		Retries:     cfg.Catalog.FetchRetries,
		Concurrency: cfg.Catalog.Concurrency,
		SyncTimeout: cfg.Catalog.SyncTimeout,
	})
	builder.SetLogger(logging.WithComponent(logger, "catalog"))
	builder.SetSyncer(syncer)

	invoker := openapi.NewInvoker(&http.Client{}, tokens)
	invoker.SetLogger(logging.WithComponent(logger, "invoker"))

	dialer := mcp.NewSDKDialer(&http.Client{}, tokens, version)
	dialer.SetLogger(logging.WithComponent(logger, "native"))

	gateway := mcp.NewGateway(builder, st, resolver, invoker, dialer)
	gateway.SetLogger(logging.WithComponent(logger, "gateway"))
	gateway.SetVersion(version)
	gateway.SetReconciler(syncer)
	gateway.SetTimeouts(cfg.Native.ProbeTimeout, cfg.Native.CallTimeout)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		resolver: resolver,
		syncer:   syncer,
		builder:  builder,
		gateway:  gateway,
		auditor:  audit.NewLogRecorder(logging.WithComponent(logger, "audit")),
	}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}
	return a, nil
}

// Close releases the store and log file.
func (a *app) Close() {
	a.gateway.Close()
	a.store.Close()
	for _, c := range a.closers {
		_ = c.Close()
	}
}
