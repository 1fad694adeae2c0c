package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gridctl/toolgate/internal/api"
	"github.com/gridctl/toolgate/pkg/catalog"
	"github.com/gridctl/toolgate/pkg/config"
	"github.com/gridctl/toolgate/pkg/logging"
	"github.com/gridctl/toolgate/pkg/output"
	"github.com/gridctl/toolgate/pkg/reload"
	"github.com/gridctl/toolgate/pkg/tracing"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

var (
	serveListen string
	serveWatch  bool
	serveQuiet  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP gateway",
	Long: `Starts the HTTP server that exposes the MCP endpoint (POST /mcp) and the
catalog and registry APIs.

With --watch, registrations and policies in the config file are re-applied
whenever the file changes. Only the memory store is seeded from the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (overrides server.listen)")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "Watch the config file and apply registration changes")
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "Suppress the startup banner")
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg, err := config.LoadConfig(absPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}

	var printer *output.Printer
	if !serveQuiet {
		printer = output.New()
		printer.SetDebug(verbose)
		printer.Banner(version)
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, "toolgate", version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	a.gateway.StartCleanup(ctx)

	server := api.NewServer(a.gateway, a.builder, a.store)
	server.SetLogger(logging.WithComponent(logger, "api"))
	server.SetRegistry(a.store, a.resolver)
	server.SetAuditor(a.auditor)
	server.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	server.SetAuth(cfg.Server.Auth.Type, cfg.Server.Auth.Token, cfg.Server.Auth.Header)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		server.SetResetPublisher(rdb, cfg.Redis.Channel)

		sub := catalog.NewResetSubscriber(rdb, cfg.Redis.Channel, a.builder)
		sub.SetLogger(logging.WithComponent(logger, "catalog-reset"))
		go func() {
			if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("catalog reset subscriber stopped", "error", err)
			}
		}()
		if printer != nil {
			printer.Debug("Catalog resets shared over redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
		}
	}

	if serveWatch {
		if cfg.Store.Driver != "memory" {
			logger.Warn("config watch ignored: registrations are only seeded into the memory store", "driver", cfg.Store.Driver)
			if printer != nil {
				printer.Warn("Config watch needs the memory store", "driver", cfg.Store.Driver)
			}
		} else {
			handler := reload.NewHandler(absPath, cfg, a.store, a.builder)
			handler.SetLogger(logging.WithComponent(logger, "reload"))
			handler.SetAuditor(a.auditor)

			watcher := reload.NewWatcher(absPath, func(ctx context.Context) error {
				result, err := handler.Reload(ctx)
				if err != nil {
					return err
				}
				if printer != nil {
					printer.ReloadSummary(result.Added, result.Removed, result.Modified, result.RestartRequired)
				}
				if !result.Success {
					return errors.New(result.Message)
				}
				return nil
			})
			watcher.SetLogger(logging.WithComponent(logger, "watcher"))
			go func() {
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("config watcher stopped", "error", err)
				}
			}()
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if printer != nil {
		printer.Endpoints(cfg.Server.Listen, api.Routes)
		printer.Info("Gateway running", "listen", cfg.Server.Listen, "store", cfg.Store.Driver)
		if serveWatch && cfg.Store.Driver == "memory" {
			printer.Info("Watching config", "file", absPath)
		}
	}
	logger.Info("gateway started", "listen", cfg.Server.Listen, "version", version)

	select {
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("failed to start server on %s: %w", cfg.Server.Listen, err)
		}
		return nil
	case <-ctx.Done():
	}

	if printer != nil {
		printer.Info("Shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}
