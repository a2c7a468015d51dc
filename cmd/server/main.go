package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cormons/controlstock/internal/api"
	"github.com/cormons/controlstock/internal/auth"
	"github.com/cormons/controlstock/internal/config"
	"github.com/cormons/controlstock/internal/db"
	"github.com/cormons/controlstock/internal/legacy"
	"github.com/cormons/controlstock/internal/logging"
	"github.com/cormons/controlstock/internal/metrics"
	"github.com/cormons/controlstock/internal/store"
	"github.com/cormons/controlstock/internal/web"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprint(os.Stderr, config.Usage)
		os.Exit(1)
	}

	// INFO/WARN → stdout, ERROR → stderr, optionally also to a file.
	closeLog, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	database, err := db.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "path", cfg.DB)

	// Master secret is generated on first run.
	master, err := store.GetMasterSecret(context.Background(), database)
	if err != nil {
		slog.Error("failed to get master secret", "error", err)
		os.Exit(1)
	}
	keys, err := auth.DeriveKeys(master)
	if err != nil {
		slog.Error("failed to derive keys", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	client := legacy.NewClient(legacy.Config{
		Enabled:  cfg.Legacy.Enabled,
		Timeout:  cfg.Legacy.Timeout,
		MaxReply: cfg.Legacy.MaxRead,
		Cipher:   cfg.Legacy.Cipher,
		Breaker:  legacy.DefaultBreakerConfig(),
		OnState:  m.ObserveBreaker,
		Observe:  m.ObserveLegacy,
	})
	service := legacy.NewService(client, cfg.Version)
	if cfg.Legacy.View != "" {
		service.View = cfg.Legacy.View
	}

	sessions := &auth.Sessions{DB: database, Keys: keys, DefaultAddr: cfg.Legacy.Addr}

	apiRouter := api.NewRouter(api.Deps{
		Sessions: sessions,
		Legacy:   service,
		Metrics:  m,
		LoginURL: cfg.LoginURL,
	})
	webRouter, err := web.NewRouter(&web.Server{
		Sessions:  sessions,
		Legacy:    service,
		LoginURL:  cfg.LoginURL,
		LogoutURL: cfg.LogoutURL,
		Version:   cfg.Version,
	})
	if err != nil {
		slog.Error("failed to set up web router", "error", err)
		os.Exit(1)
	}

	// JSON endpoints take priority, pages handle the rest.
	mux := http.NewServeMux()
	mux.Handle("/control-stock/pendientes/", apiRouter)
	mux.Handle("/control-stock/registrar/", apiRouter)
	mux.Handle("/healthz", apiRouter)
	mux.Handle("/metrics", apiRouter)
	mux.Handle("/", webRouter)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(m.ObserveHTTP)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "legacy", cfg.Legacy.Addr, "legacy_enabled", cfg.Legacy.Enabled)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped, closing database")
}
