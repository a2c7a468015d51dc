package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cormons/controlstock/internal/db"
	"github.com/cormons/controlstock/internal/legacy"
	"github.com/cormons/controlstock/internal/logging"
	"github.com/cormons/controlstock/internal/mockvfp"
	"github.com/cormons/controlstock/internal/store"
)

func main() {
	fs := flag.NewFlagSet("mockvfp", flag.ContinueOnError)

	var addr string
	fs.StringVar(&addr, "addr", "127.0.0.1:5555", "")
	fs.StringVar(&addr, "a", "127.0.0.1:5555", "")

	var dbPath string
	fs.StringVar(&dbPath, "db", ":memory:", "")
	fs.StringVar(&dbPath, "d", ":memory:", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var cipher bool
	fs.BoolVar(&cipher, "cipher", false, "")

	var timeout time.Duration
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: mockvfp [flags]

Flags:
  -a, -addr <host:port>   listen address (default: 127.0.0.1:5555)
  -d, -db <path>          SQLite database path (default: :memory:)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -cipher                 expect and send encrypted payloads
  -timeout <dur>          per-connection deadline (default: 10s)
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	closeLog, err := logging.Setup(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}
	if err := store.SeedMock(context.Background(), database); err != nil {
		slog.Error("failed to seed mock data", "error", err)
		os.Exit(1)
	}

	srv := &mockvfp.Server{DB: database, Codec: legacy.Codec{Cipher: cipher}, Timeout: timeout}
	if err := srv.Listen(addr); err != nil {
		slog.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())
		if err := srv.Close(); err != nil {
			slog.Error("closing listener", "error", err)
		}
	}()

	slog.Info("mock legacy backend started", "addr", srv.Addr(), "cipher", cipher)
	if err := srv.Serve(); err != nil {
		slog.Error("serve error", "error", err)
		os.Exit(1)
	}

	counts, err := store.ListMockCounts(context.Background(), database)
	if err != nil {
		slog.Error("failed to list recorded counts", "error", err)
		return
	}
	for _, c := range counts {
		slog.Info("recorded count", "id", c.SolicitudID, "codigo", c.Codigo, "cantidad", c.Cantidad, "usuario", c.Usuario)
	}
	slog.Info("mock legacy backend stopped", "counts", len(counts))
}
