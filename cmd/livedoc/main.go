package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/livedoc/internal/config"
	"github.com/dshills/livedoc/internal/lsp"
	"github.com/dshills/livedoc/internal/mcp"
	"github.com/dshills/livedoc/internal/storage"
	"github.com/dshills/livedoc/internal/workspace"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("livedoc\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "livedoc: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("livedoc", flag.ContinueOnError)
	configPath := flags.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a YAML configuration file")
	transport := flags.String("transport", "mcp", "protocol served on stdio: mcp or lsp")
	logFile := flags.String("logfile", "", "write logs to this file instead of stderr")
	verbose := flags.Bool("verbose", false, "log at debug level")
	noJournal := flags.Bool("no-journal", false, "do not record reparses in the journal database")
	load := flags.String("load", "", "open every Go file under this directory at startup")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs go to stderr or a file
	verbosity := cfg.Verbosity()
	if *verbose {
		verbosity = 2
	}
	var logPath *string
	if *logFile != "" {
		logPath = logFile
	}
	commonlog.Configure(verbosity, logPath)
	log := commonlog.GetLogger("livedoc")

	log.Noticef("livedoc %s starting (transport %s, engine %s, %s sqlite)", version, *transport, cfg.Engine, storage.BuildMode)

	var store storage.Storage
	if !*noJournal {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		sqlite, err := storage.NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func() { _ = sqlite.Close() }()
		store = sqlite
	}

	ws, err := workspace.New(workspace.Options{
		Reparse: cfg.ReparseConfig(),
		Engine:  cfg.Engine,
		Storage: store,
		Watch:   cfg.Watch,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Shutdown(); err != nil {
			log.Errorf("shutdown: %s", err.Error())
		}
	}()

	serve, err := newTransport(*transport, cfg, ws, store)
	if err != nil {
		return err
	}

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if *load != "" {
		g.Go(func() error {
			stats, err := ws.LoadDir(gctx, *load, &workspace.LoadOptions{Workers: cfg.LoadWorkers, IncludeTests: true})
			if err != nil {
				log.Errorf("load %s: %s", *load, err.Error())
				return nil
			}
			for _, msg := range stats.ErrorMessages {
				log.Warningf("load: %s", msg)
			}
			return nil
		})
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- serve(gctx)
	}()

	// Wait for shutdown signal or the transport to end
	select {
	case <-ctx.Done():
		log.Noticef("received signal, shutting down")
	case err = <-errChan:
		stop()
	}
	if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
		log.Errorf("startup load: %s", werr.Error())
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	log.Noticef("server stopped")
	return nil
}

func newTransport(name string, cfg *config.Config, ws *workspace.Workspace, store storage.Storage) (func(context.Context) error, error) {
	switch name {
	case "mcp":
		server, err := mcp.NewServer(cfg, ws, store)
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP server: %w", err)
		}
		return server.Serve, nil
	case "lsp":
		server := lsp.NewServer(ws)
		// glsp has no context-aware runner; the process exits with the client
		return func(context.Context) error { return server.RunStdio() }, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want mcp or lsp)", name)
	}
}
