// Command fitmerge-mcp exposes the reconciliation engine to MCP clients
// over stdio. It runs in one of two modes: -remote-url points the tools at
// a running fitmerge server's REST API; without it the engine runs
// in-process against the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/config"
	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/mcp"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/records"
	"github.com/claude/fitmerge/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (local mode)")
	remoteURL := flag.String("remote-url", "", "base URL of a running fitmerge server; leave empty for local mode")
	flag.Parse()

	// Stdout carries the MCP transport; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ds, cleanup, err := buildDataSource(*remoteURL, *configPath, log)
	if err != nil {
		log.Error("failed to build data source", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := mcp.New(ds, Version, log)
	if err := server.ServeStdio(srv); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}

func buildDataSource(remoteURL, configPath string, log *slog.Logger) (mcp.DataSource, func(), error) {
	if remoteURL != "" {
		log.Info("mcp remote mode", "url", remoteURL)
		return mcp.NewHTTPClient(remoteURL), func() {}, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	var repo storage.Repository
	cleanup := func() {}
	if cfg.Database.Driver == "sqlite" {
		sq, err := storage.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		repo, cleanup = sq, func() { sq.Close() }
	} else {
		pg, err := storage.NewPostgres(context.Background(), cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting database: %w", err)
		}
		repo, cleanup = pg, pg.Close
	}

	auditMgr := audit.NewManager(repo, audit.Config{
		MaxRecords:       cfg.Audit.MaxRecords,
		CleanupThreshold: cfg.Audit.CleanupThreshold,
		RetentionDays:    cfg.Audit.RetentionDays,
		UndoWindow:       time.Duration(cfg.Audit.UndoWindowHours) * time.Hour,
	}, log)

	opts := dedupe.OptionsForScenario(dedupe.Scenario(cfg.Reconcile.Scenario))
	if cfg.Reconcile.TimeToleranceMinutes > 0 {
		opts.TimeToleranceMinutes = cfg.Reconcile.TimeToleranceMinutes
	}
	if cfg.Reconcile.NameMatchThreshold > 0 {
		opts.NameMatchThreshold = cfg.Reconcile.NameMatchThreshold
	}
	if cfg.Reconcile.DurationToleranceMinutes > 0 {
		opts.DurationToleranceMinutes = cfg.Reconcile.DurationToleranceMinutes
	}
	pipeCfg := reconcile.DefaultConfig()
	pipeCfg.Dedupe = opts
	if cfg.Reconcile.MinOverlapMinutes > 0 {
		pipeCfg.MinOverlapMinutes = cfg.Reconcile.MinOverlapMinutes
	}

	engine := &mcp.Engine{
		Records:  records.NewService(repo, auditMgr, log),
		Pipeline: reconcile.New(repo, auditMgr, pipeCfg, log),
		Audit:    auditMgr,
		Detector: dedupe.New(opts),
	}
	log.Info("mcp local mode", "driver", cfg.Database.Driver)
	return engine, cleanup, nil
}
