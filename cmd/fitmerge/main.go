package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailscale.com/tsnet"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/config"
	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/ingest/healthconnect"
	"github.com/claude/fitmerge/internal/ingest/healthkit"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/records"
	"github.com/claude/fitmerge/internal/server"
	"github.com/claude/fitmerge/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("FitMerge starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	repo, closeRepo, err := openRepository(ctx, cfg, *migrateOnly, log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	if repo == nil {
		// migrate-only run
		return
	}
	defer closeRepo()

	// Wire the engine
	auditMgr := audit.NewManager(repo, auditConfig(cfg.Audit), log)
	pipeline := reconcile.New(repo, auditMgr, reconcileConfig(cfg.Reconcile), log)
	recordSvc := records.NewService(repo, auditMgr, log)
	hk := healthkit.NewProvider(log)
	hc := healthconnect.NewProvider(log)

	srv := server.New(recordSvc, pipeline, auditMgr, hk, hc, cfg.Auth.APIKey, log)

	// Listen over tsnet when enabled, plain TCP otherwise
	var listener net.Listener
	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}

// openRepository opens the configured backend. For postgres it runs
// migrations first; a migrate-only run returns a nil repository after they
// apply. SQLite bootstraps its own schema on open.
func openRepository(ctx context.Context, cfg *config.Config, migrateOnly bool, log *slog.Logger) (storage.Repository, func(), error) {
	if cfg.Database.Driver == "sqlite" {
		repo, err := storage.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("sqlite opened", "path", cfg.Database.Path)
		if migrateOnly {
			repo.Close()
			return nil, nil, nil
		}
		return repo, func() { repo.Close() }, nil
	}

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	log.Info("migrations applied")
	if migrateOnly {
		log.Info("migrate-only: exiting")
		return nil, nil, nil
	}

	repo, err := storage.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	log.Info("database connected")
	return repo, repo.Close, nil
}

// reconcileConfig maps the config section onto detector settings: the
// scenario preset is the base, explicit tolerances override it.
func reconcileConfig(rc config.ReconcileConfig) reconcile.Config {
	opts := dedupe.OptionsForScenario(dedupe.Scenario(rc.Scenario))
	if rc.TimeToleranceMinutes > 0 {
		opts.TimeToleranceMinutes = rc.TimeToleranceMinutes
	}
	if rc.NameMatchThreshold > 0 {
		opts.NameMatchThreshold = rc.NameMatchThreshold
	}
	if rc.DurationToleranceMinutes > 0 {
		opts.DurationToleranceMinutes = rc.DurationToleranceMinutes
	}

	out := reconcile.DefaultConfig()
	out.Dedupe = opts
	if rc.MinOverlapMinutes > 0 {
		out.MinOverlapMinutes = rc.MinOverlapMinutes
	}
	return out
}

func auditConfig(ac config.AuditConfig) audit.Config {
	return audit.Config{
		MaxRecords:       ac.MaxRecords,
		CleanupThreshold: ac.CleanupThreshold,
		RetentionDays:    ac.RetentionDays,
		UndoWindow:       time.Duration(ac.UndoWindowHours) * time.Hour,
	}
}
