// Command fitmerge-consumer pulls platform export payloads off Kafka and
// runs them through the reconciliation pipeline. It shares storage and
// configuration with the fitmerge server and publishes its own metrics
// endpoint.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/config"
	"github.com/claude/fitmerge/internal/consumer"
	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/ingest/healthconnect"
	"github.com/claude/fitmerge/internal/ingest/healthkit"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":9102", "metrics listen address")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("FitMerge consumer starting", "version", Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.Kafka.Enabled {
		log.Error("kafka is not enabled in config")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	auditMgr := audit.NewManager(repo, auditConfig(cfg.Audit), log)
	pipeline := reconcile.New(repo, auditMgr, reconcileConfig(cfg.Reconcile), log)
	handler := consumer.NewIngestHandler(
		healthkit.NewProvider(log),
		healthconnect.NewProvider(log),
		pipeline,
		log,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		Topic:           cfg.Kafka.Topic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Info("consumer metrics listening", "addr", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	proc := consumer.NewProcessor(reader, handler, log)
	done := make(chan error, 1)
	go func() {
		log.Info("consumer started", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID)
		done <- proc.Run(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("consumer shutdown requested", "signal", sig)
		cancel()
		<-done
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("consumer stopped with error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown error", "error", err)
	}
	log.Info("consumer stopped")
}

func openRepository(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Repository, func(), error) {
	if cfg.Database.Driver == "sqlite" {
		repo, err := storage.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("sqlite opened", "path", cfg.Database.Path)
		return repo, func() { repo.Close() }, nil
	}

	// Migrations are the server's job; the consumer only connects.
	repo, err := storage.NewPostgres(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting database: %w", err)
	}
	log.Info("database connected")
	return repo, repo.Close, nil
}

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
