// Command fitmerge-import bulk-loads a directory of platform export files
// directly into the database, running every file through the same
// reconciliation pipeline the server uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/config"
	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/importer"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	exportPath := flag.String("path", "", "path to export directory (required)")
	dryRun := flag.Bool("dry-run", false, "parse and count without touching the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exportPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: fitmerge-import -config config.yaml -path /path/to/exports [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*exportPath)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: %s is not a directory\n", *exportPath)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var repo storage.Repository
	if cfg.Database.Driver == "sqlite" {
		sq, err := storage.OpenSQLite(cfg.Database.Path)
		if err != nil {
			log.Error("failed to open sqlite", "error", err)
			os.Exit(1)
		}
		defer sq.Close()
		repo = sq
	} else {
		pg, err := storage.NewPostgres(ctx, cfg.Database.DSN())
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		repo = pg
	}

	auditMgr := audit.NewManager(repo, audit.Config{
		MaxRecords:       cfg.Audit.MaxRecords,
		CleanupThreshold: cfg.Audit.CleanupThreshold,
		RetentionDays:    cfg.Audit.RetentionDays,
		UndoWindow:       time.Duration(cfg.Audit.UndoWindowHours) * time.Hour,
	}, log)

	pipeCfg := reconcile.DefaultConfig()
	pipeCfg.Dedupe = dedupe.OptionsForScenario(dedupe.Scenario(cfg.Reconcile.Scenario))
	pipeline := reconcile.New(repo, auditMgr, pipeCfg, log)

	imp := importer.New(pipeline, log, *dryRun)
	stats, err := imp.Import(ctx, *exportPath)
	if err != nil {
		log.Error("import failed", "error", err)
		os.Exit(1)
	}

	log.Info("import complete",
		"processed", stats.FilesProcessed,
		"skipped", stats.FilesSkipped,
		"errored", stats.FilesErrored,
		"converted", stats.RecordsConverted,
		"accepted", stats.RecordsAccepted,
		"duplicates", stats.DuplicatesDropped,
		"conflicts", stats.ConflictsDetected,
		"dry_run", *dryRun)
	if len(stats.SkippedFiles) > 0 {
		log.Info("unrecognized files", "files", stats.SkippedFiles)
	}
	if stats.ConflictsDetected > 0 {
		// Pending conflicts live in the serving process; a direct import
		// only reports them. Upload through a running server to resolve.
		log.Warn("conflicts detected but not registered", "count", stats.ConflictsDetected)
	}
}
