// Command fitmerge-upload sends a directory of platform export files to a
// running FitMerge server's ingest API. Already-uploaded files are tracked
// in a local state database and skipped on later runs.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/fitmerge/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "FitMerge server URL (e.g. https://fitmerge.tail1234.ts.net)")
	apiKey := flag.String("api-key", "", "ingest API key (or FITMERGE_AUTH_API_KEY)")
	exportPath := flag.String("path", "", "path to export directory")
	dryRun := flag.Bool("dry-run", false, "parse and classify but don't send to server")
	stateDir := flag.String("state-dir", "", "state database directory (default: <path>/.fitmerge)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("fitmerge-upload", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exportPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: fitmerge-upload -server <URL> -api-key <key> -path <export dir> [-dry-run]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}
	key := *apiKey
	if key == "" {
		key = os.Getenv("FITMERGE_AUTH_API_KEY")
	}
	if key == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -api-key is required (or set FITMERGE_AUTH_API_KEY)\n")
		os.Exit(1)
	}

	dir := *stateDir
	if dir == "" {
		dir = filepath.Join(*exportPath, ".fitmerge")
	}
	state, err := upload.OpenStateDB(dir)
	if err != nil {
		log.Error("failed to open state db", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	client := upload.NewClient(*serverURL, key)
	up := upload.NewUploader(client, state, *exportPath, *dryRun, log)

	stats, err := up.Run()
	if err != nil {
		log.Error("upload failed", "error", err)
		os.Exit(1)
	}

	log.Info("upload complete",
		"total", stats.FilesTotal,
		"uploaded", stats.FilesUploaded,
		"skipped", stats.FilesSkipped,
		"errored", stats.FilesErrored,
		"converted", stats.RecordsConverted,
		"accepted", stats.RecordsAccepted,
		"duplicates", stats.DuplicatesDropped,
		"conflicts", stats.ConflictsDetected,
		"dry_run", *dryRun)
	if stats.ConflictsDetected > 0 {
		log.Info("conflicts pending on server", "count", stats.ConflictsDetected,
			"hint", "resolve via /api/v1/conflicts or the MCP tools")
	}
}
