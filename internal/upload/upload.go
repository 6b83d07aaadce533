// Package upload walks a directory of platform export files and POSTs each
// one to a running FitMerge server's ingest API. A local SQLite state
// database remembers what was already sent so repeated runs only upload new
// or changed files.
package upload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	RecordsConverted  int
	RecordsAccepted   int
	DuplicatesDropped int
	ConflictsDetected int
}

// Uploader walks an export directory and sends each recognized file to the
// server.
type Uploader struct {
	client *Client
	state  *StateDB
	dir    string
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// NewUploader creates an Uploader. A nil state database disables
// already-uploaded tracking (every file is sent).
func NewUploader(client *Client, state *StateDB, dir string, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{client: client, state: state, dir: dir, dryRun: dryRun, log: log}
}

// Run uploads every .json export under the directory, in name order.
func (u *Uploader) Run() (*Stats, error) {
	files, err := filepath.Glob(filepath.Join(u.dir, "*.json"))
	if err != nil {
		return &u.stats, err
	}
	sort.Strings(files)
	u.stats.FilesTotal = len(files)

	for _, f := range files {
		if err := u.uploadFile(f); err != nil {
			u.log.Warn("upload failed", "file", f, "error", err)
			u.stats.FilesErrored++
		}
	}
	return &u.stats, nil
}

func (u *Uploader) uploadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	endpoint, err := ingestEndpoint(data)
	if err != nil {
		u.stats.FilesSkipped++
		u.log.Info("skipping file", "file", path, "reason", err)
		return nil
	}

	rel := filepath.Base(path)
	var hash string
	if u.state != nil {
		hash, err = HashFile(path)
		if err != nil {
			return err
		}
		sent, err := u.state.AlreadySent(rel, int64(len(data)), hash)
		if err != nil {
			return err
		}
		if sent {
			u.stats.FilesSkipped++
			u.log.Info("already uploaded", "file", path)
			return nil
		}
	}

	if u.dryRun {
		u.log.Info("dry run", "file", path, "endpoint", endpoint)
		return nil
	}

	res, err := u.client.SendExport(endpoint, data)
	if err != nil {
		return err
	}
	if u.state != nil {
		if err := u.state.MarkSent(rel, int64(len(data)), hash, res.BatchID); err != nil {
			u.log.Warn("state update failed", "file", path, "error", err)
		}
	}

	u.stats.FilesUploaded++
	u.stats.RecordsConverted += res.Converted
	u.stats.RecordsAccepted += res.Accepted
	u.stats.DuplicatesDropped += res.Dropped
	u.stats.ConflictsDetected += res.Conflicts

	u.log.Info("file uploaded",
		"file", path,
		"batch", res.BatchID,
		"accepted", res.Accepted,
		"duplicates", res.Dropped,
		"conflicts", res.Conflicts)
	return nil
}

// ingestEndpoint picks the server endpoint from the export envelope:
// HealthKit exports carry data.workouts, Health Connect exports carry
// sessions.
func ingestEndpoint(data []byte) (string, error) {
	var probe struct {
		Data *struct {
			Workouts json.RawMessage `json:"workouts"`
		} `json:"data"`
		Sessions json.RawMessage `json:"sessions"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("not a JSON export: %w", err)
	}

	switch {
	case probe.Data != nil && probe.Data.Workouts != nil:
		return "/api/v1/ingest/healthkit", nil
	case probe.Sessions != nil:
		return "/api/v1/ingest/healthconnect", nil
	}
	return "", fmt.Errorf("unrecognized export envelope")
}
