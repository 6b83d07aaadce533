package importer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/storage"
)

const healthkitExport = `{"data":{"workouts":[
	{"id":"hk-1","name":"Running","start":794041200,"duration":1800}
]}}`

const healthconnectExport = `{"sessions":[
	{"id":"hc-1","exerciseType":"Cycling","startTime":"2026-03-02T08:00:00Z","endTime":"2026-03-02T08:45:00Z"}
]}`

func newTestImporter(t *testing.T, dryRun bool) (*Importer, *storage.MemoryRepository) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := storage.NewMemoryRepository()
	auditMgr := audit.NewManager(repo, audit.DefaultConfig(), log)
	pipeline := reconcile.New(repo, auditMgr, reconcile.DefaultConfig(), log)
	return New(pipeline, log, dryRun), repo
}

func writeExport(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportDirectory(t *testing.T) {
	imp, repo := newTestImporter(t, false)
	dir := t.TempDir()
	writeExport(t, dir, "healthkit.json", healthkitExport)
	writeExport(t, dir, "healthconnect.json", healthconnectExport)

	stats, err := imp.Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}

	if stats.FilesProcessed != 2 {
		t.Errorf("processed=%d, want 2", stats.FilesProcessed)
	}
	if stats.RecordsConverted != 2 {
		t.Errorf("converted=%d, want 2", stats.RecordsConverted)
	}
	if stats.RecordsAccepted != 2 {
		t.Errorf("accepted=%d, want 2", stats.RecordsAccepted)
	}

	recs, err := repo.GetExerciseHistory(context.Background(), storage.DateRange{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for _, rec := range recs {
		if rec.Source != models.SourceSynced {
			t.Errorf("record %s source=%q, want synced", rec.ID, rec.Source)
		}
	}
}

func TestImportDryRun(t *testing.T) {
	imp, repo := newTestImporter(t, true)
	dir := t.TempDir()
	writeExport(t, dir, "healthkit.json", healthkitExport)

	stats, err := imp.Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.RecordsConverted != 1 {
		t.Errorf("converted=%d, want 1", stats.RecordsConverted)
	}
	if stats.RecordsAccepted != 0 {
		t.Errorf("accepted=%d, want 0 in dry run", stats.RecordsAccepted)
	}

	recs, err := repo.GetExerciseHistory(context.Background(), storage.DateRange{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("dry run persisted %d records", len(recs))
	}
}

func TestImportSkipsUnrecognizedFiles(t *testing.T) {
	imp, _ := newTestImporter(t, false)
	dir := t.TempDir()
	writeExport(t, dir, "notes.json", `{"notes":"not an export"}`)

	stats, err := imp.Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 {
		t.Errorf("skipped=%d, want 1", stats.FilesSkipped)
	}
	if stats.FilesProcessed != 0 {
		t.Errorf("processed=%d, want 0", stats.FilesProcessed)
	}
}

func TestImportCountsBadJSON(t *testing.T) {
	imp, _ := newTestImporter(t, false)
	dir := t.TempDir()
	writeExport(t, dir, "broken.json", `{not json`)

	stats, err := imp.Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 {
		t.Errorf("skipped=%d, want 1", stats.FilesSkipped)
	}
}

func TestSniffPlatform(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    models.Platform
		wantErr bool
	}{
		{"healthkit", healthkitExport, models.PlatformAppleHealthKit, false},
		{"healthconnect", healthconnectExport, models.PlatformGoogleHealthConnect, false},
		{"empty object", `{}`, "", true},
		{"empty sessions", `{"sessions":[]}`, models.PlatformGoogleHealthConnect, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SniffPlatform([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("platform=%q, want %q", got, tc.want)
			}
		})
	}
}
