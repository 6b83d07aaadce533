package mcp

import (
	"io"
	"log/slog"
	"testing"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/records"
	"github.com/claude/fitmerge/internal/storage"
)

// TestDefaultTimeRange verifies time range defaults (last 7 days) and parsing.
func TestDefaultTimeRange(t *testing.T) {
	// Both empty → defaults to last 7 days
	start, end, err := defaultTimeRange("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	diff := end.Sub(start)
	if diff.Hours() < 167 || diff.Hours() > 169 { // ~168 hours = 7 days
		t.Errorf("default range = %.0f hours, want ~168", diff.Hours())
	}

	// Explicit dates
	start, end, err = defaultTimeRange("2026-01-01", "2026-01-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Year() != 2026 || start.Month() != 1 || start.Day() != 1 {
		t.Errorf("start = %v, want 2026-01-01", start)
	}
	if end.Year() != 2026 || end.Month() != 1 || end.Day() != 31 {
		t.Errorf("end = %v, want 2026-01-31", end)
	}

	// RFC3339
	start, _, err = defaultTimeRange("2026-06-15T10:30:00Z", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Hour() != 10 || start.Minute() != 30 {
		t.Errorf("start = %v, want 10:30", start)
	}

	// Invalid
	_, _, err = defaultTimeRange("not-a-date", "")
	if err == nil {
		t.Error("expected error for invalid date")
	}
}

// TestNewRegistersTools verifies the server builds with a live Engine behind
// the DataSource seam.
func TestNewRegistersTools(t *testing.T) {
	repo := storage.NewMemoryRepository()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditMgr := audit.NewManager(repo, audit.DefaultConfig(), log)

	engine := &Engine{
		Records:  records.NewService(repo, auditMgr, log),
		Pipeline: reconcile.New(repo, auditMgr, reconcile.DefaultConfig(), log),
		Audit:    auditMgr,
		Detector: dedupe.New(dedupe.DefaultOptions()),
	}

	s := New(engine, "test", log)
	if s == nil {
		t.Fatal("server not created")
	}
}
