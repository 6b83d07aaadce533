// Package audit maintains the mutation log: one entry per
// create/update/delete/resolve/undo, a rolling retention cap, filtered
// queries, statistics, and time-boxed single-use undo.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/storage"
)

// Config tunes the trail's retention and undo behaviour.
type Config struct {
	// MaxRecords is the size the trail is trimmed to during cleanup.
	MaxRecords int `yaml:"max_records"`
	// CleanupThreshold is the count at which a save triggers a trim.
	CleanupThreshold int `yaml:"cleanup_threshold"`
	// RetentionDays optionally expires entries by age. Not wired to
	// deletion: the cap-based cleanup is the authoritative mechanism, and
	// crossing the age cutoff is only logged.
	RetentionDays int `yaml:"retention_days"`
	// UndoWindow is how long an operation stays undoable.
	UndoWindow time.Duration `yaml:"undo_window"`
}

// DefaultConfig returns the stock retention settings.
func DefaultConfig() Config {
	return Config{
		MaxRecords:       100,
		CleanupThreshold: 120,
		UndoWindow:       24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRecords <= 0 {
		c.MaxRecords = 100
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = 120
	}
	if c.UndoWindow <= 0 {
		c.UndoWindow = 24 * time.Hour
	}
	return c
}

// Manager records mutations and enforces the trail's invariants. All state
// lives in the injected Repository; the Manager itself is stateless apart
// from configuration, so concurrent callers interleave at the Repository's
// consistency boundary.
type Manager struct {
	repo storage.Repository
	cfg  Config
	log  *slog.Logger
	now  func() time.Time
}

// NewManager creates a Manager. Zero config fields fall back to defaults.
func NewManager(repo storage.Repository, cfg Config, log *slog.Logger) *Manager {
	return &Manager{
		repo: repo,
		cfg:  cfg.withDefaults(),
		log:  log,
		now:  time.Now,
	}
}

func (m *Manager) newAudit(action models.AuditAction, recordID string) models.AuditRecord {
	return models.AuditRecord{
		ID:        fmt.Sprintf("audit-%s", uuid.NewString()),
		Action:    action,
		Timestamp: m.now(),
		RecordID:  recordID,
	}
}

// RecordCreation logs a record creation.
func (m *Manager) RecordCreation(ctx context.Context, rec models.ExerciseRecord) (models.AuditRecord, error) {
	entry := m.newAudit(models.AuditRecordCreated, rec.ID)
	entry.After = &models.AuditSnapshot{Record: &rec}
	entry.Metadata = models.AuditMetadata{Source: rec.Source, Platform: rec.Platform}
	return entry, m.save(ctx, entry)
}

// RecordUpdate logs a record update with its before/after pair and the list
// of fields that changed.
func (m *Manager) RecordUpdate(ctx context.Context, before, after models.ExerciseRecord, updatedFields []string) (models.AuditRecord, error) {
	entry := m.newAudit(models.AuditRecordUpdated, after.ID)
	entry.Before = &models.AuditSnapshot{Record: &before}
	entry.After = &models.AuditSnapshot{Record: &after}
	entry.Metadata = models.AuditMetadata{
		Source:        after.Source,
		Platform:      after.Platform,
		UpdatedFields: updatedFields,
	}
	return entry, m.save(ctx, entry)
}

// RecordDeletion logs a record deletion, keeping the deleted state as the
// before snapshot so the operation can be reversed.
func (m *Manager) RecordDeletion(ctx context.Context, rec models.ExerciseRecord) (models.AuditRecord, error) {
	entry := m.newAudit(models.AuditRecordDeleted, rec.ID)
	entry.Before = &models.AuditSnapshot{Record: &rec}
	entry.Metadata = models.AuditMetadata{Source: rec.Source, Platform: rec.Platform}
	return entry, m.save(ctx, entry)
}

// RecordConflictResolution logs a conflict resolution. The resolution
// itself carries the before/after states of both records.
func (m *Manager) RecordConflictResolution(ctx context.Context, res models.ConflictResolution) (models.AuditRecord, error) {
	entry := m.newAudit(models.AuditConflictResolved, res.ConflictID)
	entry.After = &models.AuditSnapshot{Resolution: &res}
	entry.Metadata = models.AuditMetadata{Operation: string(res.Choice)}
	return entry, m.save(ctx, entry)
}

// RecordBulkOperation logs one entry for a batch mutation, such as a synced
// import accepting several records at once.
func (m *Manager) RecordBulkOperation(ctx context.Context, operation, batchID string, batchSize int) (models.AuditRecord, error) {
	entry := m.newAudit(models.AuditRecordCreated, batchID)
	entry.Metadata = models.AuditMetadata{Operation: operation, BatchSize: batchSize}
	return entry, m.save(ctx, entry)
}

// save persists the entry and runs the rolling cleanup. The count check and
// the trim are two Repository calls, so concurrent writers may interleave
// between them; the trim itself is atomic.
func (m *Manager) save(ctx context.Context, entry models.AuditRecord) error {
	if err := m.repo.SaveAuditRecord(ctx, entry); err != nil {
		return fmt.Errorf("saving audit record: %w", err)
	}
	return m.cleanup(ctx)
}

func (m *Manager) cleanup(ctx context.Context) error {
	trail, err := m.repo.GetAuditTrail(ctx, 0)
	if err != nil {
		return fmt.Errorf("counting audit records: %w", err)
	}
	if len(trail) < m.cfg.CleanupThreshold {
		return nil
	}

	if err := m.repo.CleanupOldAuditRecords(ctx, m.cfg.MaxRecords); err != nil {
		return fmt.Errorf("cleaning up audit records: %w", err)
	}
	m.log.Info("audit trail trimmed", "had", len(trail), "kept", m.cfg.MaxRecords)

	if m.cfg.RetentionDays > 0 {
		cutoff := m.now().AddDate(0, 0, -m.cfg.RetentionDays)
		m.log.Debug("age-based retention configured but not enforced", "cutoff", cutoff)
	}
	return nil
}

// Query filters an audit trail read. Zero fields match everything.
type Query struct {
	Action   models.AuditAction
	RecordID string
	From     time.Time
	To       time.Time
	Limit    int
}

// GetAuditTrail returns matching entries newest-first, honoring the limit.
func (m *Manager) GetAuditTrail(ctx context.Context, q Query) ([]models.AuditRecord, error) {
	trail, err := m.repo.GetAuditTrail(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}

	var out []models.AuditRecord
	for _, entry := range trail {
		if q.Action != "" && entry.Action != q.Action {
			continue
		}
		if q.RecordID != "" && entry.RecordID != q.RecordID {
			continue
		}
		if !q.From.IsZero() && entry.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && entry.Timestamp.After(q.To) {
			continue
		}
		out = append(out, entry)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
