// Package reconcile ties the engine together: incoming synced batches are
// screened for duplicates, surviving records are persisted and audited, and
// collisions with manual records become pending conflicts the user resolves
// one at a time.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/conflict"
	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/observability"
	"github.com/claude/fitmerge/internal/storage"
)

// Config tunes the pipeline's detectors.
type Config struct {
	Dedupe            dedupe.Options
	MinOverlapMinutes int
}

// DefaultConfig returns the stock detector settings.
func DefaultConfig() Config {
	return Config{
		Dedupe:            dedupe.DefaultOptions(),
		MinOverlapMinutes: conflict.DefaultMinOverlapMinutes,
	}
}

// IngestResult reports what happened to one synced batch.
type IngestResult struct {
	Accepted       []models.ExerciseRecord `json:"accepted"`
	Rejected       []RejectedRecord        `json:"rejected,omitempty"`
	Duplicates     []models.DuplicateMatch `json:"duplicates,omitempty"`
	DuplicateCount int                     `json:"duplicateCount"`
	Conflicts      []models.Conflict       `json:"conflicts,omitempty"`
}

// RejectedRecord is a batch member that failed validation before screening.
type RejectedRecord struct {
	Record models.ExerciseRecord `json:"record"`
	Reason string                `json:"reason"`
}

// ResolveOutcome reports a conflict resolution attempt. Bad input (unknown
// conflict id, invalid choice) is a structured failure, not a Go error.
type ResolveOutcome struct {
	Success    bool                       `json:"success"`
	Error      string                     `json:"error,omitempty"`
	Resolution *models.ConflictResolution `json:"resolution,omitempty"`
	Audit      *models.AuditRecord        `json:"audit,omitempty"`
}

// Pipeline runs synced batches through deduplication and conflict detection
// and applies resolutions. Pending conflicts are held in memory keyed by id;
// the records themselves always live in the Repository.
type Pipeline struct {
	repo     storage.Repository
	audit    *audit.Manager
	detector *dedupe.Detector
	overlap  *conflict.Detector
	resolver *conflict.Resolver
	log      *slog.Logger

	mu      sync.Mutex
	pending map[string]models.Conflict
}

// New creates a Pipeline.
func New(repo storage.Repository, auditMgr *audit.Manager, cfg Config, log *slog.Logger) *Pipeline {
	return &Pipeline{
		repo:     repo,
		audit:    auditMgr,
		detector: dedupe.New(cfg.Dedupe),
		overlap:  conflict.NewDetector(cfg.MinOverlapMinutes),
		resolver: conflict.NewResolver(),
		log:      log,
		pending:  make(map[string]models.Conflict),
	}
}

// IngestSyncedBatch processes one batch of synced records. Invalid records
// are rejected up front; the rest are screened against the full existing
// history, unique ones are persisted with a creation audit each plus one
// bulk entry for the batch, and overlaps with existing manual records are
// registered as pending conflicts.
func (p *Pipeline) IngestSyncedBatch(ctx context.Context, batchID string, batch []models.ExerciseRecord) (IngestResult, error) {
	var result IngestResult

	valid := make([]models.ExerciseRecord, 0, len(batch))
	for _, rec := range batch {
		if err := rec.Validate(); err != nil {
			result.Rejected = append(result.Rejected, RejectedRecord{Record: rec, Reason: err.Error()})
			continue
		}
		valid = append(valid, rec)
	}

	existing, err := p.repo.GetExerciseHistory(ctx, storage.DateRange{})
	if err != nil {
		return IngestResult{}, fmt.Errorf("loading existing records: %w", err)
	}

	filtered := p.detector.FilterDuplicates(valid, existing)
	result.Duplicates = filtered.Duplicates
	result.DuplicateCount = filtered.DuplicateCount
	observability.RecordDuplicatesDetected(filtered.DuplicateCount)

	for _, rec := range filtered.Unique {
		if err := p.repo.SaveExerciseRecord(ctx, rec); err != nil {
			return IngestResult{}, fmt.Errorf("saving record %s: %w", rec.ID, err)
		}
		if _, err := p.audit.RecordCreation(ctx, rec); err != nil {
			return IngestResult{}, err
		}
		result.Accepted = append(result.Accepted, rec)
	}
	observability.RecordRecordsAccepted(len(result.Accepted))

	if len(result.Accepted) > 0 {
		if _, err := p.audit.RecordBulkOperation(ctx, "synced_import", batchID, len(result.Accepted)); err != nil {
			return IngestResult{}, err
		}
	}

	var manual []models.ExerciseRecord
	for _, rec := range existing {
		if rec.Source == models.SourceManual {
			manual = append(manual, rec)
		}
	}
	conflicts := p.overlap.DetectConflicts(manual, result.Accepted)
	result.Conflicts = conflicts

	p.mu.Lock()
	for _, c := range conflicts {
		p.pending[c.ID] = c
		observability.RecordConflictDetected(string(c.ConflictType))
	}
	p.mu.Unlock()

	p.log.Info("synced batch reconciled",
		"batch", batchID,
		"received", len(batch),
		"rejected", len(result.Rejected),
		"duplicates", result.DuplicateCount,
		"accepted", len(result.Accepted),
		"conflicts", len(conflicts))
	return result, nil
}

// PendingConflicts returns unresolved conflicts, oldest first.
func (p *Pipeline) PendingConflicts() []models.Conflict {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.Conflict, 0, len(p.pending))
	for _, c := range p.pending {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out
}

// GetConflict returns a pending conflict by id.
func (p *Pipeline) GetConflict(id string) (models.Conflict, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.pending[id]
	return c, ok
}

// Resolve applies a resolution choice to a pending conflict: the resolver
// computes the after state, the repository is mutated to match it, the
// resolution is audited, and the conflict leaves the pending set.
func (p *Pipeline) Resolve(ctx context.Context, conflictID string, choice models.ResolutionChoice, opts conflict.ResolveOptions) (ResolveOutcome, error) {
	p.mu.Lock()
	c, ok := p.pending[conflictID]
	p.mu.Unlock()
	if !ok {
		return ResolveOutcome{Error: fmt.Sprintf("conflict %s not found", conflictID)}, nil
	}

	res := p.resolver.Resolve(c, choice, opts)
	if !res.Success {
		return ResolveOutcome{Error: res.Error}, nil
	}

	if err := p.applyResolution(ctx, *res.Resolution); err != nil {
		return ResolveOutcome{}, err
	}
	entry, err := p.audit.RecordConflictResolution(ctx, *res.Resolution)
	if err != nil {
		return ResolveOutcome{}, err
	}

	p.mu.Lock()
	delete(p.pending, conflictID)
	p.mu.Unlock()
	observability.RecordConflictResolved(string(choice))

	p.log.Info("conflict resolved", "conflict", conflictID, "choice", choice)
	return ResolveOutcome{Success: true, Resolution: res.Resolution, Audit: &entry}, nil
}

// applyResolution mutates the store to match the resolution's after state.
// Records absent from the after state are deleted; a merged record is
// inserted in their place.
func (p *Pipeline) applyResolution(ctx context.Context, res models.ConflictResolution) error {
	after := res.AfterState
	before := res.BeforeState

	if before.ManualRecord != nil && after.ManualRecord == nil && after.MergedRecord == nil {
		if err := p.repo.DeleteRecord(ctx, before.ManualRecord.ID); err != nil {
			return fmt.Errorf("removing manual record: %w", err)
		}
	}
	if before.SyncedRecord != nil && after.SyncedRecord == nil && after.MergedRecord == nil {
		if err := p.repo.DeleteRecord(ctx, before.SyncedRecord.ID); err != nil {
			return fmt.Errorf("removing synced record: %w", err)
		}
	}
	if merged := after.MergedRecord; merged != nil {
		if before.ManualRecord != nil {
			if err := p.repo.DeleteRecord(ctx, before.ManualRecord.ID); err != nil {
				return fmt.Errorf("removing manual record: %w", err)
			}
		}
		if before.SyncedRecord != nil {
			if err := p.repo.DeleteRecord(ctx, before.SyncedRecord.ID); err != nil {
				return fmt.Errorf("removing synced record: %w", err)
			}
		}
		if err := p.repo.SaveExerciseRecord(ctx, *merged); err != nil {
			return fmt.Errorf("saving merged record: %w", err)
		}
	}
	return nil
}

// Undo reverses an audited operation. Conflict resolutions route through the
// resolution undo so the pre-resolution records come back; plain record
// mutations are reversed directly.
func (p *Pipeline) Undo(ctx context.Context, auditID string) (audit.UndoResult, error) {
	trail, err := p.audit.GetAuditTrail(ctx, audit.Query{})
	if err != nil {
		return audit.UndoResult{}, err
	}

	var action models.AuditAction
	for _, entry := range trail {
		if entry.ID == auditID {
			action = entry.Action
			break
		}
	}

	var res audit.UndoResult
	if action == models.AuditConflictResolved {
		res, err = p.audit.UndoConflictResolution(ctx, auditID)
	} else {
		res, err = p.audit.UndoRecordOperation(ctx, auditID)
	}
	if err != nil {
		return audit.UndoResult{}, err
	}
	if res.Success {
		observability.RecordUndoPerformed()
	}
	return res, nil
}
