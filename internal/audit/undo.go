package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/fitmerge/internal/models"
)

// UndoCheck reports whether an operation can be undone and, when it
// cannot, why. Ineligibility is always a reason string, never an error.
type UndoCheck struct {
	CanUndo bool   `json:"canUndo"`
	Reason  string `json:"reason,omitempty"`
}

// UndoResult reports the outcome of an undo attempt.
type UndoResult struct {
	Success bool                `json:"success"`
	Reason  string              `json:"reason,omitempty"`
	Audit   *models.AuditRecord `json:"audit,omitempty"`
}

// undoneIndex maps original audit ids to the undo entry that reversed them.
// Derived from the trail on demand; rebuildable, never stored.
type undoneIndex map[string]string

func buildUndoneIndex(trail []models.AuditRecord) undoneIndex {
	idx := make(undoneIndex)
	for _, entry := range trail {
		if entry.Metadata.OriginalAuditID != "" {
			idx[entry.Metadata.OriginalAuditID] = entry.ID
		}
		// Legacy resolution undos referenced the original only through
		// their before snapshot.
		if entry.Action == models.AuditResolutionUndone && entry.Before != nil && entry.Before.Audit != nil {
			idx[entry.Before.Audit.ID] = entry.ID
		}
	}
	return idx
}

// CanUndoOperation checks undo eligibility: the audit entry must exist, its
// action must be undoable, it must be younger than the undo window, and no
// other entry may already reference it as the original.
func (m *Manager) CanUndoOperation(ctx context.Context, auditID string) (UndoCheck, error) {
	trail, err := m.repo.GetAuditTrail(ctx, 0)
	if err != nil {
		return UndoCheck{}, fmt.Errorf("reading audit trail: %w", err)
	}
	return m.checkUndoable(trail, auditID), nil
}

func (m *Manager) checkUndoable(trail []models.AuditRecord, auditID string) UndoCheck {
	entry := findAudit(trail, auditID)
	if entry == nil {
		return UndoCheck{Reason: "audit record not found"}
	}
	if !models.UndoableActions[entry.Action] {
		return UndoCheck{Reason: fmt.Sprintf("action %s is not undoable", entry.Action)}
	}
	if entry.Metadata.OriginalAuditID != "" {
		return UndoCheck{Reason: "undo operations cannot themselves be undone"}
	}
	if age := m.now().Sub(entry.Timestamp); age > m.cfg.UndoWindow {
		return UndoCheck{Reason: fmt.Sprintf("operation is older than the %s undo window", m.cfg.UndoWindow)}
	}
	if undoID, undone := buildUndoneIndex(trail)[auditID]; undone {
		return UndoCheck{Reason: fmt.Sprintf("operation was already undone by %s", undoID)}
	}
	return UndoCheck{CanUndo: true}
}

// UndoRecordOperation reverses a record create, update, or delete. The
// inverse mutation is applied through the Repository and a new audit entry
// referencing the original is appended; that back-reference is what makes
// the original permanently non-undoable.
func (m *Manager) UndoRecordOperation(ctx context.Context, auditID string) (UndoResult, error) {
	trail, err := m.repo.GetAuditTrail(ctx, 0)
	if err != nil {
		return UndoResult{}, fmt.Errorf("reading audit trail: %w", err)
	}

	if check := m.checkUndoable(trail, auditID); !check.CanUndo {
		return UndoResult{Reason: check.Reason}, nil
	}

	original := findAudit(trail, auditID)
	var undo models.AuditRecord

	switch original.Action {
	case models.AuditRecordCreated:
		// Inverse of create is delete.
		created := original.After
		if created == nil || created.Record == nil {
			return UndoResult{Reason: "original audit is missing its created record"}, nil
		}
		if err := m.repo.DeleteRecord(ctx, created.Record.ID); err != nil {
			return UndoResult{}, fmt.Errorf("deleting record for undo: %w", err)
		}
		undo = m.newAudit(models.AuditRecordDeleted, created.Record.ID)
		undo.Before = created

	case models.AuditRecordDeleted:
		// Inverse of delete is re-create from the before snapshot.
		deleted := original.Before
		if deleted == nil || deleted.Record == nil {
			return UndoResult{Reason: "original audit is missing its deleted record"}, nil
		}
		if err := m.repo.SaveExerciseRecord(ctx, *deleted.Record); err != nil {
			return UndoResult{}, fmt.Errorf("restoring record for undo: %w", err)
		}
		undo = m.newAudit(models.AuditRecordCreated, deleted.Record.ID)
		undo.After = deleted

	case models.AuditRecordUpdated:
		// Inverse of update is restoring the before state.
		if original.Before == nil || original.Before.Record == nil {
			return UndoResult{Reason: "original audit is missing its before state"}, nil
		}
		if err := m.repo.SaveExerciseRecord(ctx, *original.Before.Record); err != nil {
			return UndoResult{}, fmt.Errorf("restoring record for undo: %w", err)
		}
		undo = m.newAudit(models.AuditRecordUpdated, original.RecordID)
		undo.Before = original.After
		undo.After = original.Before

	case models.AuditConflictResolved:
		return UndoResult{Reason: "use UndoConflictResolution for conflict resolutions"}, nil

	default:
		return UndoResult{Reason: fmt.Sprintf("action %s is not undoable", original.Action)}, nil
	}

	undo.Metadata.OriginalAuditID = original.ID
	if err := m.save(ctx, undo); err != nil {
		return UndoResult{}, err
	}

	m.log.Info("operation undone", "original", original.ID, "action", original.Action, "undo", undo.ID)
	return UndoResult{Success: true, Audit: &undo}, nil
}

// UndoConflictResolution reverses a conflict resolution: the records
// captured in the resolution's beforeState are restored, any merged record
// it produced is removed, and a resolution_undone entry referencing the
// original is appended. The undo entry itself is never undoable.
func (m *Manager) UndoConflictResolution(ctx context.Context, auditID string) (UndoResult, error) {
	trail, err := m.repo.GetAuditTrail(ctx, 0)
	if err != nil {
		return UndoResult{}, fmt.Errorf("reading audit trail: %w", err)
	}

	if check := m.checkUndoable(trail, auditID); !check.CanUndo {
		return UndoResult{Reason: check.Reason}, nil
	}

	original := findAudit(trail, auditID)
	if original.Action != models.AuditConflictResolved {
		return UndoResult{Reason: fmt.Sprintf("audit %s is not a conflict resolution", auditID)}, nil
	}
	res := original.After.Resolution
	if res == nil {
		return UndoResult{Reason: "original audit is missing its resolution"}, nil
	}

	// Remove the merged record before restoring the originals.
	if merged := res.AfterState.MergedRecord; merged != nil {
		if err := m.repo.DeleteRecord(ctx, merged.ID); err != nil {
			return UndoResult{}, fmt.Errorf("removing merged record for undo: %w", err)
		}
	}
	if before := res.BeforeState.ManualRecord; before != nil {
		if err := m.repo.SaveExerciseRecord(ctx, *before); err != nil {
			return UndoResult{}, fmt.Errorf("restoring manual record for undo: %w", err)
		}
	}
	if before := res.BeforeState.SyncedRecord; before != nil {
		if err := m.repo.SaveExerciseRecord(ctx, *before); err != nil {
			return UndoResult{}, fmt.Errorf("restoring synced record for undo: %w", err)
		}
	}

	undo := m.newAudit(models.AuditResolutionUndone, original.RecordID)
	undo.Before = &models.AuditSnapshot{Audit: original}
	undo.Metadata.OriginalAuditID = original.ID
	if err := m.save(ctx, undo); err != nil {
		return UndoResult{}, err
	}

	m.log.Info("conflict resolution undone", "original", original.ID, "choice", res.Choice, "undo", undo.ID)
	return UndoResult{Success: true, Audit: &undo}, nil
}

// GetUndoableOperations returns conflict-resolution entries within the age
// window that have not yet been undone.
func (m *Manager) GetUndoableOperations(ctx context.Context, maxAgeHours int) ([]models.AuditRecord, error) {
	trail, err := m.repo.GetAuditTrail(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}

	window := m.cfg.UndoWindow
	if maxAgeHours > 0 {
		window = time.Duration(maxAgeHours) * time.Hour
	}
	undone := buildUndoneIndex(trail)
	cutoff := m.now().Add(-window)

	var out []models.AuditRecord
	for _, entry := range trail {
		if entry.Action != models.AuditConflictResolved {
			continue
		}
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		if _, already := undone[entry.ID]; already {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func findAudit(trail []models.AuditRecord, id string) *models.AuditRecord {
	for i := range trail {
		if trail[i].ID == id {
			return &trail[i]
		}
	}
	return nil
}
