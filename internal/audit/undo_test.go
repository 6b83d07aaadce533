package audit

import (
	"context"
	"testing"
	"time"

	"github.com/claude/fitmerge/internal/models"
)

func TestUndoCreateDeletesRecord(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t, DefaultConfig())

	rec := testRecord("rec-1")
	if err := repo.SaveExerciseRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	created, err := m.RecordCreation(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.UndoRecordOperation(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("undo failed: %s", res.Reason)
	}
	if res.Audit.Action != models.AuditRecordDeleted {
		t.Errorf("inverse of create should be delete, got %s", res.Audit.Action)
	}
	if res.Audit.Metadata.OriginalAuditID != created.ID {
		t.Error("undo audit missing back-reference to original")
	}

	got, err := repo.GetRecordByID(ctx, "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("record should be gone after undoing its creation")
	}
}

func TestUndoDeleteRestoresRecord(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t, DefaultConfig())

	rec := testRecord("rec-1")
	deleted, err := m.RecordDeletion(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.UndoRecordOperation(ctx, deleted.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("undo failed: %s", res.Reason)
	}
	if res.Audit.Action != models.AuditRecordCreated {
		t.Errorf("inverse of delete should be create, got %s", res.Audit.Action)
	}

	got, err := repo.GetRecordByID(ctx, "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Running" {
		t.Error("record not restored after undoing its deletion")
	}
}

func TestUndoUpdateRestoresBeforeState(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t, DefaultConfig())

	before := testRecord("rec-1")
	after := before
	after.Name = "Evening Run"
	after.DurationMin = 50
	if err := repo.SaveExerciseRecord(ctx, after); err != nil {
		t.Fatal(err)
	}

	updated, err := m.RecordUpdate(ctx, before, after, []string{"name", "durationMin"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.UndoRecordOperation(ctx, updated.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("undo failed: %s", res.Reason)
	}

	got, err := repo.GetRecordByID(ctx, "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Running" || got.DurationMin != 30 {
		t.Errorf("before state not restored: %q %d", got.Name, got.DurationMin)
	}
}

// An audit entry can be undone at most once.
func TestUndoSingleUse(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t, DefaultConfig())

	rec := testRecord("rec-1")
	if err := repo.SaveExerciseRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	created, err := m.RecordCreation(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}

	first, err := m.UndoRecordOperation(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Success {
		t.Fatalf("first undo failed: %s", first.Reason)
	}

	check, err := m.CanUndoOperation(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if check.CanUndo {
		t.Fatal("already-undone operation reported as undoable")
	}
	if check.Reason == "" {
		t.Error("ineligibility must carry a reason")
	}

	second, err := m.UndoRecordOperation(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Success {
		t.Fatal("second undo of the same operation succeeded")
	}
}

// The undo entry produced by an undo is itself never undoable.
func TestUndoNotUndoable(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t, DefaultConfig())

	rec := testRecord("rec-1")
	if err := repo.SaveExerciseRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	created, err := m.RecordCreation(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.UndoRecordOperation(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}

	check, err := m.CanUndoOperation(ctx, res.Audit.ID)
	if err != nil {
		t.Fatal(err)
	}
	if check.CanUndo {
		t.Fatal("undo entry reported as undoable")
	}
}

func TestUndoAgeBoundary(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t, DefaultConfig())

	old, err := m.RecordCreation(ctx, testRecord("rec-old"))
	if err != nil {
		t.Fatal(err)
	}

	// 25 hours later the operation is out of the window.
	*clock = clock.Add(25 * time.Hour)
	check, err := m.CanUndoOperation(ctx, old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if check.CanUndo {
		t.Fatal("25-hour-old operation reported as undoable")
	}

	recent, err := m.RecordCreation(ctx, testRecord("rec-new"))
	if err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(10 * time.Minute)
	check, err = m.CanUndoOperation(ctx, recent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !check.CanUndo {
		t.Fatalf("10-minute-old operation not undoable: %s", check.Reason)
	}
}

func TestCanUndoMissingAudit(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, DefaultConfig())

	check, err := m.CanUndoOperation(ctx, "audit-nope")
	if err != nil {
		t.Fatal(err)
	}
	if check.CanUndo || check.Reason == "" {
		t.Errorf("missing audit should be ineligible with a reason, got %+v", check)
	}
}

func TestUndoConflictResolutionRestoresRecords(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t, DefaultConfig())

	manual := testRecord("rec-manual")
	synced := testRecord("rec-synced")
	synced.Source = models.SourceSynced
	synced.Platform = models.PlatformAppleHealthKit

	merged := testRecord("rec-merged")
	if err := repo.SaveExerciseRecord(ctx, merged); err != nil {
		t.Fatal(err)
	}

	resolution := models.ConflictResolution{
		ID:         "res-1",
		ConflictID: "conf-1",
		Choice:     models.ResolutionMergeRecords,
		ResolvedAt: testStart,
		BeforeState: models.ResolutionState{
			ManualRecord: &manual,
			SyncedRecord: &synced,
		},
		AfterState: models.ResolutionState{MergedRecord: &merged},
	}
	resolved, err := m.RecordConflictResolution(ctx, resolution)
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.UndoConflictResolution(ctx, resolved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("undo failed: %s", res.Reason)
	}
	if res.Audit.Action != models.AuditResolutionUndone {
		t.Errorf("undo action = %s", res.Audit.Action)
	}
	if res.Audit.Metadata.OriginalAuditID != resolved.ID {
		t.Error("undo audit missing back-reference")
	}

	if got, _ := repo.GetRecordByID(ctx, "rec-merged"); got != nil {
		t.Error("merged record should be removed by the undo")
	}
	if got, _ := repo.GetRecordByID(ctx, "rec-manual"); got == nil {
		t.Error("manual record not restored")
	}
	if got, _ := repo.GetRecordByID(ctx, "rec-synced"); got == nil {
		t.Error("synced record not restored")
	}

	// The resolution is now permanently non-undoable.
	check, err := m.CanUndoOperation(ctx, resolved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if check.CanUndo {
		t.Fatal("undone resolution reported as undoable")
	}
}

func TestGetUndoableOperations(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t, DefaultConfig())

	manual := testRecord("rec-manual")
	synced := testRecord("rec-synced")
	resolution := models.ConflictResolution{
		ID:          "res-1",
		ConflictID:  "conf-1",
		Choice:      models.ResolutionKeepManual,
		BeforeState: models.ResolutionState{ManualRecord: &manual, SyncedRecord: &synced},
		AfterState:  models.ResolutionState{ManualRecord: &manual},
	}

	if _, err := m.RecordConflictResolution(ctx, resolution); err != nil {
		t.Fatal(err)
	}

	// Push the first resolution out of the window, then record another.
	*clock = clock.Add(30 * time.Hour)
	resolution.ID = "res-2"
	resolution.ConflictID = "conf-2"
	recent, err := m.RecordConflictResolution(ctx, resolution)
	if err != nil {
		t.Fatal(err)
	}

	// Record mutations must not show up here, only conflict resolutions.
	if _, err := m.RecordCreation(ctx, testRecord("rec-x")); err != nil {
		t.Fatal(err)
	}

	ops, err := m.GetUndoableOperations(ctx, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("undoable operations = %d, want 1", len(ops))
	}
	if ops[0].ID != recent.ID {
		t.Errorf("wrong undoable operation: %s", ops[0].ID)
	}

	// After undoing it, the list is empty.
	undone, err := m.UndoConflictResolution(ctx, recent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !undone.Success {
		t.Fatalf("undo failed: %s", undone.Reason)
	}
	ops, err = m.GetUndoableOperations(ctx, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Errorf("undoable operations after undo = %d, want 0", len(ops))
	}
}
