package conflict

import (
	"testing"
	"time"

	"github.com/claude/fitmerge/internal/models"
)

func sampleConflict() models.Conflict {
	cal := 320.0
	hr := 152.0

	manual := manualRec("Running", baseTime, 30)
	manual.Metadata.Notes = "tempo run"

	synced := syncedRec("Running", baseTime.Add(2*time.Minute), 31)
	synced.Metadata.Calories = &cal
	synced.Metadata.AvgHeartRate = &hr
	synced.Metadata.OriginalID = "hc-777"

	return models.Conflict{
		ID:           "conf-test",
		ManualRecord: manual,
		SyncedRecord: synced,
		OverlapMin:   28,
		ConflictType: models.ConflictDuplicateExercise,
		DetectedAt:   baseTime.Add(40 * time.Minute),
	}
}

func TestResolveKeepManual(t *testing.T) {
	res := NewResolver().Resolve(sampleConflict(), models.ResolutionKeepManual, ResolveOptions{})
	if !res.Success {
		t.Fatalf("resolve failed: %s", res.Error)
	}

	after := res.Resolution.AfterState
	if after.ManualRecord == nil || after.ManualRecord.ID != "man-Running" {
		t.Error("manual record should survive keep_manual")
	}
	if after.SyncedRecord != nil || after.MergedRecord != nil {
		t.Error("keep_manual must set only the manual record in afterState")
	}
}

func TestResolveKeepSynced(t *testing.T) {
	res := NewResolver().Resolve(sampleConflict(), models.ResolutionKeepSynced, ResolveOptions{})
	if !res.Success {
		t.Fatalf("resolve failed: %s", res.Error)
	}

	after := res.Resolution.AfterState
	if after.SyncedRecord == nil || after.SyncedRecord.ID != "syn-Running" {
		t.Error("synced record should survive keep_synced")
	}
	if after.ManualRecord != nil || after.MergedRecord != nil {
		t.Error("keep_synced must set only the synced record in afterState")
	}
}

func TestResolveMergeRecords(t *testing.T) {
	c := sampleConflict()
	res := NewResolver().Resolve(c, models.ResolutionMergeRecords, ResolveOptions{UserNotes: "same run, keep my numbers"})
	if !res.Success {
		t.Fatalf("resolve failed: %s", res.Error)
	}

	after := res.Resolution.AfterState
	if after.MergedRecord == nil {
		t.Fatal("merge_records must produce a merged record")
	}
	if after.ManualRecord != nil || after.SyncedRecord != nil {
		t.Error("merge_records must set only the merged record in afterState")
	}

	merged := after.MergedRecord
	if merged.ID == c.ManualRecord.ID || merged.ID == c.SyncedRecord.ID {
		t.Error("merged record must get a fresh id")
	}
	if merged.Name != "Running" || merged.DurationMin != 30 || !merged.StartTime.Equal(baseTime) {
		t.Errorf("manual side should be authoritative, got %q %d %v", merged.Name, merged.DurationMin, merged.StartTime)
	}
	if merged.Metadata.Calories == nil || *merged.Metadata.Calories != 320 {
		t.Error("calories not enriched from synced side")
	}
	if merged.Metadata.AvgHeartRate == nil || *merged.Metadata.AvgHeartRate != 152 {
		t.Error("heart rate not enriched from synced side")
	}
	if merged.Metadata.Notes != "tempo run" {
		t.Errorf("manual notes should win, got %q", merged.Metadata.Notes)
	}
	if res.Resolution.UserNotes != "same run, keep my numbers" {
		t.Errorf("user notes = %q", res.Resolution.UserNotes)
	}
}

func TestResolveKeepBoth(t *testing.T) {
	res := NewResolver().Resolve(sampleConflict(), models.ResolutionKeepBoth, ResolveOptions{})
	if !res.Success {
		t.Fatalf("resolve failed: %s", res.Error)
	}

	after := res.Resolution.AfterState
	if after.ManualRecord == nil || after.SyncedRecord == nil {
		t.Error("keep_both must retain both records")
	}
	if after.MergedRecord != nil {
		t.Error("keep_both must not synthesize a merged record")
	}
}

func TestResolveBeforeStateAlwaysBothRecords(t *testing.T) {
	for _, choice := range []models.ResolutionChoice{
		models.ResolutionKeepManual,
		models.ResolutionKeepSynced,
		models.ResolutionMergeRecords,
		models.ResolutionKeepBoth,
	} {
		res := NewResolver().Resolve(sampleConflict(), choice, ResolveOptions{})
		if !res.Success {
			t.Fatalf("%s: resolve failed: %s", choice, res.Error)
		}
		before := res.Resolution.BeforeState
		if before.ManualRecord == nil || before.SyncedRecord == nil {
			t.Errorf("%s: beforeState must snapshot both records", choice)
		}
		if res.Resolution.ConflictID != "conf-test" {
			t.Errorf("%s: conflictId = %q", choice, res.Resolution.ConflictID)
		}
	}
}

// A bad choice is a reported failure, never a panic or a Go error.
func TestResolveUnknownChoice(t *testing.T) {
	res := NewResolver().Resolve(sampleConflict(), "discard_everything", ResolveOptions{})
	if res.Success {
		t.Fatal("unknown choice should not succeed")
	}
	if res.Error == "" {
		t.Error("failure must carry a reason")
	}
	if res.Resolution != nil {
		t.Error("failed resolution must not produce a resolution value")
	}
}

func TestResolveIncompleteConflict(t *testing.T) {
	c := sampleConflict()
	c.SyncedRecord = models.ExerciseRecord{}

	res := NewResolver().Resolve(c, models.ResolutionKeepManual, ResolveOptions{})
	if res.Success {
		t.Fatal("conflict without a synced record should not resolve")
	}
	if res.Error == "" {
		t.Error("failure must carry a reason")
	}
}
