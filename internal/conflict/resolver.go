package conflict

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/fitmerge/internal/models"
)

// ResolveOptions carries optional per-resolution inputs.
type ResolveOptions struct {
	UserNotes string
}

// ResolveResult reports the outcome of a resolution attempt. Failure
// conditions (an unknown choice, invalid conflict) are reported through
// Success and Error rather than a Go error, so callers can surface them
// without unwinding.
type ResolveResult struct {
	Success    bool                       `json:"success"`
	Resolution *models.ConflictResolution `json:"resolution,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// Resolver computes the record state resulting from a resolution choice.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// Resolve applies the chosen strategy to a conflict and produces the
// before/after snapshot pair. It never returns a Go error.
//
// Strategies:
//   - keep_manual:   the synced record leaves the active set.
//   - keep_synced:   the manual record leaves the active set.
//   - merge_records: a new merged record supersedes both originals, taking
//     name, time, and duration from the manual side and enriching metadata
//     (calories, heart rate) from the synced side.
//   - keep_both:     both records stay; the conflict is marked resolved so
//     it is not re-flagged.
func (r *Resolver) Resolve(c models.Conflict, choice models.ResolutionChoice, opts ResolveOptions) ResolveResult {
	if !choice.Valid() {
		return ResolveResult{Error: fmt.Sprintf("unknown resolution choice %q", choice)}
	}
	if c.ManualRecord.ID == "" || c.SyncedRecord.ID == "" {
		return ResolveResult{Error: "conflict is missing one of its records"}
	}

	manual := c.ManualRecord
	synced := c.SyncedRecord

	resolution := &models.ConflictResolution{
		ID:         fmt.Sprintf("res-%s", uuid.NewString()),
		ConflictID: c.ID,
		Choice:     choice,
		ResolvedAt: r.now(),
		BeforeState: models.ResolutionState{
			ManualRecord: &manual,
			SyncedRecord: &synced,
		},
		UserNotes: opts.UserNotes,
	}

	switch choice {
	case models.ResolutionKeepManual:
		resolution.AfterState = models.ResolutionState{ManualRecord: &manual}
	case models.ResolutionKeepSynced:
		resolution.AfterState = models.ResolutionState{SyncedRecord: &synced}
	case models.ResolutionMergeRecords:
		merged := r.merge(manual, synced)
		resolution.AfterState = models.ResolutionState{MergedRecord: &merged}
	case models.ResolutionKeepBoth:
		resolution.AfterState = models.ResolutionState{
			ManualRecord: &manual,
			SyncedRecord: &synced,
		}
	}

	return ResolveResult{Success: true, Resolution: resolution}
}

// merge synthesizes the reconciled record. The manual side is authoritative
// for name, start time, and duration; platform extras (calories, heart
// rate, original id) are pulled from the synced side where the manual entry
// has none.
func (r *Resolver) merge(manual, synced models.ExerciseRecord) models.ExerciseRecord {
	now := r.now()
	return models.ExerciseRecord{
		ID:          fmt.Sprintf("rec-%s", uuid.NewString()),
		Name:        manual.Name,
		StartTime:   manual.StartTime,
		DurationMin: manual.DurationMin,
		Source:      models.SourceManual,
		Metadata:    manual.Metadata.MergeFrom(synced.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
