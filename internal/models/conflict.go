package models

import "time"

// ConflictType classifies why a manual and a synced record collided.
type ConflictType string

const (
	// ConflictTimeOverlap marks overlapping intervals that plausibly belong
	// to distinct activities.
	ConflictTimeOverlap ConflictType = "time_overlap"
	// ConflictDuplicateExercise marks overlapping records whose names are
	// near-identical after normalization.
	ConflictDuplicateExercise ConflictType = "duplicate_exercise"
	// ConflictConflictingData marks overlapping records with differing
	// names or attributes that cannot be told apart.
	ConflictConflictingData ConflictType = "conflicting_data"
)

// Conflict is a detected temporal collision between one manual and one
// synced record. It exists only until resolved; it is never persisted.
type Conflict struct {
	ID           string         `json:"id"`
	ManualRecord ExerciseRecord `json:"manualRecord"`
	SyncedRecord ExerciseRecord `json:"syncedRecord"`
	OverlapMin   int            `json:"overlapMin"`
	ConflictType ConflictType   `json:"conflictType"`
	DetectedAt   time.Time      `json:"detectedAt"`
}

// ResolutionChoice is the user or policy decision for collapsing a conflict.
type ResolutionChoice string

const (
	ResolutionKeepManual   ResolutionChoice = "keep_manual"
	ResolutionKeepSynced   ResolutionChoice = "keep_synced"
	ResolutionMergeRecords ResolutionChoice = "merge_records"
	ResolutionKeepBoth     ResolutionChoice = "keep_both"
)

// Valid reports whether the choice is one of the four known strategies.
func (c ResolutionChoice) Valid() bool {
	switch c {
	case ResolutionKeepManual, ResolutionKeepSynced, ResolutionMergeRecords, ResolutionKeepBoth:
		return true
	}
	return false
}

// ResolutionState is a snapshot of the records involved in a resolution,
// before or after it was applied. Unset fields mean the record does not
// exist on that side of the resolution.
type ResolutionState struct {
	ManualRecord *ExerciseRecord `json:"manualRecord,omitempty"`
	SyncedRecord *ExerciseRecord `json:"syncedRecord,omitempty"`
	MergedRecord *ExerciseRecord `json:"mergedRecord,omitempty"`
}

// ConflictResolution captures the outcome of applying a ResolutionChoice to
// a Conflict. Immutable once created; persisted only through its audit entry.
type ConflictResolution struct {
	ID          string           `json:"id"`
	ConflictID  string           `json:"conflictId"`
	Choice      ResolutionChoice `json:"resolutionChoice"`
	ResolvedAt  time.Time        `json:"resolvedAt"`
	BeforeState ResolutionState  `json:"beforeState"`
	AfterState  ResolutionState  `json:"afterState"`
	UserNotes   string           `json:"userNotes,omitempty"`
}

// DuplicateMatch pairs an incoming record with an existing one it resembles.
// Produced by the duplicate detector, never persisted.
type DuplicateMatch struct {
	ExistingRecord ExerciseRecord `json:"existingRecord"`
	IncomingRecord ExerciseRecord `json:"incomingRecord"`
	MatchScore     float64        `json:"matchScore"`
	MatchReasons   []string       `json:"matchReasons"`
}
