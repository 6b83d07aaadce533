package models

import "time"

// AuditAction is the kind of mutation an audit record describes.
type AuditAction string

const (
	AuditRecordCreated     AuditAction = "record_created"
	AuditRecordUpdated     AuditAction = "record_updated"
	AuditRecordDeleted     AuditAction = "record_deleted"
	AuditConflictResolved  AuditAction = "conflict_resolved"
	AuditResolutionUndone  AuditAction = "resolution_undone"
)

// UndoableActions are the actions eligible for time-boxed undo. An undo
// entry itself (resolution_undone) is never undoable.
var UndoableActions = map[AuditAction]bool{
	AuditRecordCreated:    true,
	AuditRecordUpdated:    true,
	AuditRecordDeleted:    true,
	AuditConflictResolved: true,
}

// AuditSnapshot is the action-dependent payload attached to an audit record.
// Exactly one field is set: a record snapshot for record mutations, a
// resolution for conflict resolutions, or the reversed audit entry for undo
// records.
type AuditSnapshot struct {
	Record     *ExerciseRecord     `json:"record,omitempty"`
	Resolution *ConflictResolution `json:"resolution,omitempty"`
	Audit      *AuditRecord        `json:"audit,omitempty"`
}

// SubjectID returns the id of whatever the snapshot holds.
func (s *AuditSnapshot) SubjectID() string {
	switch {
	case s == nil:
		return ""
	case s.Record != nil:
		return s.Record.ID
	case s.Resolution != nil:
		return s.Resolution.ID
	case s.Audit != nil:
		return s.Audit.ID
	}
	return ""
}

// AuditMetadata annotates an audit record with provenance details and, for
// undo entries, the back-reference that makes the original non-undoable.
type AuditMetadata struct {
	Source          Source   `json:"source,omitempty"`
	Platform        Platform `json:"platform,omitempty"`
	UpdatedFields   []string `json:"updatedFields,omitempty"`
	OriginalAuditID string   `json:"originalAuditId,omitempty"`
	Operation       string   `json:"operation,omitempty"`
	BatchSize       int      `json:"batchSize,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// AuditRecord is one immutable entry in the mutation log. Append-mostly:
// the only lifecycle operation besides creation is bulk trimming during
// rolling cleanup.
type AuditRecord struct {
	ID        string         `json:"id"`
	Action    AuditAction    `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	RecordID  string         `json:"recordId"`
	Before    *AuditSnapshot `json:"beforeData,omitempty"`
	After     *AuditSnapshot `json:"afterData,omitempty"`
	Metadata  AuditMetadata  `json:"metadata,omitzero"`
}
