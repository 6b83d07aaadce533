// Package storage persists exercise records and the audit trail. The
// Repository interface is the only seam the reconciliation core sees; the
// postgres, sqlite, and memory implementations behind it carry no business
// logic.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/claude/fitmerge/internal/models"
)

// ErrRecordNotFound is returned by update and delete when the target record
// does not exist.
var ErrRecordNotFound = errors.New("exercise record not found")

// DateRange bounds a history query. A zero Start or End leaves that side
// open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// RecordFields is a partial update; nil fields are left untouched.
type RecordFields struct {
	Name        *string
	StartTime   *time.Time
	DurationMin *int
	Metadata    *models.Metadata
}

// Empty reports whether the update would change nothing.
func (f RecordFields) Empty() bool {
	return f.Name == nil && f.StartTime == nil && f.DurationMin == nil && f.Metadata == nil
}

// Repository is the persistence contract consumed by the reconciliation
// core. GetRecordByID returns (nil, nil) when the record is absent;
// GetAuditTrail always returns newest-first; CleanupOldAuditRecords trims
// to the newest maxRecords entries in one atomic operation.
type Repository interface {
	SaveExerciseRecord(ctx context.Context, rec models.ExerciseRecord) error
	GetExerciseHistory(ctx context.Context, dr DateRange) ([]models.ExerciseRecord, error)
	GetRecordByID(ctx context.Context, id string) (*models.ExerciseRecord, error)
	UpdateRecord(ctx context.Context, id string, fields RecordFields) error
	DeleteRecord(ctx context.Context, id string) error

	SaveAuditRecord(ctx context.Context, rec models.AuditRecord) error
	GetAuditTrail(ctx context.Context, limit int) ([]models.AuditRecord, error)
	CleanupOldAuditRecords(ctx context.Context, maxRecords int) error
}
