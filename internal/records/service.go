// Package records is the record manager: creates, updates, and deletes
// exercise records through the Repository, writing exactly one audit entry
// per mutation. Validation failures come back as structured results so
// callers can surface them without unwrapping errors.
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/storage"
)

// Result is the outcome of a record mutation. Success=false with a non-empty
// Error means the input was rejected; infrastructure failures are returned as
// Go errors instead.
type Result struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Record  *models.ExerciseRecord `json:"record,omitempty"`
	Audit   *models.AuditRecord    `json:"audit,omitempty"`
}

func failure(reason string) Result {
	return Result{Error: reason}
}

// CreateInput is a record creation request. ID and timestamps are assigned
// by the service.
type CreateInput struct {
	Name        string          `json:"name"`
	StartTime   time.Time       `json:"startTime"`
	DurationMin int             `json:"durationMin"`
	Source      models.Source   `json:"source"`
	Platform    models.Platform `json:"platform,omitempty"`
	Metadata    models.Metadata `json:"metadata,omitzero"`
}

// Service coordinates record mutations with their audit entries.
type Service struct {
	repo  storage.Repository
	audit *audit.Manager
	log   *slog.Logger
	now   func() time.Time
}

// NewService creates a record manager over the given repository and audit
// trail.
func NewService(repo storage.Repository, auditMgr *audit.Manager, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		audit: auditMgr,
		log:   log,
		now:   time.Now,
	}
}

// Create validates and persists a new record, then audits the creation.
// A Source left empty defaults to manual.
func (s *Service) Create(ctx context.Context, in CreateInput) (Result, error) {
	if in.Source == "" {
		in.Source = models.SourceManual
	}
	now := s.now()
	rec := models.ExerciseRecord{
		ID:          fmt.Sprintf("rec-%s", uuid.NewString()),
		Name:        in.Name,
		StartTime:   in.StartTime,
		DurationMin: in.DurationMin,
		Source:      in.Source,
		Platform:    in.Platform,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := rec.Validate(); err != nil {
		return failure(err.Error()), nil
	}

	if err := s.repo.SaveExerciseRecord(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("saving record: %w", err)
	}
	entry, err := s.audit.RecordCreation(ctx, rec)
	if err != nil {
		return Result{}, err
	}

	s.log.Info("record created", "id", rec.ID, "name", rec.Name, "source", rec.Source)
	return Result{Success: true, Record: &rec, Audit: &entry}, nil
}

// Update applies a partial update to an existing record and audits the
// before/after pair. An empty field set and a missing record are both
// structured failures.
func (s *Service) Update(ctx context.Context, id string, fields storage.RecordFields) (Result, error) {
	if fields.Empty() {
		return failure("no fields to update"), nil
	}

	before, err := s.repo.GetRecordByID(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("loading record %s: %w", id, err)
	}
	if before == nil {
		return failure(fmt.Sprintf("record %s not found", id)), nil
	}

	after := *before
	var updated []string
	if fields.Name != nil {
		after.Name = *fields.Name
		updated = append(updated, "name")
	}
	if fields.StartTime != nil {
		after.StartTime = *fields.StartTime
		updated = append(updated, "startTime")
	}
	if fields.DurationMin != nil {
		after.DurationMin = *fields.DurationMin
		updated = append(updated, "durationMin")
	}
	if fields.Metadata != nil {
		after.Metadata = *fields.Metadata
		updated = append(updated, "metadata")
	}
	after.UpdatedAt = s.now()
	if err := after.Validate(); err != nil {
		return failure(err.Error()), nil
	}

	if err := s.repo.UpdateRecord(ctx, id, fields); err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return failure(fmt.Sprintf("record %s not found", id)), nil
		}
		return Result{}, fmt.Errorf("updating record %s: %w", id, err)
	}
	entry, err := s.audit.RecordUpdate(ctx, *before, after, updated)
	if err != nil {
		return Result{}, err
	}

	s.log.Info("record updated", "id", id, "fields", updated)
	return Result{Success: true, Record: &after, Audit: &entry}, nil
}

// Delete removes a record and audits the deletion with the deleted state
// kept as the before snapshot.
func (s *Service) Delete(ctx context.Context, id string) (Result, error) {
	rec, err := s.repo.GetRecordByID(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("loading record %s: %w", id, err)
	}
	if rec == nil {
		return failure(fmt.Sprintf("record %s not found", id)), nil
	}

	if err := s.repo.DeleteRecord(ctx, id); err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return failure(fmt.Sprintf("record %s not found", id)), nil
		}
		return Result{}, fmt.Errorf("deleting record %s: %w", id, err)
	}
	entry, err := s.audit.RecordDeletion(ctx, *rec)
	if err != nil {
		return Result{}, err
	}

	s.log.Info("record deleted", "id", id, "name", rec.Name)
	return Result{Success: true, Record: rec, Audit: &entry}, nil
}

// Get returns a record by id, nil when absent.
func (s *Service) Get(ctx context.Context, id string) (*models.ExerciseRecord, error) {
	return s.repo.GetRecordByID(ctx, id)
}

// History returns records inside the date range, most recent start first.
func (s *Service) History(ctx context.Context, dr storage.DateRange) ([]models.ExerciseRecord, error) {
	return s.repo.GetExerciseHistory(ctx, dr)
}
