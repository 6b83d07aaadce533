package mcp

import (
	"context"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/conflict"
	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/records"
	"github.com/claude/fitmerge/internal/storage"
)

// DataSource abstracts the reconciliation engine for MCP tools. Both *Engine
// (in-process) and *HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	History(ctx context.Context, dr storage.DateRange) ([]models.ExerciseRecord, error)
	PendingConflicts(ctx context.Context) ([]models.Conflict, error)
	Resolve(ctx context.Context, conflictID string, choice models.ResolutionChoice, opts conflict.ResolveOptions) (reconcile.ResolveOutcome, error)
	Undo(ctx context.Context, auditID string) (audit.UndoResult, error)
	GetAuditTrail(ctx context.Context, q audit.Query) ([]models.AuditRecord, error)
	GetManagementStatistics(ctx context.Context) (audit.Statistics, error)
	GetUndoableOperations(ctx context.Context, maxAgeHours int) ([]models.AuditRecord, error)
	DetectDuplicates(ctx context.Context, incoming models.ExerciseRecord) (dedupe.Result, error)
}

// Engine bundles the service layer into one DataSource.
type Engine struct {
	Records  *records.Service
	Pipeline *reconcile.Pipeline
	Audit    *audit.Manager
	Detector *dedupe.Detector
}

// Compile-time check: *Engine satisfies DataSource.
var _ DataSource = (*Engine)(nil)

func (e *Engine) History(ctx context.Context, dr storage.DateRange) ([]models.ExerciseRecord, error) {
	return e.Records.History(ctx, dr)
}

func (e *Engine) PendingConflicts(ctx context.Context) ([]models.Conflict, error) {
	return e.Pipeline.PendingConflicts(), nil
}

func (e *Engine) Resolve(ctx context.Context, conflictID string, choice models.ResolutionChoice, opts conflict.ResolveOptions) (reconcile.ResolveOutcome, error) {
	return e.Pipeline.Resolve(ctx, conflictID, choice, opts)
}

func (e *Engine) Undo(ctx context.Context, auditID string) (audit.UndoResult, error) {
	return e.Pipeline.Undo(ctx, auditID)
}

func (e *Engine) GetAuditTrail(ctx context.Context, q audit.Query) ([]models.AuditRecord, error) {
	return e.Audit.GetAuditTrail(ctx, q)
}

func (e *Engine) GetManagementStatistics(ctx context.Context) (audit.Statistics, error) {
	return e.Audit.GetManagementStatistics(ctx)
}

func (e *Engine) GetUndoableOperations(ctx context.Context, maxAgeHours int) ([]models.AuditRecord, error) {
	return e.Audit.GetUndoableOperations(ctx, maxAgeHours)
}

func (e *Engine) DetectDuplicates(ctx context.Context, incoming models.ExerciseRecord) (dedupe.Result, error) {
	existing, err := e.Records.History(ctx, storage.DateRange{})
	if err != nil {
		return dedupe.Result{}, err
	}
	return e.Detector.DetectDuplicates(incoming, existing), nil
}
