package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/conflict"
	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/storage"
)

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -7)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolQueryRecords = mcp.NewTool("query_records",
	mcp.WithDescription("Query exercise records in a time range. Returns records with name, start time, duration, source (manual or synced), platform, and metadata."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolCheckDuplicates = mcp.NewTool("check_duplicates",
	mcp.WithDescription("Check a candidate exercise record against stored records for near-duplicates. Returns matches with scores and reasons, and whether the candidate would be dropped as a duplicate."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Exercise name (e.g. 'Running')")),
	mcp.WithString("start", mcp.Required(), mcp.Description("Start time (ISO 8601 or YYYY-MM-DD)")),
	mcp.WithNumber("duration_min", mcp.Required(), mcp.Description("Duration in minutes")),
	mcp.WithString("source", mcp.Description("Record source, 'manual' or 'synced'. Defaults to 'manual'."), mcp.Enum("manual", "synced")),
)

var toolListConflicts = mcp.NewTool("list_conflicts",
	mcp.WithDescription("List pending conflicts between manual and synced records, oldest first. Each conflict carries both records, the overlap in minutes, and its type (time_overlap, duplicate_exercise, conflicting_data)."),
)

var toolResolveConflict = mcp.NewTool("resolve_conflict",
	mcp.WithDescription("Resolve a pending conflict with one of: keep_manual, keep_synced, merge_records, keep_both. The store is updated and the resolution is audited and undoable for 24 hours."),
	mcp.WithString("conflict_id", mcp.Required(), mcp.Description("The pending conflict's id")),
	mcp.WithString("choice", mcp.Required(), mcp.Description("Resolution strategy"), mcp.Enum("keep_manual", "keep_synced", "merge_records", "keep_both")),
	mcp.WithString("notes", mcp.Description("Optional note recorded with the resolution")),
)

var toolGetAuditTrail = mcp.NewTool("get_audit_trail",
	mcp.WithDescription("Read the audit trail, newest first. Optionally filter by action, record id, or time range."),
	mcp.WithString("action", mcp.Description("Filter by action"), mcp.Enum("record_created", "record_updated", "record_deleted", "conflict_resolved", "resolution_undone")),
	mcp.WithString("record_id", mcp.Description("Filter by the affected record's id")),
	mcp.WithString("start", mcp.Description("Earliest entry timestamp")),
	mcp.WithString("end", mcp.Description("Latest entry timestamp")),
	mcp.WithNumber("limit", mcp.Description("Maximum entries to return. Defaults to 50.")),
)

var toolGetAuditStats = mcp.NewTool("get_audit_stats",
	mcp.WithDescription("Audit trail statistics: total entries, undoable operations, undos in the last 24 hours, oldest undoable timestamp, and storage utilization against the rolling cap."),
)

var toolUndoOperation = mcp.NewTool("undo_operation",
	mcp.WithDescription("Undo an audited operation by its audit id. Record mutations are reversed in place; conflict resolutions restore the pre-resolution records. Each operation can be undone once, within 24 hours."),
	mcp.WithString("audit_id", mcp.Required(), mcp.Description("The audit entry's id")),
)

// --- Tool handlers ---

func (h *handlers) queryRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	recs, err := h.ds.History(ctx, storage.DateRange{Start: start, End: end})
	if err != nil {
		h.log.Error("mcp query_records", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(recs)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) checkDuplicates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	startStr, err := req.RequireString("start")
	if err != nil {
		return mcp.NewToolResultError("start parameter is required"), nil
	}
	start, err := parseFlexTime(startStr)
	if err != nil {
		return mcp.NewToolResultError("invalid start: " + err.Error()), nil
	}
	duration, err := req.RequireFloat("duration_min")
	if err != nil {
		return mcp.NewToolResultError("duration_min parameter is required"), nil
	}

	source := models.Source(req.GetString("source", string(models.SourceManual)))
	candidate := models.ExerciseRecord{
		ID:          "candidate",
		Name:        name,
		StartTime:   start,
		DurationMin: int(duration),
		Source:      source,
	}

	res, err := h.ds.DetectDuplicates(ctx, candidate)
	if err != nil {
		h.log.Error("mcp check_duplicates", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(res)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listConflicts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conflicts, err := h.ds.PendingConflicts(ctx)
	if err != nil {
		h.log.Error("mcp list_conflicts", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(conflicts)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) resolveConflict(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conflictID, err := req.RequireString("conflict_id")
	if err != nil {
		return mcp.NewToolResultError("conflict_id parameter is required"), nil
	}
	choice, err := req.RequireString("choice")
	if err != nil {
		return mcp.NewToolResultError("choice parameter is required"), nil
	}

	out, err := h.ds.Resolve(ctx, conflictID, models.ResolutionChoice(choice),
		conflict.ResolveOptions{UserNotes: req.GetString("notes", "")})
	if err != nil {
		h.log.Error("mcp resolve_conflict", "error", err)
		return mcp.NewToolResultError("resolution failed: " + err.Error()), nil
	}
	if !out.Success {
		return mcp.NewToolResultError(out.Error), nil
	}

	result, err := mcp.NewToolResultJSON(out)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getAuditTrail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := audit.Query{
		Action:   models.AuditAction(req.GetString("action", "")),
		RecordID: req.GetString("record_id", ""),
		Limit:    int(req.GetFloat("limit", 50)),
	}
	if startStr := req.GetString("start", ""); startStr != "" {
		start, end, err := defaultTimeRange(startStr, req.GetString("end", ""))
		if err != nil {
			return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
		}
		q.From = start
		q.To = end
	}

	trail, err := h.ds.GetAuditTrail(ctx, q)
	if err != nil {
		h.log.Error("mcp get_audit_trail", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(trail)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getAuditStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.ds.GetManagementStatistics(ctx)
	if err != nil {
		h.log.Error("mcp get_audit_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(stats)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) undoOperation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	auditID, err := req.RequireString("audit_id")
	if err != nil {
		return mcp.NewToolResultError("audit_id parameter is required"), nil
	}

	res, err := h.ds.Undo(ctx, auditID)
	if err != nil {
		h.log.Error("mcp undo_operation", "error", err)
		return mcp.NewToolResultError("undo failed: " + err.Error()), nil
	}
	if !res.Success {
		return mcp.NewToolResultError(res.Reason), nil
	}

	result, err := mcp.NewToolResultJSON(res)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
