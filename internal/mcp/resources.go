package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/fitmerge/internal/audit"
)

func (h *handlers) recentAuditActivity(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	trail, err := h.ds.GetAuditTrail(ctx, audit.Query{Limit: 25})
	if err != nil {
		return nil, err
	}

	stats, err := h.ds.GetManagementStatistics(ctx)
	if err != nil {
		h.log.Warn("recent_audit_activity: stats failed", "error", err)
	}

	undoable, err := h.ds.GetUndoableOperations(ctx, 0)
	if err != nil {
		h.log.Warn("recent_audit_activity: undoable query failed", "error", err)
	}

	activity := map[string]any{
		"recent_entries": trail,
		"statistics":     stats,
		"undoable":       undoable,
	}

	data, err := json.Marshal(activity)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
