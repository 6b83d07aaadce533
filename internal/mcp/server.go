package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("FitMerge", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("FitMerge exercise reconciliation server. Query exercise records, inspect and resolve conflicts between manual and synced entries, check candidate records for duplicates, and browse or undo audited operations."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolQueryRecords, Handler: h.queryRecords},
		server.ServerTool{Tool: toolCheckDuplicates, Handler: h.checkDuplicates},
		server.ServerTool{Tool: toolListConflicts, Handler: h.listConflicts},
		server.ServerTool{Tool: toolResolveConflict, Handler: h.resolveConflict},
		server.ServerTool{Tool: toolGetAuditTrail, Handler: h.getAuditTrail},
		server.ServerTool{Tool: toolGetAuditStats, Handler: h.getAuditStats},
		server.ServerTool{Tool: toolUndoOperation, Handler: h.undoOperation},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resRecentAuditActivity, Handler: h.recentAuditActivity},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resRecentAuditActivity = mcp.NewResource(
	"fitmerge://recent_audit_activity",
	"Recent Audit Activity",
	mcp.WithResourceDescription("The most recent audit trail entries plus trail statistics and currently undoable operations"),
	mcp.WithMIMEType("application/json"),
)
