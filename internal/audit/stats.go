package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/fitmerge/internal/models"
)

// Statistics summarizes the trail for management surfaces.
type Statistics struct {
	TotalRecords       int        `json:"totalRecords"`
	UndoableOperations int        `json:"undoableOperations"`
	UndosLast24h       int        `json:"undosLast24h"`
	OldestUndoable     *time.Time `json:"oldestUndoable,omitempty"`
	StorageUtilization float64    `json:"storageUtilization"`
}

// GetManagementStatistics computes trail totals, undo availability, and
// how full the rolling cap is.
func (m *Manager) GetManagementStatistics(ctx context.Context) (Statistics, error) {
	trail, err := m.repo.GetAuditTrail(ctx, 0)
	if err != nil {
		return Statistics{}, fmt.Errorf("reading audit trail: %w", err)
	}

	now := m.now()
	undone := buildUndoneIndex(trail)
	cutoff := now.Add(-m.cfg.UndoWindow)
	dayAgo := now.Add(-24 * time.Hour)

	stats := Statistics{
		TotalRecords:       len(trail),
		StorageUtilization: float64(len(trail)) / float64(m.cfg.MaxRecords),
	}

	for _, entry := range trail {
		if entry.Metadata.OriginalAuditID != "" && entry.Timestamp.After(dayAgo) {
			stats.UndosLast24h++
		}

		if !models.UndoableActions[entry.Action] || entry.Metadata.OriginalAuditID != "" {
			continue
		}
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		if _, already := undone[entry.ID]; already {
			continue
		}
		stats.UndoableOperations++
		ts := entry.Timestamp
		if stats.OldestUndoable == nil || ts.Before(*stats.OldestUndoable) {
			stats.OldestUndoable = &ts
		}
	}
	return stats, nil
}
