package audit

import (
	"context"
	"fmt"
)

// ValidateAuditTrail runs an integrity check over the stored trail: every
// entry must have its required fields, entries must come back newest-first,
// and ids must be unique. Violations are collected and returned, never
// raised as errors; an empty slice means the trail is consistent.
func (m *Manager) ValidateAuditTrail(ctx context.Context) ([]string, error) {
	trail, err := m.repo.GetAuditTrail(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}

	var violations []string
	seen := make(map[string]bool, len(trail))

	for i, entry := range trail {
		if entry.ID == "" {
			violations = append(violations, fmt.Sprintf("entry %d has no id", i))
		}
		if entry.Action == "" {
			violations = append(violations, fmt.Sprintf("entry %s has no action", entry.ID))
		}
		if entry.Timestamp.IsZero() {
			violations = append(violations, fmt.Sprintf("entry %s has no timestamp", entry.ID))
		}
		if entry.RecordID == "" {
			violations = append(violations, fmt.Sprintf("entry %s has no record id", entry.ID))
		}
		if seen[entry.ID] {
			violations = append(violations, fmt.Sprintf("duplicate audit id %s", entry.ID))
		}
		seen[entry.ID] = true

		if i > 0 && entry.Timestamp.After(trail[i-1].Timestamp) {
			violations = append(violations, fmt.Sprintf(
				"entry %s is newer than the entry before it; trail is not newest-first", entry.ID))
		}
	}
	return violations, nil
}
