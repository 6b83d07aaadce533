package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/claude/fitmerge/internal/models"
)

// MemoryRepository is a map-backed Repository used by tests and local
// experiments. Safe for concurrent use.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]models.ExerciseRecord
	audits  []models.AuditRecord // kept newest-first
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]models.ExerciseRecord)}
}

var _ Repository = (*MemoryRepository)(nil)

// SaveExerciseRecord inserts or replaces a record.
func (m *MemoryRepository) SaveExerciseRecord(_ context.Context, rec models.ExerciseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

// GetExerciseHistory returns records whose start time falls in the range,
// newest-first.
func (m *MemoryRepository) GetExerciseHistory(_ context.Context, dr DateRange) ([]models.ExerciseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ExerciseRecord
	for _, rec := range m.records {
		if dr.Contains(rec.StartTime) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetRecordByID returns the record, or (nil, nil) when absent.
func (m *MemoryRepository) GetRecordByID(_ context.Context, id string) (*models.ExerciseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// UpdateRecord applies a partial update.
func (m *MemoryRepository) UpdateRecord(_ context.Context, id string, fields RecordFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if fields.Name != nil {
		rec.Name = *fields.Name
	}
	if fields.StartTime != nil {
		rec.StartTime = *fields.StartTime
	}
	if fields.DurationMin != nil {
		rec.DurationMin = *fields.DurationMin
	}
	if fields.Metadata != nil {
		rec.Metadata = *fields.Metadata
	}
	m.records[id] = rec
	return nil
}

// DeleteRecord removes a record.
func (m *MemoryRepository) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}

// SaveAuditRecord appends an audit entry, keeping the slice newest-first.
func (m *MemoryRepository) SaveAuditRecord(_ context.Context, rec models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.audits = append(m.audits, rec)
	sort.SliceStable(m.audits, func(i, j int) bool {
		return m.audits[i].Timestamp.After(m.audits[j].Timestamp)
	})
	return nil
}

// GetAuditTrail returns audit entries newest-first. A non-positive limit
// returns everything.
func (m *MemoryRepository) GetAuditTrail(_ context.Context, limit int) ([]models.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.audits)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.AuditRecord, n)
	copy(out, m.audits[:n])
	return out, nil
}

// CleanupOldAuditRecords keeps only the newest maxRecords entries.
func (m *MemoryRepository) CleanupOldAuditRecords(_ context.Context, maxRecords int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxRecords < 0 {
		maxRecords = 0
	}
	if len(m.audits) > maxRecords {
		m.audits = m.audits[:maxRecords]
	}
	return nil
}
