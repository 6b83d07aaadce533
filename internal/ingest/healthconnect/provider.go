// Package healthconnect converts Google Health Connect session exports into
// exercise records. Timestamps are RFC3339; durations come from the session
// start/end pair.
package healthconnect

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/claude/fitmerge/internal/ingest"
	"github.com/claude/fitmerge/internal/models"
)

// Payload is the session export envelope.
type Payload struct {
	Sessions []Session `json:"sessions"`
}

// Session is one exported exercise session.
type Session struct {
	ID           string `json:"id"`
	ExerciseType string `json:"exerciseType"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	Energy       *struct {
		Kcal float64 `json:"kcal"`
	} `json:"energy,omitempty"`
	HeartRate *struct {
		Avg float64 `json:"avg"`
	} `json:"heartRate,omitempty"`
}

// Provider parses Health Connect payloads.
type Provider struct {
	log *slog.Logger
}

// NewProvider creates a Health Connect converter.
func NewProvider(log *slog.Logger) *Provider {
	return &Provider{log: log}
}

// Parse decodes a payload and converts every session that carries enough
// data. Unusable sessions are skipped with a reason, never fatal.
func (p *Provider) Parse(r io.Reader) ([]models.ExerciseRecord, *ingest.Result, error) {
	var payload Payload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decoding health connect payload: %w", err)
	}

	result := &ingest.Result{WorkoutsReceived: len(payload.Sessions)}
	var records []models.ExerciseRecord

	for _, s := range payload.Sessions {
		rec, err := convertSession(s)
		if err != nil {
			result.RecordsSkipped++
			result.SkippedReasons = append(result.SkippedReasons, err.Error())
			p.log.Warn("skipping health connect session", "id", s.ID, "error", err)
			continue
		}
		records = append(records, rec)
		result.RecordsConverted++
	}
	return records, result, nil
}

func convertSession(s Session) (models.ExerciseRecord, error) {
	if s.ExerciseType == "" {
		return models.ExerciseRecord{}, fmt.Errorf("session %s has no exercise type", s.ID)
	}
	start, err := time.Parse(time.RFC3339, s.StartTime)
	if err != nil {
		return models.ExerciseRecord{}, fmt.Errorf("session %s start time: %w", s.ID, err)
	}
	end, err := time.Parse(time.RFC3339, s.EndTime)
	if err != nil {
		return models.ExerciseRecord{}, fmt.Errorf("session %s end time: %w", s.ID, err)
	}
	minutes := int(math.Round(end.Sub(start).Minutes()))
	if minutes < 1 {
		return models.ExerciseRecord{}, fmt.Errorf("session %s is shorter than a minute", s.ID)
	}

	meta := models.Metadata{OriginalID: s.ID}
	if s.Energy != nil {
		kcal := s.Energy.Kcal
		meta.Calories = &kcal
	}
	if s.HeartRate != nil {
		avg := s.HeartRate.Avg
		meta.AvgHeartRate = &avg
	}

	now := time.Now().UTC()
	rec := models.ExerciseRecord{
		ID:          fmt.Sprintf("rec-%s", uuid.NewString()),
		Name:        s.ExerciseType,
		StartTime:   start,
		DurationMin: minutes,
		Source:      models.SourceSynced,
		Platform:    models.PlatformGoogleHealthConnect,
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return rec, rec.Validate()
}
