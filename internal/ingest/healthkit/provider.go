// Package healthkit converts Apple HealthKit workout exports into exercise
// records. HealthKit timestamps are seconds since the Apple reference date
// (2001-01-01 UTC), durations arrive in seconds.
package healthkit

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

var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Payload is the workout export envelope.
type Payload struct {
	Data struct {
		Workouts []Workout `json:"workouts"`
	} `json:"data"`
}

// Workout is one exported HealthKit workout.
type Workout struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Start        float64  `json:"start"`
	DurationSec  float64  `json:"duration"`
	ActiveEnergy *float64 `json:"activeEnergy,omitempty"`
	AvgHeartRate *float64 `json:"avgHeartRate,omitempty"`
}

// Provider parses HealthKit payloads.
type Provider struct {
	log *slog.Logger
}

// NewProvider creates a HealthKit converter.
func NewProvider(log *slog.Logger) *Provider {
	return &Provider{log: log}
}

// Parse decodes a payload and converts every workout that carries enough
// data. Unusable workouts are skipped with a reason, never fatal.
func (p *Provider) Parse(r io.Reader) ([]models.ExerciseRecord, *ingest.Result, error) {
	var payload Payload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decoding healthkit payload: %w", err)
	}

	result := &ingest.Result{WorkoutsReceived: len(payload.Data.Workouts)}
	var records []models.ExerciseRecord

	for _, w := range payload.Data.Workouts {
		rec, err := convertWorkout(w)
		if err != nil {
			result.RecordsSkipped++
			result.SkippedReasons = append(result.SkippedReasons, err.Error())
			p.log.Warn("skipping healthkit workout", "id", w.ID, "error", err)
			continue
		}
		records = append(records, rec)
		result.RecordsConverted++
	}
	return records, result, nil
}

func convertWorkout(w Workout) (models.ExerciseRecord, error) {
	if w.Name == "" {
		return models.ExerciseRecord{}, fmt.Errorf("workout %s has no name", w.ID)
	}
	if w.Start <= 0 {
		return models.ExerciseRecord{}, fmt.Errorf("workout %s has no start time", w.ID)
	}
	minutes := int(math.Round(w.DurationSec / 60))
	if minutes < 1 {
		return models.ExerciseRecord{}, fmt.Errorf("workout %s is shorter than a minute", w.ID)
	}

	now := time.Now().UTC()
	rec := models.ExerciseRecord{
		ID:          fmt.Sprintf("rec-%s", uuid.NewString()),
		Name:        w.Name,
		StartTime:   appleEpoch.Add(time.Duration(w.Start * float64(time.Second))),
		DurationMin: minutes,
		Source:      models.SourceSynced,
		Platform:    models.PlatformAppleHealthKit,
		Metadata: models.Metadata{
			Calories:     w.ActiveEnergy,
			AvgHeartRate: w.AvgHeartRate,
			OriginalID:   w.ID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return rec, rec.Validate()
}
