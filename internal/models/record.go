// Package models defines the domain entities shared by the reconciliation
// engine: exercise records, conflicts, resolutions, and audit entries.
package models

import (
	"fmt"
	"time"
)

// Source identifies where an exercise record came from.
type Source string

const (
	SourceManual Source = "manual"
	SourceSynced Source = "synced"
)

// Platform identifies the health platform that produced a synced record.
// Empty for manual records.
type Platform string

const (
	PlatformAppleHealthKit      Platform = "apple_healthkit"
	PlatformGoogleHealthConnect Platform = "google_health_connect"
)

// MaxNameLength is the longest accepted exercise name.
const MaxNameLength = 100

// Metadata carries the well-known optional attributes platforms attach to a
// record, plus a bounded extension map for anything they send that we don't
// model explicitly.
type Metadata struct {
	Calories     *float64          `json:"calories,omitempty"`
	AvgHeartRate *float64          `json:"avgHeartRate,omitempty"`
	OriginalID   string            `json:"originalId,omitempty"`
	Confidence   *float64          `json:"confidence,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether no metadata fields are set.
func (m Metadata) IsZero() bool {
	return m.Calories == nil && m.AvgHeartRate == nil && m.OriginalID == "" &&
		m.Confidence == nil && m.Notes == "" && len(m.Extra) == 0
}

// MergeFrom fills unset fields from other, preferring the receiver's values.
// Extra keys from other are added only where the receiver has none.
func (m Metadata) MergeFrom(other Metadata) Metadata {
	out := m
	if out.Calories == nil {
		out.Calories = other.Calories
	}
	if out.AvgHeartRate == nil {
		out.AvgHeartRate = other.AvgHeartRate
	}
	if out.OriginalID == "" {
		out.OriginalID = other.OriginalID
	}
	if out.Confidence == nil {
		out.Confidence = other.Confidence
	}
	if out.Notes == "" {
		out.Notes = other.Notes
	}
	if len(other.Extra) > 0 {
		merged := make(map[string]string, len(out.Extra)+len(other.Extra))
		for k, v := range other.Extra {
			merged[k] = v
		}
		for k, v := range out.Extra {
			merged[k] = v
		}
		out.Extra = merged
	}
	return out
}

// ExerciseRecord is one exercise entry, either typed in by the user (manual)
// or delivered by a health platform adapter (synced).
type ExerciseRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StartTime   time.Time `json:"startTime"`
	DurationMin int       `json:"durationMin"`
	Source      Source    `json:"source"`
	Platform    Platform  `json:"platform,omitempty"`
	Metadata    Metadata  `json:"metadata,omitzero"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EndTime is the exclusive end of the record's interval.
func (r ExerciseRecord) EndTime() time.Time {
	return r.StartTime.Add(time.Duration(r.DurationMin) * time.Minute)
}

// Validate checks the record invariants: non-empty bounded name, positive
// duration, and platform set iff the record is synced.
func (r ExerciseRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("record name is required")
	}
	if len(r.Name) > MaxNameLength {
		return fmt.Errorf("record name exceeds %d characters", MaxNameLength)
	}
	if r.DurationMin < 1 {
		return fmt.Errorf("duration must be at least 1 minute")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("start time is required")
	}
	switch r.Source {
	case SourceManual:
		if r.Platform != "" {
			return fmt.Errorf("manual record must not carry a platform")
		}
	case SourceSynced:
		if r.Platform == "" {
			return fmt.Errorf("synced record must carry a platform")
		}
	default:
		return fmt.Errorf("unknown source %q", r.Source)
	}
	return nil
}

// Overlap returns the shared duration of two records' intervals, zero if
// they do not intersect.
func Overlap(a, b ExerciseRecord) time.Duration {
	start := a.StartTime
	if b.StartTime.After(start) {
		start = b.StartTime
	}
	end := a.EndTime()
	if b.EndTime().Before(end) {
		end = b.EndTime()
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
