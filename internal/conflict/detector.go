// Package conflict finds temporal collisions between manual and synced
// exercise records and applies user-chosen resolution strategies to them.
package conflict

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/models"
)

// Classification boundaries. Near-identical names over overlapping time are
// the same exercise logged twice; clearly different names with a small
// overlap are plausibly back-to-back distinct activities; everything else is
// contradictory data over the same window.
const (
	duplicateNameSimilarity = 0.90
	distinctNameSimilarity  = 0.50
)

// DefaultMinOverlapMinutes is the minimum interval intersection for a pair
// to count as a conflict.
const DefaultMinOverlapMinutes = 5

// Detector finds overlapping cross-source record pairs.
type Detector struct {
	minOverlap time.Duration
	now        func() time.Time
}

// NewDetector creates a Detector with the given minimum overlap in minutes.
// Values below 1 fall back to the default.
func NewDetector(minOverlapMinutes int) *Detector {
	if minOverlapMinutes < 1 {
		minOverlapMinutes = DefaultMinOverlapMinutes
	}
	return &Detector{
		minOverlap: time.Duration(minOverlapMinutes) * time.Minute,
		now:        time.Now,
	}
}

// DetectConflicts examines every manual/synced pair and returns one typed
// Conflict per pair whose intervals intersect by at least the minimum
// overlap. Inputs are never mutated.
func (d *Detector) DetectConflicts(manual, synced []models.ExerciseRecord) []models.Conflict {
	var conflicts []models.Conflict

	for _, m := range manual {
		for _, s := range synced {
			overlap := models.Overlap(m, s)
			if overlap < d.minOverlap {
				continue
			}
			conflicts = append(conflicts, models.Conflict{
				ID:           fmt.Sprintf("conf-%s", uuid.NewString()),
				ManualRecord: m,
				SyncedRecord: s,
				OverlapMin:   int(overlap / time.Minute),
				ConflictType: classify(m, s, overlap),
				DetectedAt:   d.now(),
			})
		}
	}
	return conflicts
}

// classify assigns exactly one conflict type to an overlapping pair. The
// rule is deterministic and total: every overlapping pair lands in one of
// the three buckets.
func classify(m, s models.ExerciseRecord, overlap time.Duration) models.ConflictType {
	sim := dedupe.NameSimilarity(dedupe.NormalizeName(m.Name), dedupe.NormalizeName(s.Name))
	if sim >= duplicateNameSimilarity {
		return models.ConflictDuplicateExercise
	}

	shorter := m.DurationMin
	if s.DurationMin < shorter {
		shorter = s.DurationMin
	}
	halfShorter := time.Duration(shorter) * time.Minute / 2
	if sim < distinctNameSimilarity && overlap < halfShorter {
		return models.ConflictTimeOverlap
	}
	return models.ConflictConflictingData
}
