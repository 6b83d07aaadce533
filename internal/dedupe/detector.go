// Package dedupe scores incoming exercise records against existing ones to
// catch near-duplicates across time, name, and duration, with a bonus for
// cross-source pairs (a manual entry matched against its synced twin).
package dedupe

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/claude/fitmerge/internal/models"
)

// Component weights. The cross-source bonus is added to both the weighted
// total and the possible total, so a same-source identical pair and a
// cross-source identical pair both normalize to 1.0.
const (
	timeWeight        = 0.40
	nameWeight        = 0.30
	durationWeight    = 0.20
	crossSourceWeight = 0.10
)

// MatchThreshold is the minimum score for a pair to be reported as a match.
const MatchThreshold = 0.70

// DuplicateThreshold is the score above which the incoming record is
// declared a duplicate outright.
const DuplicateThreshold = 0.85

// Result is the outcome of checking one incoming record.
type Result struct {
	IsDuplicate bool                    `json:"isDuplicate"`
	Matches     []models.DuplicateMatch `json:"matches"`
	Confidence  float64                 `json:"confidence"`
}

// FilterResult is the outcome of screening a batch of incoming records.
type FilterResult struct {
	Unique         []models.ExerciseRecord `json:"unique"`
	Duplicates     []models.DuplicateMatch `json:"duplicates"`
	DuplicateCount int                     `json:"duplicateCount"`
}

// Detector finds near-duplicate exercise records.
type Detector struct {
	opts Options
}

// New creates a Detector with the given tolerances.
func New(opts Options) *Detector {
	return &Detector{opts: opts}
}

// DetectDuplicates compares incoming against every existing record. Pairs
// scoring above MatchThreshold become matches, sorted best-first; the
// incoming record is a duplicate when the top score exceeds
// DuplicateThreshold. Detection never fails: no match is simply an empty,
// zero-confidence result.
func (d *Detector) DetectDuplicates(incoming models.ExerciseRecord, existing []models.ExerciseRecord) Result {
	var matches []models.DuplicateMatch

	for _, ex := range existing {
		score, reasons := d.score(incoming, ex)
		if score > MatchThreshold {
			matches = append(matches, models.DuplicateMatch{
				ExistingRecord: ex,
				IncomingRecord: incoming,
				MatchScore:     score,
				MatchReasons:   reasons,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})

	res := Result{Matches: matches}
	if len(matches) > 0 {
		res.Confidence = matches[0].MatchScore
		res.IsDuplicate = res.Confidence > DuplicateThreshold
	}
	return res
}

// FilterDuplicates screens a batch in order. Each accepted record joins the
// existing set before the next is checked, so later batch members are
// compared against earlier accepted ones as well.
func (d *Detector) FilterDuplicates(batch, existing []models.ExerciseRecord) FilterResult {
	known := make([]models.ExerciseRecord, len(existing))
	copy(known, existing)

	var out FilterResult
	for _, rec := range batch {
		res := d.DetectDuplicates(rec, known)
		if res.IsDuplicate {
			out.Duplicates = append(out.Duplicates, res.Matches...)
			out.DuplicateCount++
			continue
		}
		out.Duplicates = append(out.Duplicates, res.Matches...)
		out.Unique = append(out.Unique, rec)
		known = append(known, rec)
	}
	return out
}

// score computes the weighted, normalized similarity of two records and the
// human-readable reasons behind it. Symmetric in its arguments.
func (d *Detector) score(a, b models.ExerciseRecord) (float64, []string) {
	var total, possible float64
	var reasons []string

	possible = timeWeight + nameWeight + durationWeight

	// Time proximity: identical starts score 1.0, decaying linearly to 0
	// at the tolerance.
	timeDiff := math.Abs(a.StartTime.Sub(b.StartTime).Minutes())
	if timeDiff < d.opts.TimeToleranceMinutes {
		proximity := 1 - timeDiff/d.opts.TimeToleranceMinutes
		total += timeWeight * proximity
		reasons = append(reasons, fmt.Sprintf("start times within %s of each other",
			time.Duration(timeDiff*float64(time.Minute)).Round(time.Second)))
	}

	// Name similarity, gated at the match threshold.
	sim := NameSimilarity(NormalizeName(a.Name), NormalizeName(b.Name))
	if sim >= d.opts.NameMatchThreshold {
		total += nameWeight * sim
		reasons = append(reasons, fmt.Sprintf("names match (similarity %.2f)", sim))
	}

	// Duration proximity, same linear decay rule.
	durDiff := math.Abs(float64(a.DurationMin - b.DurationMin))
	if durDiff < d.opts.DurationToleranceMinutes {
		proximity := 1 - durDiff/d.opts.DurationToleranceMinutes
		total += durationWeight * proximity
		reasons = append(reasons, fmt.Sprintf("durations within %.0f minutes", durDiff))
	}

	// Cross-source bonus: a manual entry lining up with a synced one is the
	// classic double-logging pattern.
	if a.Source != b.Source {
		total += crossSourceWeight
		possible += crossSourceWeight
		reasons = append(reasons, "cross-platform pair (manual vs synced)")
	}

	return total / possible, reasons
}
