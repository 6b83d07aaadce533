package dedupe

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/claude/fitmerge/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func manualRun(start time.Time, durMin int) models.ExerciseRecord {
	return models.ExerciseRecord{
		ID:          "rec-manual",
		Name:        "Running",
		StartTime:   start,
		DurationMin: durMin,
		Source:      models.SourceManual,
	}
}

func syncedRun(start time.Time, durMin int) models.ExerciseRecord {
	return models.ExerciseRecord{
		ID:          "rec-synced",
		Name:        "Running",
		StartTime:   start,
		DurationMin: durMin,
		Source:      models.SourceSynced,
		Platform:    models.PlatformAppleHealthKit,
	}
}

// An identical copy of a record must always come back as a duplicate.
func TestSelfMatchIsDuplicate(t *testing.T) {
	d := New(DefaultOptions())
	rec := manualRun(baseTime, 30)
	dup := rec
	dup.ID = "rec-copy"

	res := d.DetectDuplicates(dup, []models.ExerciseRecord{rec})
	if !res.IsDuplicate {
		t.Fatal("identical copy not flagged as duplicate")
	}
	if res.Confidence <= DuplicateThreshold {
		t.Errorf("confidence = %v, want > %v", res.Confidence, DuplicateThreshold)
	}
	// Same-source perfect match normalizes to exactly 1.0.
	if math.Abs(res.Confidence-1.0) > 1e-9 {
		t.Errorf("self-match confidence = %v, want 1.0", res.Confidence)
	}
}

func TestTimeShiftBeyondToleranceNotDuplicate(t *testing.T) {
	d := New(DefaultOptions())
	rec := manualRun(baseTime, 30)
	shifted := manualRun(baseTime.Add(6*time.Minute), 30) // tolerance is 5

	res := d.DetectDuplicates(shifted, []models.ExerciseRecord{rec})
	if res.IsDuplicate {
		t.Errorf("record shifted beyond tolerance flagged duplicate (confidence %v)", res.Confidence)
	}
}

func TestScoreSymmetry(t *testing.T) {
	d := New(DefaultOptions())
	a := manualRun(baseTime, 30)
	b := syncedRun(baseTime.Add(3*time.Minute), 32)

	ab, _ := d.score(a, b)
	ba, _ := d.score(b, a)
	if math.Abs(ab-ba) > 1e-12 {
		t.Errorf("score not symmetric: %v vs %v", ab, ba)
	}
}

// Flipping only the source of the candidate so it differs from the existing
// record must never lower the score.
func TestCrossSourceBonusMonotone(t *testing.T) {
	d := New(DefaultOptions())
	existing := manualRun(baseTime, 30)

	for _, shift := range []time.Duration{0, time.Minute, 3 * time.Minute, 10 * time.Minute} {
		same := manualRun(baseTime.Add(shift), 30)
		cross := same
		cross.Source = models.SourceSynced
		cross.Platform = models.PlatformGoogleHealthConnect

		sameScore, _ := d.score(same, existing)
		crossScore, _ := d.score(cross, existing)
		if crossScore < sameScore-1e-12 {
			t.Errorf("shift %v: cross-source score %v < same-source %v", shift, crossScore, sameScore)
		}
	}
}

// The worked scenario: manual "Running" at T for 30 minutes vs a synced
// "Running" at T+2m for 31 minutes.
func TestManualVsSyncedCounterpart(t *testing.T) {
	manual := manualRun(baseTime, 30)
	synced := syncedRun(baseTime.Add(2*time.Minute), 31)

	res := New(DefaultOptions()).DetectDuplicates(synced, []models.ExerciseRecord{manual})
	if len(res.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(res.Matches))
	}
	m := res.Matches[0]
	if m.MatchScore <= MatchThreshold {
		t.Errorf("score = %v, want > %v", m.MatchScore, MatchThreshold)
	}

	wantReasons := []string{"start times", "names match", "cross-platform"}
	for _, want := range wantReasons {
		found := false
		for _, r := range m.MatchReasons {
			if strings.Contains(r, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("reasons %v missing %q", m.MatchReasons, want)
		}
	}

	// Under the lenient preset the same pair clears the duplicate bar.
	lenient := New(OptionsForScenario(ScenarioLenient)).DetectDuplicates(synced, []models.ExerciseRecord{manual})
	if !lenient.IsDuplicate {
		t.Errorf("lenient confidence = %v, want > %v", lenient.Confidence, DuplicateThreshold)
	}
}

// For any borderline pair, loosening the scenario can only raise confidence.
func TestScenarioConfidenceOrdering(t *testing.T) {
	manual := manualRun(baseTime, 30)
	pairs := []models.ExerciseRecord{
		syncedRun(baseTime.Add(2*time.Minute), 31),
		syncedRun(baseTime.Add(4*time.Minute), 33),
		manualRun(baseTime.Add(90*time.Second), 30),
	}

	for i, candidate := range pairs {
		strict := New(OptionsForScenario(ScenarioStrict)).DetectDuplicates(candidate, []models.ExerciseRecord{manual})
		normal := New(OptionsForScenario(ScenarioNormal)).DetectDuplicates(candidate, []models.ExerciseRecord{manual})
		lenient := New(OptionsForScenario(ScenarioLenient)).DetectDuplicates(candidate, []models.ExerciseRecord{manual})

		if normal.Confidence < strict.Confidence-1e-12 {
			t.Errorf("pair %d: normal %v < strict %v", i, normal.Confidence, strict.Confidence)
		}
		if lenient.Confidence < normal.Confidence-1e-12 {
			t.Errorf("pair %d: lenient %v < normal %v", i, lenient.Confidence, normal.Confidence)
		}
	}
}

func TestScenarioPresetOrdering(t *testing.T) {
	strict := OptionsForScenario(ScenarioStrict)
	normal := OptionsForScenario(ScenarioNormal)
	lenient := OptionsForScenario(ScenarioLenient)

	if !(strict.TimeToleranceMinutes <= normal.TimeToleranceMinutes && normal.TimeToleranceMinutes <= lenient.TimeToleranceMinutes) {
		t.Error("time tolerance not ordered strict <= normal <= lenient")
	}
	if !(strict.DurationToleranceMinutes <= normal.DurationToleranceMinutes && normal.DurationToleranceMinutes <= lenient.DurationToleranceMinutes) {
		t.Error("duration tolerance not ordered strict <= normal <= lenient")
	}
	if !(strict.NameMatchThreshold >= normal.NameMatchThreshold && normal.NameMatchThreshold >= lenient.NameMatchThreshold) {
		t.Error("name threshold not ordered strict >= normal >= lenient")
	}
}

// A batch member that duplicates an earlier accepted batch member must be
// dropped even though neither is in the pre-existing set.
func TestFilterDuplicatesGrowingSet(t *testing.T) {
	d := New(DefaultOptions())

	first := syncedRun(baseTime, 30)
	first.ID = "batch-1"
	twin := syncedRun(baseTime, 30)
	twin.ID = "batch-2"
	other := syncedRun(baseTime.Add(3*time.Hour), 45)
	other.ID = "batch-3"
	other.Name = "Cycling"

	res := d.FilterDuplicates([]models.ExerciseRecord{first, twin, other}, nil)

	if len(res.Unique) != 2 {
		t.Fatalf("unique = %d, want 2", len(res.Unique))
	}
	if res.Unique[0].ID != "batch-1" || res.Unique[1].ID != "batch-3" {
		t.Errorf("unique ids = %s, %s", res.Unique[0].ID, res.Unique[1].ID)
	}
	if res.DuplicateCount != 1 {
		t.Errorf("duplicate count = %d, want 1", res.DuplicateCount)
	}
	if len(res.Duplicates) == 0 || res.Duplicates[0].IncomingRecord.ID != "batch-2" {
		t.Errorf("duplicate matches should name batch-2: %+v", res.Duplicates)
	}
}

func TestDetectAgainstEmptyExisting(t *testing.T) {
	res := New(DefaultOptions()).DetectDuplicates(manualRun(baseTime, 30), nil)
	if res.IsDuplicate || res.Confidence != 0 || len(res.Matches) != 0 {
		t.Errorf("empty existing set should yield zero result, got %+v", res)
	}
}
