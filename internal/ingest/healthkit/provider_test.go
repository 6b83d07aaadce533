package healthkit

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/claude/fitmerge/internal/models"
)

func testProvider() *Provider {
	return NewProvider(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseConvertsWorkout(t *testing.T) {
	// 2026-03-01T07:00:00Z is 794,041,200 seconds after the Apple epoch.
	payload := `{
		"data": {
			"workouts": [
				{
					"id": "hk-1",
					"name": "Running",
					"start": 794041200,
					"duration": 1800,
					"activeEnergy": 320.5,
					"avgHeartRate": 152
				}
			]
		}
	}`

	records, result, err := testProvider().Parse(strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	if result.WorkoutsReceived != 1 || result.RecordsConverted != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	rec := records[0]
	want := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	if !rec.StartTime.Equal(want) {
		t.Errorf("start = %v, want %v", rec.StartTime, want)
	}
	if rec.DurationMin != 30 {
		t.Errorf("duration = %d, want 30", rec.DurationMin)
	}
	if rec.Source != models.SourceSynced || rec.Platform != models.PlatformAppleHealthKit {
		t.Errorf("source/platform = %s/%s", rec.Source, rec.Platform)
	}
	if rec.Metadata.OriginalID != "hk-1" {
		t.Errorf("original id = %q", rec.Metadata.OriginalID)
	}
	if rec.Metadata.Calories == nil || *rec.Metadata.Calories != 320.5 {
		t.Error("calories not carried over")
	}
	if rec.Metadata.AvgHeartRate == nil || *rec.Metadata.AvgHeartRate != 152 {
		t.Error("heart rate not carried over")
	}
	if !strings.HasPrefix(rec.ID, "rec-") {
		t.Errorf("record id %q not prefix-tagged", rec.ID)
	}
}

func TestParseSkipsUnusableWorkouts(t *testing.T) {
	payload := `{
		"data": {
			"workouts": [
				{"id": "hk-1", "start": 794041200, "duration": 1800},
				{"id": "hk-2", "name": "Running", "duration": 1800},
				{"id": "hk-3", "name": "Running", "start": 794041200, "duration": 10},
				{"id": "hk-4", "name": "Running", "start": 794041200, "duration": 1800}
			]
		}
	}`

	records, result, err := testProvider().Parse(strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	if result.RecordsSkipped != 3 {
		t.Errorf("skipped = %d, want 3", result.RecordsSkipped)
	}
	if len(result.SkippedReasons) != 3 {
		t.Errorf("reasons = %v", result.SkippedReasons)
	}
	if len(records) != 1 || records[0].Metadata.OriginalID != "hk-4" {
		t.Fatalf("records = %v", records)
	}
}

func TestParseRejectsBadJSON(t *testing.T) {
	if _, _, err := testProvider().Parse(strings.NewReader("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
