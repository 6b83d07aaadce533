package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/ingest/healthconnect"
	"github.com/claude/fitmerge/internal/ingest/healthkit"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/storage"
)

func newTestIngestHandler(t *testing.T) (*IngestHandler, *storage.MemoryRepository) {
	t.Helper()
	log := testLogger()
	repo := storage.NewMemoryRepository()
	auditMgr := audit.NewManager(repo, audit.DefaultConfig(), log)
	pipeline := reconcile.New(repo, auditMgr, reconcile.DefaultConfig(), log)
	h := NewIngestHandler(healthkit.NewProvider(log), healthconnect.NewProvider(log), pipeline, log)
	return h, repo
}

func TestHandlePersistsConvertedRecords(t *testing.T) {
	h, repo := newTestIngestHandler(t)

	payload := []byte(`{"sessions":[{
		"id": "hc-1",
		"exerciseType": "Running",
		"startTime": "2026-03-01T07:00:00Z",
		"endTime": "2026-03-01T07:31:00Z"
	}]}`)

	err := h.Handle(context.Background(), Message{
		Topic:    "fitmerge_exports",
		Platform: "google_health_connect",
		BatchID:  "batch-hc",
		Payload:  payload,
	})
	require.NoError(t, err)

	recs, err := repo.GetExerciseHistory(context.Background(), storage.DateRange{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Running", recs[0].Name)
	require.Equal(t, 31, recs[0].DurationMin)
}

func TestHandleRejectsBadPayload(t *testing.T) {
	h, repo := newTestIngestHandler(t)

	err := h.Handle(context.Background(), Message{
		Platform: "apple_healthkit",
		Payload:  []byte(`not json`),
	})
	require.Error(t, err)

	recs, err := repo.GetExerciseHistory(context.Background(), storage.DateRange{})
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestHandleUnknownPlatform(t *testing.T) {
	h, _ := newTestIngestHandler(t)

	err := h.Handle(context.Background(), Message{Platform: "garmin", Payload: []byte(`{}`)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no provider")
}
