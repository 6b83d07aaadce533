package consumer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/claude/fitmerge/internal/ingest"
	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/reconcile"
)

// Provider converts a platform export payload into exercise records.
type Provider interface {
	Parse(r io.Reader) ([]models.ExerciseRecord, *ingest.Result, error)
}

// IngestHandler routes decoded messages to the matching platform provider
// and runs the converted records through the reconciliation pipeline.
type IngestHandler struct {
	providers map[string]Provider
	pipeline  *reconcile.Pipeline
	log       *slog.Logger
}

// NewIngestHandler builds a handler for the given platform providers.
func NewIngestHandler(healthkit, healthconnect Provider, pipeline *reconcile.Pipeline, log *slog.Logger) *IngestHandler {
	return &IngestHandler{
		providers: map[string]Provider{
			string(models.PlatformAppleHealthKit):      healthkit,
			string(models.PlatformGoogleHealthConnect): healthconnect,
		},
		pipeline: pipeline,
		log:      log,
	}
}

// Handle converts the payload and ingests the resulting batch. Conversion
// failures are permanent and reported as errors so the processor leaves the
// offset uncommitted only for infrastructure faults; a payload that parses
// but converts nothing is a no-op, not an error.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	provider, ok := h.providers[msg.Platform]
	if !ok {
		return fmt.Errorf("no provider for platform %q", msg.Platform)
	}

	recs, result, err := provider.Parse(bytes.NewReader(msg.Payload))
	if err != nil {
		return fmt.Errorf("parsing %s payload: %w", msg.Platform, err)
	}

	batchID := msg.BatchID
	if batchID == "" {
		batchID = fmt.Sprintf("batch-%s", uuid.NewString())
	}

	outcome, err := h.pipeline.IngestSyncedBatch(ctx, batchID, recs)
	if err != nil {
		return err
	}

	h.log.Info("consumed platform batch",
		"platform", msg.Platform,
		"batch", batchID,
		"received", result.WorkoutsReceived,
		"converted", result.RecordsConverted,
		"accepted", len(outcome.Accepted),
		"duplicates", outcome.DuplicateCount,
		"conflicts", len(outcome.Conflicts))
	return nil
}
