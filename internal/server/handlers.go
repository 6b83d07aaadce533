package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/conflict"
	"github.com/claude/fitmerge/internal/ingest"
	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/observability"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/records"
	"github.com/claude/fitmerge/internal/storage"
)

// ingestResponse pairs the payload conversion outcome with what the
// reconciliation pipeline did with the converted records.
type ingestResponse struct {
	BatchID   string                 `json:"batchId"`
	Ingest    *ingest.Result         `json:"ingest"`
	Reconcile reconcile.IngestResult `json:"reconcile"`
}

func (s *Server) handleHealthKitIngest(w http.ResponseWriter, r *http.Request) {
	recs, result, err := s.healthkit.Parse(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.reconcileBatch(w, r, recs, result)
}

func (s *Server) handleHealthConnectIngest(w http.ResponseWriter, r *http.Request) {
	recs, result, err := s.healthconnect.Parse(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.reconcileBatch(w, r, recs, result)
}

func (s *Server) reconcileBatch(w http.ResponseWriter, r *http.Request, recs []models.ExerciseRecord, result *ingest.Result) {
	batchID := fmt.Sprintf("batch-%s", uuid.NewString())
	outcome, err := s.pipeline.IngestSyncedBatch(r.Context(), batchID, recs)
	if err != nil {
		s.log.Error("ingest error", "batch", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{BatchID: batchID, Ingest: result, Reconcile: outcome})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	recs, err := s.records.History(r.Context(), storage.DateRange{Start: start, End: end})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in records.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	res, err := s.records.Create(r.Context(), in)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// recordPatch is the PATCH body; absent fields are left untouched.
type recordPatch struct {
	Name        *string          `json:"name,omitempty"`
	StartTime   *time.Time       `json:"startTime,omitempty"`
	DurationMin *int             `json:"durationMin,omitempty"`
	Metadata    *models.Metadata `json:"metadata,omitempty"`
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var patch recordPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	res, err := s.records.Update(r.Context(), chi.URLParam(r, "id"), storage.RecordFields{
		Name:        patch.Name,
		StartTime:   patch.StartTime,
		DurationMin: patch.DurationMin,
		Metadata:    patch.Metadata,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !res.Success {
		writeJSON(w, statusForFailure(res.Error), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	res, err := s.records.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !res.Success {
		writeJSON(w, statusForFailure(res.Error), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.PendingConflicts())
}

// resolveRequest is the body for POST /api/v1/conflicts/{id}/resolve.
type resolveRequest struct {
	Choice models.ResolutionChoice `json:"choice"`
	Notes  string                  `json:"notes,omitempty"`
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	out, err := s.pipeline.Resolve(r.Context(), chi.URLParam(r, "id"), req.Choice,
		conflict.ResolveOptions{UserNotes: req.Notes})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !out.Success {
		writeJSON(w, statusForFailure(out.Error), out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{
		Action:   models.AuditAction(r.URL.Query().Get("action")),
		RecordID: r.URL.Query().Get("record_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		q.Limit = limit
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if r.URL.Query().Get("start") != "" {
		q.From = start
		q.To = end
	}

	trail, err := s.audit.GetAuditTrail(r.Context(), q)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.audit.GetManagementStatistics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	observability.RecordAuditUtilization(stats.StorageUtilization)
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUndoableOperations(w http.ResponseWriter, r *http.Request) {
	maxAge := 0
	if v := r.URL.Query().Get("max_age_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid max_age_hours"})
			return
		}
		maxAge = hours
	}

	ops, err := s.audit.GetUndoableOperations(r.Context(), maxAge)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.Undo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !res.Success {
		writeJSON(w, statusForFailure(res.Reason), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusForFailure maps a structured failure reason to an HTTP status.
func statusForFailure(reason string) int {
	if strings.Contains(reason, "not found") {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}
