package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/conflict"
	"github.com/claude/fitmerge/internal/dedupe"
	"github.com/claude/fitmerge/internal/models"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/storage"
)

// HTTPClient implements DataSource by calling the FitMerge REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	detector   *dedupe.Detector
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		detector:   dedupe.New(dedupe.DefaultOptions()),
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

// post sends a JSON body and returns the response body for any status the
// server answers with a structured payload (failed resolutions and undos
// come back as 4xx with a decodable body).
func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusBadRequest, http.StatusNotFound:
		return respBody, nil
	default:
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, respBody)
	}
}

func timeParams(dr storage.DateRange) url.Values {
	v := url.Values{}
	if !dr.Start.IsZero() {
		v.Set("start", dr.Start.Format(time.RFC3339))
	}
	if !dr.End.IsZero() {
		v.Set("end", dr.End.Format(time.RFC3339))
	}
	return v
}

func (c *HTTPClient) History(ctx context.Context, dr storage.DateRange) ([]models.ExerciseRecord, error) {
	body, err := c.get(ctx, "/api/v1/records", timeParams(dr))
	if err != nil {
		return nil, err
	}

	var recs []models.ExerciseRecord
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("httpclient: decode records: %w", err)
	}
	return recs, nil
}

func (c *HTTPClient) PendingConflicts(ctx context.Context) ([]models.Conflict, error) {
	body, err := c.get(ctx, "/api/v1/conflicts", nil)
	if err != nil {
		return nil, err
	}

	var conflicts []models.Conflict
	if err := json.Unmarshal(body, &conflicts); err != nil {
		return nil, fmt.Errorf("httpclient: decode conflicts: %w", err)
	}
	return conflicts, nil
}

func (c *HTTPClient) Resolve(ctx context.Context, conflictID string, choice models.ResolutionChoice, opts conflict.ResolveOptions) (reconcile.ResolveOutcome, error) {
	body, err := c.post(ctx, "/api/v1/conflicts/"+conflictID+"/resolve", map[string]string{
		"choice": string(choice),
		"notes":  opts.UserNotes,
	})
	if err != nil {
		return reconcile.ResolveOutcome{}, err
	}

	var out reconcile.ResolveOutcome
	if err := json.Unmarshal(body, &out); err != nil {
		return reconcile.ResolveOutcome{}, fmt.Errorf("httpclient: decode resolution: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) Undo(ctx context.Context, auditID string) (audit.UndoResult, error) {
	body, err := c.post(ctx, "/api/v1/audit/"+auditID+"/undo", nil)
	if err != nil {
		return audit.UndoResult{}, err
	}

	var res audit.UndoResult
	if err := json.Unmarshal(body, &res); err != nil {
		return audit.UndoResult{}, fmt.Errorf("httpclient: decode undo result: %w", err)
	}
	return res, nil
}

func (c *HTTPClient) GetAuditTrail(ctx context.Context, q audit.Query) ([]models.AuditRecord, error) {
	params := timeParams(storage.DateRange{Start: q.From, End: q.To})
	if q.Action != "" {
		params.Set("action", string(q.Action))
	}
	if q.RecordID != "" {
		params.Set("record_id", q.RecordID)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	body, err := c.get(ctx, "/api/v1/audit", params)
	if err != nil {
		return nil, err
	}

	var trail []models.AuditRecord
	if err := json.Unmarshal(body, &trail); err != nil {
		return nil, fmt.Errorf("httpclient: decode audit trail: %w", err)
	}
	return trail, nil
}

func (c *HTTPClient) GetManagementStatistics(ctx context.Context) (audit.Statistics, error) {
	body, err := c.get(ctx, "/api/v1/audit/stats", nil)
	if err != nil {
		return audit.Statistics{}, err
	}

	var stats audit.Statistics
	if err := json.Unmarshal(body, &stats); err != nil {
		return audit.Statistics{}, fmt.Errorf("httpclient: decode audit stats: %w", err)
	}
	return stats, nil
}

func (c *HTTPClient) GetUndoableOperations(ctx context.Context, maxAgeHours int) ([]models.AuditRecord, error) {
	params := url.Values{}
	if maxAgeHours > 0 {
		params.Set("max_age_hours", strconv.Itoa(maxAgeHours))
	}

	body, err := c.get(ctx, "/api/v1/audit/undoable", params)
	if err != nil {
		return nil, err
	}

	var ops []models.AuditRecord
	if err := json.Unmarshal(body, &ops); err != nil {
		return nil, fmt.Errorf("httpclient: decode undoable operations: %w", err)
	}
	return ops, nil
}

// DetectDuplicates screens the candidate locally against the remote history.
// The detector runs client-side with default tolerances; only the record
// fetch goes over the wire.
func (c *HTTPClient) DetectDuplicates(ctx context.Context, incoming models.ExerciseRecord) (dedupe.Result, error) {
	existing, err := c.History(ctx, storage.DateRange{})
	if err != nil {
		return dedupe.Result{}, err
	}
	return c.detector.DetectDuplicates(incoming, existing), nil
}
