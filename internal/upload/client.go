package upload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ingestReply mirrors the server's ingest response without importing the
// server packages (which would pull in chi and the storage drivers).
type ingestReply struct {
	BatchID string `json:"batchId"`
	Ingest  *struct {
		WorkoutsReceived int `json:"workoutsReceived"`
		RecordsConverted int `json:"recordsConverted"`
		RecordsSkipped   int `json:"recordsSkipped"`
	} `json:"ingest"`
	Reconcile struct {
		DuplicateCount int               `json:"duplicateCount"`
		Accepted       []json.RawMessage `json:"accepted"`
		Conflicts      []json.RawMessage `json:"conflicts"`
	} `json:"reconcile"`
}

// SendResult summarizes what the server did with one export file.
type SendResult struct {
	BatchID   string
	Converted int
	Accepted  int
	Dropped   int
	Conflicts int
}

// Client sends export payloads to the FitMerge server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an HTTP client for the FitMerge server's ingest API.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// SendExport POSTs one export payload to the platform's ingest endpoint.
// Retries up to 3 times with exponential backoff on transport failures and
// 5xx responses; 4xx responses are permanent and fail immediately.
func (c *Client) SendExport(endpoint string, payload []byte) (SendResult, error) {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
		}

		req, err := http.NewRequest(http.MethodPost, c.serverURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return SendResult{}, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var reply ingestReply
			if err := json.Unmarshal(body, &reply); err != nil {
				return SendResult{}, fmt.Errorf("decoding ingest response: %w", err)
			}
			res := SendResult{
				BatchID:   reply.BatchID,
				Accepted:  len(reply.Reconcile.Accepted),
				Dropped:   reply.Reconcile.DuplicateCount,
				Conflicts: len(reply.Reconcile.Conflicts),
			}
			if reply.Ingest != nil {
				res.Converted = reply.Ingest.RecordsConverted
			}
			return res, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("ingest failed (status %d): %s", resp.StatusCode, body)
		default:
			return SendResult{}, fmt.Errorf("ingest rejected (status %d): %s", resp.StatusCode, body)
		}
	}

	return SendResult{}, fmt.Errorf("after 3 attempts: %w", lastErr)
}
