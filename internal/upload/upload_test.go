package upload

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const healthkitExport = `{"data":{"workouts":[
	{"id":"hk-1","name":"Running","start":794041200,"duration":1800}
]}}`

const healthconnectExport = `{"sessions":[
	{"id":"hc-1","exerciseType":"Cycling","startTime":"2026-03-02T08:00:00Z","endTime":"2026-03-02T08:45:00Z"}
]}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeExport(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestEndpoint(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"healthkit", healthkitExport, "/api/v1/ingest/healthkit", false},
		{"healthconnect", healthconnectExport, "/api/v1/ingest/healthconnect", false},
		{"unknown", `{"foo":1}`, "", true},
		{"broken", `{`, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ingestEndpoint([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("endpoint=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestStateDBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	state, err := OpenStateDB(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	sent, err := state.AlreadySent("a.json", 100, "hash1")
	if err != nil {
		t.Fatal(err)
	}
	if sent {
		t.Error("fresh state reported file as sent")
	}

	if err := state.MarkSent("a.json", 100, "hash1", "batch-1"); err != nil {
		t.Fatal(err)
	}

	sent, err = state.AlreadySent("a.json", 100, "hash1")
	if err != nil {
		t.Fatal(err)
	}
	if !sent {
		t.Error("marked file not reported as sent")
	}

	// Different hash means the file changed and should be re-sent.
	sent, err = state.AlreadySent("a.json", 100, "hash2")
	if err != nil {
		t.Fatal(err)
	}
	if sent {
		t.Error("changed file reported as sent")
	}

	// Re-marking after a rewrite replaces the row.
	if err := state.MarkSent("a.json", 120, "hash2", "batch-2"); err != nil {
		t.Fatal(err)
	}
	sent, err = state.AlreadySent("a.json", 120, "hash2")
	if err != nil {
		t.Fatal(err)
	}
	if !sent {
		t.Error("re-marked file not reported as sent")
	}
}

func TestClientSendExport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ingest/healthkit" {
			t.Errorf("path=%q", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "key-123" {
			t.Errorf("api key=%q, want key-123", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"batchId": "batch-1",
			"ingest":  map[string]int{"workoutsReceived": 1, "recordsConverted": 1},
			"reconcile": map[string]any{
				"accepted":       []map[string]string{{"id": "rec-1"}},
				"duplicateCount": 0,
			},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "key-123")
	res, err := client.SendExport("/api/v1/ingest/healthkit", []byte(healthkitExport))
	if err != nil {
		t.Fatal(err)
	}
	if res.BatchID != "batch-1" {
		t.Errorf("batch=%q, want batch-1", res.BatchID)
	}
	if res.Accepted != 1 {
		t.Errorf("accepted=%d, want 1", res.Accepted)
	}
	if res.Converted != 1 {
		t.Errorf("converted=%d, want 1", res.Converted)
	}
}

func TestClientRejectionIsPermanent(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "wrong-key")
	_, err := client.SendExport("/api/v1/ingest/healthkit", []byte(healthkitExport))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("got %d attempts, want 1 (4xx is permanent)", calls)
	}
}

func TestUploaderSkipsAlreadyUploaded(t *testing.T) {
	var received int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"batchId": "batch-1", "reconcile": map[string]any{}})
	}))
	defer ts.Close()

	exportDir := t.TempDir()
	writeExport(t, exportDir, "export.json", healthconnectExport)

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	client := NewClient(ts.URL, "key-123")

	up := NewUploader(client, state, exportDir, false, testLogger())
	stats, err := up.Run()
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesUploaded != 1 {
		t.Fatalf("uploaded=%d, want 1", stats.FilesUploaded)
	}

	// Second run: nothing new to send.
	up = NewUploader(client, state, exportDir, false, testLogger())
	stats, err = up.Run()
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesUploaded != 0 {
		t.Errorf("uploaded=%d on rerun, want 0", stats.FilesUploaded)
	}
	if stats.FilesSkipped != 1 {
		t.Errorf("skipped=%d on rerun, want 1", stats.FilesSkipped)
	}
	if received != 1 {
		t.Errorf("server received %d uploads, want 1", received)
	}
}

func TestUploaderDryRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("dry run must not contact the server")
	}))
	defer ts.Close()

	exportDir := t.TempDir()
	writeExport(t, exportDir, "export.json", healthkitExport)

	up := NewUploader(NewClient(ts.URL, "key"), nil, exportDir, true, testLogger())
	stats, err := up.Run()
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesUploaded != 0 {
		t.Errorf("uploaded=%d, want 0", stats.FilesUploaded)
	}
	if stats.FilesTotal != 1 {
		t.Errorf("total=%d, want 1", stats.FilesTotal)
	}
}
