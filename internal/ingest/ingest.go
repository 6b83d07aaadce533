// Package ingest converts platform export payloads into exercise records.
// Providers are pure converters: they parse, validate, and tag records with
// their source platform, and leave persistence and reconciliation to the
// caller.
package ingest

// Result holds the outcome of converting one payload.
type Result struct {
	WorkoutsReceived int      `json:"workouts_received"`
	RecordsConverted int      `json:"records_converted"`
	RecordsSkipped   int      `json:"records_skipped"`
	SkippedReasons   []string `json:"skipped_reasons,omitempty"`

	Message string `json:"message,omitempty"`
}
