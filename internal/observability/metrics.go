// Package observability exposes the engine's prometheus metrics. Counters
// are registered at init and incremented through package functions so the
// core packages stay free of metric plumbing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	duplicatesDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitmerge",
		Subsystem: "reconcile",
		Name:      "duplicates_detected_total",
		Help:      "Incoming synced records rejected as duplicates of existing records.",
	})
	recordsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitmerge",
		Subsystem: "reconcile",
		Name:      "records_accepted_total",
		Help:      "Incoming synced records accepted and persisted.",
	})
	conflictsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitmerge",
		Subsystem: "reconcile",
		Name:      "conflicts_detected_total",
		Help:      "Manual/synced conflicts detected, by conflict type.",
	}, []string{"type"})
	conflictsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitmerge",
		Subsystem: "reconcile",
		Name:      "conflicts_resolved_total",
		Help:      "Conflicts resolved, by resolution choice.",
	}, []string{"choice"})
	undosPerformed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitmerge",
		Subsystem: "audit",
		Name:      "undos_total",
		Help:      "Operations reversed through the undo mechanism.",
	})
	auditUtilization = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitmerge",
		Subsystem: "audit",
		Name:      "storage_utilization",
		Help:      "Audit trail fill level relative to its rolling cap, 0 to 1.",
	})
)

func init() {
	prometheus.MustRegister(
		duplicatesDetected,
		recordsAccepted,
		conflictsDetected,
		conflictsResolved,
		undosPerformed,
		auditUtilization,
	)
}

// RecordDuplicatesDetected counts incoming records dropped as duplicates.
func RecordDuplicatesDetected(n int) {
	if n > 0 {
		duplicatesDetected.Add(float64(n))
	}
}

// RecordRecordsAccepted counts incoming records accepted into the store.
func RecordRecordsAccepted(n int) {
	if n > 0 {
		recordsAccepted.Add(float64(n))
	}
}

// RecordConflictDetected counts one detected conflict of the given type.
func RecordConflictDetected(conflictType string) {
	conflictsDetected.WithLabelValues(conflictType).Inc()
}

// RecordConflictResolved counts one resolved conflict by choice.
func RecordConflictResolved(choice string) {
	conflictsResolved.WithLabelValues(choice).Inc()
}

// RecordUndoPerformed counts one successful undo.
func RecordUndoPerformed() {
	undosPerformed.Inc()
}

// RecordAuditUtilization updates the trail fill-level gauge.
func RecordAuditUtilization(ratio float64) {
	auditUtilization.Set(ratio)
}
