// Package metrics holds the Prometheus collectors for the chore engine.
// They register with the default registry and are served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthAttempts counts PIN checks by result ("ok", "mismatch", "malformed").
var AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chores",
	Name:      "auth_attempts_total",
	Help:      "PIN authentication attempts by result.",
}, []string{"result"})

// LedgerEntries counts appended ledger entries by direction ("credit", "debit").
var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chores",
	Name:      "ledger_entries_total",
	Help:      "Ledger entries appended, by direction.",
}, []string{"direction"})

// PointsMoved sums the absolute value of all ledger amounts.
var PointsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chores",
	Name:      "points_moved_total",
	Help:      "Absolute points moved through the ledger, by direction.",
}, []string{"direction"})

var TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chores",
	Name:      "tasks_completed_total",
	Help:      "Tasks transitioned from open to completed.",
})

// CompletionConflicts counts completions rejected because the task was no
// longer open, including lost races.
var CompletionConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chores",
	Name:      "task_completion_conflicts_total",
	Help:      "Task completions rejected with a conflict.",
})

// Notifications counts push deliveries by outcome ("sent", "gone", "failed", "skipped").
var Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chores",
	Name:      "notifications_total",
	Help:      "Push notification attempts by outcome.",
}, []string{"outcome"})
