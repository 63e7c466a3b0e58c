package chores

import "github.com/warp/chore-engine/metrics"

func recordCredit(amount int64) {
	direction := "credit"
	abs := amount
	if amount < 0 {
		direction = "debit"
		abs = -amount
	}
	metrics.LedgerEntries.WithLabelValues(direction).Inc()
	metrics.PointsMoved.WithLabelValues(direction).Add(float64(abs))
}

func recordAuth(result string) {
	metrics.AuthAttempts.WithLabelValues(result).Inc()
}

func recordNotification(outcome Outcome) {
	metrics.Notifications.WithLabelValues(outcome.String()).Inc()
}
