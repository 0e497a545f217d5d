package types

import "time"

type RunSummary struct {
	RunID                string
	StartedAt            time.Time
	FinishedAt           time.Time
	ResourceGroups       int
	Scanned              int
	Matched              int
	Deleted              int
	Failed               int
	Notified             int
	NotificationFailures int
	Outcomes             []DeletionOutcome
}

func (summary *RunSummary) AddOutcome(outcome DeletionOutcome) {
	summary.Outcomes = append(summary.Outcomes, outcome)
	if outcome.Succeeded() {
		summary.Deleted++
	} else {
		summary.Failed++
	}
}

func (summary *RunSummary) AddNotification(result NotificationResult) {
	if result.Delivered {
		summary.Notified++
	} else {
		summary.NotificationFailures++
	}
}
