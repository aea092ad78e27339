package models

// FailedColumns is the header of the failed ledger.
var FailedColumns = []string{"project_id", "url"}

// FailedEntry records an outstanding failed attempt.
type FailedEntry struct {
	ProjectID int    `json:"project_id"`
	URL       string `json:"url"`
}

// QueueKind names the queue a work item was taken from.
type QueueKind string

const (
	QueuePrimary QueueKind = "primary"
	QueueRetry   QueueKind = "retry"
)

// WorkItem is a project ID waiting in one of the scheduler queues.
type WorkItem struct {
	ProjectID int
	// Attempts counts completed attempts for this ID in the current run.
	Attempts int
}
