package models

// Processing states for a document. Transitions are
// new -> processing -> completed|failed; completed and failed re-enter
// processing on an explicit reprocess.
const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
