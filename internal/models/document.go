package models

import "time"

// Run statuses recorded in Firestore as a parse moves through the pipeline.
const (
	StatusDownloading = "DOWNLOADING"
	StatusExtracting  = "EXTRACTING"
	StatusClassifying = "CLASSIFYING"
	StatusPersisting  = "PERSISTING"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
)

// ParseRun is the Firestore record for a single resume parsing invocation.
// It is an audit trail only; nothing reads it back to make decisions.
type ParseRun struct {
	Bucket       string    `firestore:"bucket,omitempty"`
	ObjectKey    string    `firestore:"objectKey,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	FailedStage  string    `firestore:"failedStage,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	SessionID    string    `firestore:"sessionId,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	TextLength   int       `firestore:"textLength,omitempty"`
	OutputKey    string    `firestore:"outputKey,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt,omitempty"`
}

// RunUpdate carries the fields that change when a run advances. Zero values
// are left untouched.
type RunUpdate struct {
	Status       string
	FailedStage  string
	ErrorDetails string
	SessionID    string
	PageCount    int
	TextLength   int
	OutputKey    string
}
