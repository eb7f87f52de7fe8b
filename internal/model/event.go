package model

import "time"

// EventType classifies entries in the per-suggestion verification trace.
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCost      EventType = "cost"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// IsTerminal reports whether the event closes a started trace.
func (t EventType) IsTerminal() bool {
	return t == EventCompleted || t == EventFailed
}

// VerificationEvent is one append-only trace entry. Seq is monotonic per
// suggestion so observers can order events even with equal timestamps.
type VerificationEvent struct {
	ID           string         `json:"id"`
	SuggestionID string         `json:"suggestion_id"`
	Seq          int            `json:"seq"`
	Type         EventType      `json:"event_type"`
	Data         map[string]any `json:"event_data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SubmissionStatus is the per-resource outcome reported to the batch caller.
type SubmissionStatus string

const (
	SubmissionSubmitted    SubmissionStatus = "submitted"
	SubmissionAutoApproved SubmissionStatus = "auto_approved"
	SubmissionFlagged      SubmissionStatus = "flagged"
	SubmissionRejected     SubmissionStatus = "rejected"
	SubmissionDuplicate    SubmissionStatus = "duplicate"
	SubmissionError        SubmissionStatus = "error"
)
