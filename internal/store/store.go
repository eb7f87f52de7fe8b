// Package store persists suggestions, verification logs, trace events, and
// the API cost ledger.
package store

import (
	"context"
	"time"

	"github.com/gserafini/reentry-map/internal/model"
)

// LogFilter specifies criteria for listing verification logs.
type LogFilter struct {
	SuggestionID string         `json:"suggestion_id,omitempty"`
	Decision     model.Decision `json:"decision,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for the verification pipeline.
type Store interface {
	// Suggestions
	CreateSuggestion(ctx context.Context, s *model.Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error)
	ListPendingSuggestions(ctx context.Context, limit int) ([]model.Suggestion, error)
	// FindDuplicateSuggestion returns an existing suggestion with the same
	// normalized name and address, or nil if none exists.
	FindDuplicateSuggestion(ctx context.Context, name, address string) (*model.Suggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id string, status model.SuggestionStatus) error
	SetNextVerification(ctx context.Context, id string, at time.Time) error
	// ListDueSuggestions returns approved suggestions whose next scheduled
	// verification is at or before the given time.
	ListDueSuggestions(ctx context.Context, before time.Time, limit int) ([]model.Suggestion, error)
	// PromoteSuggestion publishes an approved suggestion as a directory
	// resource and returns the new resource ID.
	PromoteSuggestion(ctx context.Context, id string) (string, error)

	// Verification logs (immutable after creation except the human override)
	CreateLog(ctx context.Context, log *model.VerificationLog) error
	GetLog(ctx context.Context, id string) (*model.VerificationLog, error)
	ListLogs(ctx context.Context, filter LogFilter) ([]model.VerificationLog, error)
	AnnotateLogOverride(ctx context.Context, logID string, override model.HumanOverride) error

	// Event stream (append-only)
	AppendEvent(ctx context.Context, ev *model.VerificationEvent) error
	ListEvents(ctx context.Context, suggestionID string) ([]model.VerificationEvent, error)

	// Cost ledger
	RecordCost(ctx context.Context, entry *model.CostEntry) error
	ListCosts(ctx context.Context, suggestionID string) ([]model.CostEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
