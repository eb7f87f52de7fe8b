package verify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/model"
)

// BatchRequest is a validated batch of incoming suggestions.
type BatchRequest struct {
	SubmittedBy string             `json:"submitted_by"`
	Notes       string             `json:"notes,omitempty"`
	Suggestions []model.Suggestion `json:"suggestions"`
}

// ItemStatus is the per-suggestion outcome reported back to the caller.
type ItemStatus struct {
	Index        int                    `json:"index"`
	SuggestionID string                 `json:"suggestion_id,omitempty"`
	Name         string                 `json:"name"`
	Status       model.SubmissionStatus `json:"status"`
	Decision     model.Decision         `json:"decision,omitempty"`
	Score        float64                `json:"score,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
}

// BatchResult summarizes one processed batch.
type BatchResult struct {
	Items   []ItemStatus `json:"items"`
	Summary BatchSummary `json:"summary"`
}

// BatchSummary counts outcomes across the batch.
type BatchSummary struct {
	Total        int `json:"total"`
	AutoApproved int `json:"auto_approved"`
	Flagged      int `json:"flagged"`
	Rejected     int `json:"rejected"`
	Duplicates   int `json:"duplicates"`
	Submitted    int `json:"submitted"`
	Errors       int `json:"errors"`
}

// FieldError describes one invalid field in a submitted suggestion.
type FieldError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateBatch checks shape before anything is stored: a batch must be
// non-empty, within the size cap, carry a submitter, and every suggestion
// needs at least a name plus one contact point.
func ValidateBatch(req *BatchRequest, maxSize int) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(req.SubmittedBy) == "" {
		errs = append(errs, FieldError{Index: -1, Field: "submitted_by", Message: "required"})
	}
	if len(req.Suggestions) == 0 {
		errs = append(errs, FieldError{Index: -1, Field: "suggestions", Message: "at least one suggestion required"})
	}
	if maxSize > 0 && len(req.Suggestions) > maxSize {
		errs = append(errs, FieldError{Index: -1, Field: "suggestions",
			Message: fmt.Sprintf("batch of %d exceeds maximum %d", len(req.Suggestions), maxSize)})
	}

	for i, sug := range req.Suggestions {
		if strings.TrimSpace(sug.Name) == "" {
			errs = append(errs, FieldError{Index: i, Field: "name", Message: "required"})
		}
		if sug.Phone == "" && sug.Website == "" && sug.FullAddress() == "" {
			errs = append(errs, FieldError{Index: i, Field: "contact",
				Message: "at least one of phone, website, or address required"})
		}
		if sug.Website != "" && !validURL(sug.Website) {
			errs = append(errs, FieldError{Index: i, Field: "website", Message: "not a valid http(s) URL"})
		}
	}
	return errs
}

// ProcessBatch stores and verifies each suggestion sequentially. Duplicates
// are skipped before verification; a storage or pipeline error on one item
// never stops the rest of the batch.
func (v *Verifier) ProcessBatch(ctx context.Context, req *BatchRequest) *BatchResult {
	result := &BatchResult{Summary: BatchSummary{Total: len(req.Suggestions)}}

	for i := range req.Suggestions {
		sug := req.Suggestions[i]
		sug.Provenance.SubmittedBy = req.SubmittedBy
		if req.Notes != "" {
			sug.Provenance.Notes = req.Notes
		}
		if sug.Provenance.AgentVersion == "" {
			sug.Provenance.AgentVersion = v.cfg.AgentVersion
		}

		item := ItemStatus{Index: i, Name: sug.Name}

		dup, err := v.store.FindDuplicateSuggestion(ctx, sug.Name, sug.FullAddress())
		switch {
		case err != nil:
			item.Status = model.SubmissionError
			item.Reason = err.Error()
			result.Summary.Errors++
			result.Items = append(result.Items, item)
			continue
		case dup != nil:
			item.Status = model.SubmissionDuplicate
			item.SuggestionID = dup.ID
			item.Reason = "matches existing suggestion"
			if diff := ChangedFields(dup, &sug); len(diff) > 0 {
				item.Reason = fmt.Sprintf("matches existing suggestion; differs in %s", strings.Join(diff, ", "))
			}
			result.Summary.Duplicates++
			result.Items = append(result.Items, item)
			continue
		}

		if err := v.store.CreateSuggestion(ctx, &sug); err != nil {
			item.Status = model.SubmissionError
			item.Reason = err.Error()
			result.Summary.Errors++
			result.Items = append(result.Items, item)
			continue
		}
		item.SuggestionID = sug.ID

		vlog, err := v.Verify(ctx, &sug, model.VerificationInitial)
		if err != nil {
			zap.L().Error("batch: verification errored",
				zap.String("suggestion_id", sug.ID), zap.Error(err))
			// The suggestion is stored and pending; only this pass failed.
			item.Status = model.SubmissionSubmitted
			item.Reason = err.Error()
			result.Summary.Submitted++
			result.Items = append(result.Items, item)
			continue
		}

		item.Decision = vlog.Decision
		item.Score = vlog.Score
		item.Reason = vlog.DecisionReason
		switch vlog.Decision {
		case model.DecisionAutoApprove:
			item.Status = model.SubmissionAutoApproved
			result.Summary.AutoApproved++
		case model.DecisionAutoReject:
			item.Status = model.SubmissionRejected
			result.Summary.Rejected++
		default:
			item.Status = model.SubmissionFlagged
			result.Summary.Flagged++
		}
		result.Items = append(result.Items, item)
	}

	return result
}
