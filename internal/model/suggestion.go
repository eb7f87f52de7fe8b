// Package model defines the core types shared across the verification pipeline.
package model

import "time"

// SuggestionStatus represents the lifecycle state of a directory suggestion.
type SuggestionStatus string

const (
	SuggestionStatusPending     SuggestionStatus = "pending"
	SuggestionStatusApproved    SuggestionStatus = "approved"
	SuggestionStatusRejected    SuggestionStatus = "rejected"
	SuggestionStatusNeedsReview SuggestionStatus = "needs_review"
)

// Provenance records how and where a suggestion was discovered.
type Provenance struct {
	SubmittedBy  string `json:"submitted_by"`
	Source       string `json:"source,omitempty"`
	AgentVersion string `json:"agent_version,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Suggestion is an incoming candidate directory entry awaiting verification.
// The pipeline treats it as read-only input; decisions are recorded separately.
type Suggestion struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Address       string     `json:"address,omitempty"`
	City          string     `json:"city,omitempty"`
	State         string     `json:"state,omitempty"`
	ZipCode       string     `json:"zip_code,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Website       string     `json:"website,omitempty"`
	Email         string     `json:"email,omitempty"`
	Description   string     `json:"description,omitempty"`
	Category      string     `json:"category,omitempty"`
	Services      []string   `json:"services,omitempty"`
	Eligibility   string     `json:"eligibility,omitempty"`
	Languages     []string   `json:"languages,omitempty"`
	Accessibility []string   `json:"accessibility,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	Provenance    Provenance `json:"provenance"`

	Status             SuggestionStatus `json:"status,omitempty"`
	ResourceID         string           `json:"resource_id,omitempty"`
	NextVerificationAt *time.Time       `json:"next_verification_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at,omitempty"`
}

// FieldMap returns the suggestion's checked fields as a flat map, the shape
// conflict detection compares against externally-found values.
func (s Suggestion) FieldMap() map[string]string {
	return map[string]string{
		"name":    s.Name,
		"phone":   s.Phone,
		"website": s.Website,
		"address": s.FullAddress(),
		"email":   s.Email,
	}
}

// FullAddress joins the address components into a single query string.
func (s Suggestion) FullAddress() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{s.Address, s.City, s.State, s.ZipCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
