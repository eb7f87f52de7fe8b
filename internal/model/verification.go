package model

import "time"

// VerificationType distinguishes why a pass was run.
type VerificationType string

const (
	VerificationInitial  VerificationType = "initial"
	VerificationPeriodic VerificationType = "periodic"
	VerificationReported VerificationType = "reported"
)

// Decision is the pipeline's terminal classification of a suggestion.
type Decision string

const (
	DecisionAutoApprove  Decision = "auto_approve"
	DecisionFlagForHuman Decision = "flag_for_human"
	DecisionAutoReject   Decision = "auto_reject"
)

// CheckName identifies one discrete verification check.
type CheckName string

const (
	CheckURLReachable      CheckName = "url_reachable"
	CheckPhoneValid        CheckName = "phone_valid"
	CheckAddressGeocodable CheckName = "address_geocodable"
	CheckContentMatches    CheckName = "website_content_matches"
	CheckCrossReferenced   CheckName = "cross_referenced"
	CheckConflictDetection CheckName = "conflict_detection"
)

// CheckResult is the outcome of a single check. Confidence of 0 on a passing
// check means "no estimate" and scores as 1.0.
type CheckResult struct {
	Pass       bool           `json:"pass"`
	Confidence float64        `json:"confidence,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	LatencyMS  int64          `json:"latency_ms,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// VerificationChecks is the transient per-pass bag of check results. A check
// that never ran is simply absent.
type VerificationChecks map[CheckName]CheckResult

// FieldConflict flags one field where the submitted and externally-found
// values diverge beyond the similarity threshold.
type FieldConflict struct {
	Field      string  `json:"field"`
	Submitted  string  `json:"submitted_value"`
	Found      string  `json:"found_value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// HumanOverride is the only mutation permitted on a VerificationLog after
// creation: a reviewer replacing the automated decision.
type HumanOverride struct {
	Decision   Decision  `json:"decision"`
	Note       string    `json:"note,omitempty"`
	ReviewedBy string    `json:"reviewed_by"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// VerificationLog is the persisted record of one verification pass.
type VerificationLog struct {
	ID             string             `json:"id"`
	SuggestionID   string             `json:"suggestion_id"`
	ResourceID     string             `json:"resource_id,omitempty"`
	Type           VerificationType   `json:"verification_type"`
	AgentVersion   string             `json:"agent_version"`
	Checks         VerificationChecks `json:"checks"`
	Conflicts      []FieldConflict    `json:"conflicts,omitempty"`
	FieldSnapshot  map[string]string  `json:"field_snapshot,omitempty"`
	Score          float64            `json:"score"`
	Decision       Decision           `json:"decision"`
	DecisionReason string             `json:"decision_reason"`
	DurationMS     int64              `json:"duration_ms"`
	APICalls       int                `json:"api_calls"`
	CostUSD        float64            `json:"cost_usd"`
	Override       *HumanOverride     `json:"human_override,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// CostEntry is one ledger row per LLM or paid-API invocation.
type CostEntry struct {
	ID           string    `json:"id"`
	SuggestionID string    `json:"suggestion_id,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model,omitempty"`
	Feature      string    `json:"feature"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	OrgName      string    `json:"org_name,omitempty"`
	URL          string    `json:"url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DecisionToStatus maps a terminal decision to the suggestion status it drives.
func DecisionToStatus(d Decision) SuggestionStatus {
	switch d {
	case DecisionAutoApprove:
		return SuggestionStatusApproved
	case DecisionAutoReject:
		return SuggestionStatusRejected
	default:
		return SuggestionStatusNeedsReview
	}
}
