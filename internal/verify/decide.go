package verify

import (
	"fmt"
	"strings"

	"github.com/gserafini/reentry-map/internal/model"
)

// Thresholds holds the configurable score cutoffs for the decision engine.
type Thresholds struct {
	Approve float64
	Reject  float64
}

// DefaultThresholds returns the stock cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Approve: 0.85, Reject: 0.50}
}

// Decide maps a score to a decision. Hard fails (an unreachable site no
// auto-fix could rescue, an invalid phone) block auto_approve regardless of
// score; the score bands handle the rest.
func Decide(score float64, hardFails []string, t Thresholds) (model.Decision, string) {
	if score < t.Reject {
		return model.DecisionAutoReject,
			fmt.Sprintf("score %.2f below reject threshold %.2f", score, t.Reject)
	}

	if len(hardFails) > 0 {
		return model.DecisionFlagForHuman,
			fmt.Sprintf("score %.2f but hard failures: %s", score, strings.Join(hardFails, "; "))
	}

	if score >= t.Approve {
		return model.DecisionAutoApprove,
			fmt.Sprintf("score %.2f meets approve threshold %.2f", score, t.Approve)
	}

	return model.DecisionFlagForHuman,
		fmt.Sprintf("score %.2f in review band [%.2f, %.2f)", score, t.Reject, t.Approve)
}
