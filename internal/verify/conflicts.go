package verify

import (
	"strings"

	"github.com/gserafini/reentry-map/internal/model"
)

// conflictFields is the fixed set compared against externally-found values.
var conflictFields = []string{"name", "phone", "website", "address", "email"}

// DetectConflicts compares submitted values against values found by an
// external source. A field conflicts when both sides are present, their
// normalized forms differ, and similarity falls below the threshold.
func DetectConflicts(submitted, found map[string]string, source string, threshold float64) []model.FieldConflict {
	var conflicts []model.FieldConflict
	for _, field := range conflictFields {
		sub := normalizeValue(submitted[field])
		ext := normalizeValue(found[field])
		if sub == "" || ext == "" {
			continue
		}
		if sub == ext {
			continue
		}
		sim := similarity(sub, ext)
		if sim < threshold {
			conflicts = append(conflicts, model.FieldConflict{
				Field:      field,
				Submitted:  submitted[field],
				Found:      found[field],
				Confidence: 1 - sim,
				Source:     source,
			})
		}
	}
	return conflicts
}

func normalizeValue(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}

// similarity is the fraction of position-aligned matching characters over
// the longer string's length. Deliberately cheap: it undercounts strings
// that differ by insertion or deletion. The decision thresholds were tuned
// against this metric, so swapping in real edit distance needs re-tuning.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longer, shorter := a, b
	if len(b) > len(a) {
		longer, shorter = b, a
	}
	if len(longer) == 0 {
		return 1
	}

	matches := 0
	for i := 0; i < len(shorter); i++ {
		if shorter[i] == longer[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(longer))
}
