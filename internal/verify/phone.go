// Package verify implements the suggestion verification pipeline: per-field
// checks, weighted scoring, and the terminal approve/flag/reject decision.
package verify

import (
	"fmt"
	"strings"
)

// PhoneResult is the outcome of phone-number validation.
type PhoneResult struct {
	Valid     bool
	Formatted string
	Format    string
}

// ValidatePhone strips non-digits and accepts exactly 10 digits, or 11 with
// a leading country digit. Valid numbers come back as (XXX) XXX-XXXX.
func ValidatePhone(raw string) PhoneResult {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return PhoneResult{Valid: false, Format: "invalid"}
	}

	return PhoneResult{
		Valid:     true,
		Formatted: fmt.Sprintf("(%s) %s-%s", d[0:3], d[3:6], d[6:10]),
		Format:    "national",
	}
}
