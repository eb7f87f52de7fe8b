package verify

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/gserafini/reentry-map/internal/model"
)

// fieldCadences maps each suggestion field to its re-verification interval
// in days. Volatile fields (phone, hours) re-check monthly; stable ones
// (name, category) yearly.
var fieldCadences = map[string]int{
	"phone":       30,
	"hours":       30,
	"website":     60,
	"email":       60,
	"services":    60,
	"description": 90,
	"eligibility": 90,
	"address":     180,
	"city":        180,
	"state":       180,
	"zip_code":    180,
	"name":        365,
	"category":    365,
}

const defaultCadenceDays = 90

// NextVerification computes when a record should next be re-checked, given
// which fields changed since the last pass. The shortest cadence among
// changed fields wins; no changes defaults to 30 days.
func NextVerification(now time.Time, changedFields []string) time.Time {
	if len(changedFields) == 0 {
		return now.AddDate(0, 0, 30)
	}

	min := 0
	for _, f := range changedFields {
		days, ok := fieldCadences[f]
		if !ok {
			days = defaultCadenceDays
		}
		if min == 0 || days < min {
			min = days
		}
	}
	return now.AddDate(0, 0, min)
}

// ChangedFields diffs two versions of a suggestion, returning the names of
// fields whose values differ, sorted for stable output.
func ChangedFields(prev, curr *model.Suggestion) []string {
	var changed []string
	add := func(field string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			changed = append(changed, field)
		}
	}

	add("name", prev.Name, curr.Name)
	add("address", prev.Address, curr.Address)
	add("city", prev.City, curr.City)
	add("state", prev.State, curr.State)
	add("zip_code", prev.ZipCode, curr.ZipCode)
	add("phone", prev.Phone, curr.Phone)
	add("website", prev.Website, curr.Website)
	add("email", prev.Email, curr.Email)
	add("description", prev.Description, curr.Description)
	add("category", prev.Category, curr.Category)
	add("services", prev.Services, curr.Services)
	add("eligibility", prev.Eligibility, curr.Eligibility)

	sort.Strings(changed)
	return changed
}

// fieldSnapshot captures the cadence-relevant fields of a suggestion. The
// snapshot is recorded on each verification log so the next pass can tell
// which fields drifted.
func fieldSnapshot(sug *model.Suggestion) map[string]string {
	return map[string]string{
		"name":        sug.Name,
		"address":     sug.Address,
		"city":        sug.City,
		"state":       sug.State,
		"zip_code":    sug.ZipCode,
		"phone":       sug.Phone,
		"website":     sug.Website,
		"email":       sug.Email,
		"description": sug.Description,
		"category":    sug.Category,
		"services":    strings.Join(sug.Services, ", "),
		"eligibility": sug.Eligibility,
	}
}

// diffSnapshot returns the field names whose values differ between two
// snapshots, sorted for stable output.
func diffSnapshot(prev, curr map[string]string) []string {
	var changed []string
	for field, val := range curr {
		if prev[field] != val {
			changed = append(changed, field)
		}
	}
	sort.Strings(changed)
	return changed
}
