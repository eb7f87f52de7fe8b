package verify

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gserafini/reentry-map/internal/model"
	"github.com/gserafini/reentry-map/internal/store"
)

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name      string
		req       BatchRequest
		wantField string
	}{
		{
			name:      "missing submitter",
			req:       BatchRequest{Suggestions: []model.Suggestion{{Name: "Org", Phone: "5551234567"}}},
			wantField: "submitted_by",
		},
		{
			name:      "empty batch",
			req:       BatchRequest{SubmittedBy: "agent"},
			wantField: "suggestions",
		},
		{
			name: "suggestion without name",
			req: BatchRequest{
				SubmittedBy: "agent",
				Suggestions: []model.Suggestion{{Phone: "5551234567"}},
			},
			wantField: "name",
		},
		{
			name: "suggestion without any contact point",
			req: BatchRequest{
				SubmittedBy: "agent",
				Suggestions: []model.Suggestion{{Name: "Org", Description: "helps people"}},
			},
			wantField: "contact",
		},
		{
			name: "invalid website",
			req: BatchRequest{
				SubmittedBy: "agent",
				Suggestions: []model.Suggestion{{Name: "Org", Website: "not-a-url", Phone: "5551234567"}},
			},
			wantField: "website",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateBatch(&tt.req, 100)
			require.NotEmpty(t, errs)
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateBatch_SizeCap(t *testing.T) {
	req := BatchRequest{SubmittedBy: "agent"}
	for i := 0; i < 101; i++ {
		req.Suggestions = append(req.Suggestions, model.Suggestion{Name: "Org", Phone: "5551234567"})
	}
	errs := ValidateBatch(&req, 100)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "exceeds maximum")
}

func TestValidateBatch_CleanBatch(t *testing.T) {
	req := BatchRequest{
		SubmittedBy: "agent",
		Suggestions: []model.Suggestion{
			{Name: "Oak Street Shelter", Phone: "5105550100"},
			{Name: "Valley Pantry", Website: "https://valleypantry.org"},
		},
	}
	assert.Empty(t, ValidateBatch(&req, 100))
}

func TestProcessBatch_VerifiesAndReportsStatuses(t *testing.T) {
	st := newTestStore(t)

	// Only the phone check runs with all network clients nil: a valid phone
	// scores 1.0 and auto-approves, an invalid one scores 0 and rejects.
	v := newTestVerifier(t, st, nil, nil, nil, nil)

	result := v.ProcessBatch(context.Background(), &BatchRequest{
		SubmittedBy: "importer@example.org",
		Suggestions: []model.Suggestion{
			{Name: "Oak Street Shelter", Phone: "5105550100"},
			{Name: "Bad Phone Org", Phone: "12345"},
		},
	})

	require.Len(t, result.Items, 2)
	assert.Equal(t, model.SubmissionAutoApproved, result.Items[0].Status)
	assert.Equal(t, model.DecisionAutoApprove, result.Items[0].Decision)
	assert.NotEmpty(t, result.Items[0].SuggestionID)

	assert.Equal(t, model.SubmissionRejected, result.Items[1].Status)

	assert.Equal(t, 2, result.Summary.Total)
	assert.Equal(t, 1, result.Summary.AutoApproved)
	assert.Equal(t, 1, result.Summary.Rejected)
}

// failingLogStore persists suggestions normally but cannot write verification
// logs, forcing the pass itself to error after the record is stored.
type failingLogStore struct {
	store.Store
}

func (s *failingLogStore) CreateLog(ctx context.Context, log *model.VerificationLog) error {
	return eris.New("disk full")
}

func TestProcessBatch_StoredItemWithFailedPassStaysSubmitted(t *testing.T) {
	st := &failingLogStore{Store: newTestStore(t)}
	v := newTestVerifier(t, st, nil, nil, nil, nil)
	ctx := context.Background()

	result := v.ProcessBatch(ctx, &BatchRequest{
		SubmittedBy: "agent",
		Suggestions: []model.Suggestion{{Name: "Oak Street Shelter", Phone: "5105550100"}},
	})

	require.Len(t, result.Items, 1)
	assert.Equal(t, model.SubmissionSubmitted, result.Items[0].Status)
	assert.Contains(t, result.Items[0].Reason, "disk full")
	assert.Equal(t, 1, result.Summary.Submitted)
	assert.Zero(t, result.Summary.Errors)

	// The suggestion itself survived and stays pending for a later pass.
	stored, err := st.GetSuggestion(ctx, result.Items[0].SuggestionID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionStatusPending, stored.Status)
}

func TestProcessBatch_DuplicateSkipped(t *testing.T) {
	st := newTestStore(t)
	v := newTestVerifier(t, st, nil, nil, nil, nil)
	ctx := context.Background()

	first := v.ProcessBatch(ctx, &BatchRequest{
		SubmittedBy: "agent",
		Suggestions: []model.Suggestion{{Name: "Oak Street Shelter", Address: "44 Oak St", Phone: "5105550100"}},
	})
	require.Equal(t, 1, first.Summary.AutoApproved)

	second := v.ProcessBatch(ctx, &BatchRequest{
		SubmittedBy: "agent",
		Suggestions: []model.Suggestion{{Name: "oak street  SHELTER", Address: "44 oak st", Phone: "5105550100"}},
	})
	require.Len(t, second.Items, 1)
	assert.Equal(t, model.SubmissionDuplicate, second.Items[0].Status)
	assert.Equal(t, first.Items[0].SuggestionID, second.Items[0].SuggestionID)
	assert.Equal(t, 1, second.Summary.Duplicates)
	assert.Contains(t, second.Items[0].Reason, "differs in")
	assert.Contains(t, second.Items[0].Reason, "name")
}

func TestProcessBatch_ProvenanceStamped(t *testing.T) {
	st := newTestStore(t)
	v := newTestVerifier(t, st, nil, nil, nil, nil)
	ctx := context.Background()

	result := v.ProcessBatch(ctx, &BatchRequest{
		SubmittedBy: "scout@example.org",
		Notes:       "found during county sweep",
		Suggestions: []model.Suggestion{{Name: "Oak Street Shelter", Phone: "5105550100"}},
	})
	require.Len(t, result.Items, 1)

	stored, err := st.GetSuggestion(ctx, result.Items[0].SuggestionID)
	require.NoError(t, err)
	assert.Equal(t, "scout@example.org", stored.Provenance.SubmittedBy)
	assert.Equal(t, "found during county sweep", stored.Provenance.Notes)
	assert.NotEmpty(t, stored.Provenance.AgentVersion)
}
