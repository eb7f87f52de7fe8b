package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gserafini/reentry-map/internal/event"
	"github.com/gserafini/reentry-map/internal/model"
	"github.com/gserafini/reentry-map/internal/store"
	"github.com/gserafini/reentry-map/pkg/anthropic"
	"github.com/gserafini/reentry-map/pkg/browser"
	"github.com/gserafini/reentry-map/pkg/findhelp"
	"github.com/gserafini/reentry-map/pkg/geocode"
)

func storedSuggestion(t *testing.T, st store.Store, sug *model.Suggestion) *model.Suggestion {
	t.Helper()
	require.NoError(t, st.CreateSuggestion(context.Background(), sug))
	return sug
}

func TestVerify_AllChecksPassAutoApproves(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sug := storedSuggestion(t, st, &model.Suggestion{
		Name:    "Oak Street Shelter",
		Address: "44 Oak St",
		City:    "Oakland",
		State:   "CA",
		Phone:   "5105550100",
		Website: "https://oakshelter.org",
	})

	session := new(mockSession)
	session.On("Navigate", mock.Anything, "https://oakshelter.org").Return(&browser.NavigationResult{
		StatusCode: 200,
		Latency:    140 * time.Millisecond,
	}, nil)

	geo := new(mockGeocoder)
	geo.On("Geocode", mock.Anything, mock.Anything).Return(&geocode.Result{
		Latitude:  37.8,
		Longitude: -122.27,
		Matched:   true,
		Source:    "census",
	}, nil)

	dir := new(mockDirectory)
	dir.On("Search", mock.Anything, mock.Anything, mock.Anything).
		Return(&findhelp.SearchResponse{Programs: []findhelp.Program{{
			Name:    "Oak Street Shelter",
			Phone:   "5105550100",
			Website: "https://oakshelter.org",
			Address: "44 Oak St, Oakland, CA",
		}}}, nil)

	v := newTestVerifier(t, st, session, geo, NewCrossReferencer(dir, nil), nil)
	vlog, err := v.Verify(ctx, sug, model.VerificationInitial)
	require.NoError(t, err)

	assert.Equal(t, model.DecisionAutoApprove, vlog.Decision)
	assert.Greater(t, vlog.Score, 0.85)
	assert.Empty(t, vlog.Conflicts)
	assert.NotEmpty(t, vlog.ResourceID)

	// Promotion happened and the schedule is set.
	stored, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionStatusApproved, stored.Status)
	require.NotNil(t, stored.NextVerificationAt)

	// Trace closed cleanly: started, progress entries, one terminal.
	events, err := st.ListEvents(ctx, sug.ID)
	require.NoError(t, err)
	require.NoError(t, event.ValidateOrder(events))
	assert.Equal(t, model.EventStarted, events[0].Type)
	assert.Equal(t, model.EventCompleted, events[len(events)-1].Type)
}

func TestVerify_DeadWebsiteWithFailedAutofix(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sug := storedSuggestion(t, st, &model.Suggestion{
		Name:    "Oak PIC",
		Phone:   "5551234567",
		Website: "https://dead.example",
		Address: "1212 Broadway",
		City:    "Oakland",
		State:   "CA",
	})

	session := new(mockSession)
	session.On("Navigate", mock.Anything, "https://dead.example").Return(&browser.NavigationResult{
		StatusCode: 503,
	}, nil)

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "not found"}},
		Usage:   anthropic.TokenUsage{InputTokens: 380, OutputTokens: 12},
	}, nil)

	geo := new(mockGeocoder)
	geo.On("Geocode", mock.Anything, mock.Anything).Return(&geocode.Result{Matched: true}, nil)

	fixer := NewURLFixer(llm, "claude-haiku-4-5-20251001", 1024, 3)
	v := newTestVerifier(t, st, session, geo, nil, fixer)

	vlog, err := v.Verify(ctx, sug, model.VerificationInitial)
	require.NoError(t, err)

	// Content matching never ran against a site that doesn't load.
	_, contentRan := vlog.Checks[model.CheckContentMatches]
	assert.False(t, contentRan)

	// The dead site is a hard fail: no auto-approval however the remaining
	// checks score.
	assert.NotEqual(t, model.DecisionAutoApprove, vlog.Decision)
	assert.False(t, vlog.Checks[model.CheckURLReachable].Pass)
	assert.True(t, vlog.Checks[model.CheckPhoneValid].Pass)

	// The failed autofix still cost money and got booked.
	costs, err := st.ListCosts(ctx, sug.ID)
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.Equal(t, "url_autofix", costs[0].Feature)
	assert.Equal(t, int64(380), costs[0].InputTokens)
	assert.Greater(t, costs[0].CostUSD, 0.0)
}

func TestVerify_AutofixRecoversURL(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sug := storedSuggestion(t, st, &model.Suggestion{
		Name:    "Oak PIC",
		Website: "https://dead.example",
	})

	session := new(mockSession)
	session.On("Navigate", mock.Anything, "https://dead.example").Return(&browser.NavigationResult{
		StatusCode: 404,
	}, nil)
	session.On("Navigate", mock.Anything, "https://oakpic.org").Return(&browser.NavigationResult{
		StatusCode: 200,
		Latency:    110 * time.Millisecond,
	}, nil)

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "https://oakpic.org"}},
		Usage:   anthropic.TokenUsage{InputTokens: 400, OutputTokens: 20},
	}, nil)

	fixer := NewURLFixer(llm, "claude-haiku-4-5-20251001", 1024, 3)
	v := newTestVerifier(t, st, session, nil, nil, fixer)

	vlog, err := v.Verify(ctx, sug, model.VerificationInitial)
	require.NoError(t, err)

	reach := vlog.Checks[model.CheckURLReachable]
	assert.True(t, reach.Pass)
	assert.Equal(t, "https://oakpic.org", reach.Details["fixed_url"])
	assert.Equal(t, "https://dead.example", reach.Details["original_url"])
	session.AssertExpectations(t)

	// The rewritten website counts as a changed field: re-check on the
	// 60-day website cadence, not the default 30.
	stored, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NextVerificationAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 60), *stored.NextVerificationAt, time.Hour)
}

// panicGeocoder simulates a dependency blowing up mid-pass.
type panicGeocoder struct{}

func (panicGeocoder) Geocode(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	panic("geocoder exploded")
}

func TestVerify_FaultConvertsToFlagForHuman(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sug := storedSuggestion(t, st, &model.Suggestion{
		Name:    "Oak Street Shelter",
		Address: "44 Oak St",
	})

	v := newTestVerifier(t, st, nil, panicGeocoder{}, nil, nil)
	vlog, err := v.Verify(ctx, sug, model.VerificationInitial)
	require.NoError(t, err)

	assert.Equal(t, model.DecisionFlagForHuman, vlog.Decision)
	assert.Contains(t, vlog.DecisionReason, "geocoder exploded")

	// The trace still closed, with failed as the terminal event, and a log
	// was written.
	events, err := st.ListEvents(ctx, sug.ID)
	require.NoError(t, err)
	require.NoError(t, event.ValidateOrder(events))
	assert.Equal(t, model.EventFailed, events[len(events)-1].Type)

	logs, err := st.ListLogs(ctx, store.LogFilter{SuggestionID: sug.ID})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

// panicSession simulates the browser layer blowing up mid-navigation.
type panicSession struct{}

func (panicSession) Navigate(ctx context.Context, rawURL string) (*browser.NavigationResult, error) {
	panic("browser exploded")
}

func TestVerify_BrowserFaultConvertsToFlagForHuman(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sug := storedSuggestion(t, st, &model.Suggestion{
		Name:    "Oak Street Shelter",
		Website: "https://oakshelter.org",
	})

	v := newTestVerifier(t, st, panicSession{}, nil, nil, nil)
	vlog, err := v.Verify(ctx, sug, model.VerificationInitial)
	require.NoError(t, err)

	assert.Equal(t, model.DecisionFlagForHuman, vlog.Decision)
	assert.Contains(t, vlog.DecisionReason, "browser exploded")

	events, err := st.ListEvents(ctx, sug.ID)
	require.NoError(t, err)
	require.NoError(t, event.ValidateOrder(events))
	assert.Equal(t, model.EventFailed, events[len(events)-1].Type)
}

func TestVerify_PeriodicCadenceFollowsChangedFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sug := storedSuggestion(t, st, &model.Suggestion{
		Name:  "Oak Street Shelter",
		Phone: "5105550100",
	})

	v := newTestVerifier(t, st, nil, nil, nil, nil)

	// Initial pass approves on the phone check alone and records the field
	// snapshot on its log.
	_, err := v.Verify(ctx, sug, model.VerificationInitial)
	require.NoError(t, err)

	stored, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ResourceID)

	// Nothing changed since the last pass: re-check in 30 days.
	_, err = v.Verify(ctx, stored, model.VerificationPeriodic)
	require.NoError(t, err)
	after, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	require.NotNil(t, after.NextVerificationAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *after.NextVerificationAt, time.Hour)

	// A renamed organization moves to the yearly name cadence.
	renamed := *stored
	renamed.Name = "Oak Street Shelter Annex"
	_, err = v.Verify(ctx, &renamed, model.VerificationPeriodic)
	require.NoError(t, err)
	after, err = st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	require.NotNil(t, after.NextVerificationAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 365), *after.NextVerificationAt, time.Hour)
}

func TestVerify_WeakCrossReferenceNotFullConfidence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sug := storedSuggestion(t, st, &model.Suggestion{Name: "ABC"})

	// The index returns a program whose name shares no aligned characters,
	// so the best match score is 0. The recorded confidence must not read
	// as "no estimate" and score as a full-confidence pass.
	dir := new(mockDirectory)
	dir.On("Search", mock.Anything, mock.Anything, mock.Anything).
		Return(&findhelp.SearchResponse{Programs: []findhelp.Program{{Name: "XYZ"}}}, nil)

	v := newTestVerifier(t, st, nil, nil, NewCrossReferencer(dir, nil), nil)
	vlog, err := v.Verify(ctx, sug, model.VerificationInitial)
	require.NoError(t, err)

	cross := vlog.Checks[model.CheckCrossReferenced]
	assert.True(t, cross.Pass)
	assert.InDelta(t, 0.05, cross.Confidence, 1e-9)
	assert.NotEqual(t, model.DecisionAutoApprove, vlog.Decision)
}

func TestVerify_ConflictingCrossReference(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sug := storedSuggestion(t, st, &model.Suggestion{
		Name:  "Oak Street Shelter",
		Phone: "5105550100",
	})

	dir := new(mockDirectory)
	dir.On("Search", mock.Anything, mock.Anything, mock.Anything).
		Return(&findhelp.SearchResponse{Programs: []findhelp.Program{{
			Name:  "Oak Street Shelter",
			Phone: "9255559999",
		}}}, nil)

	v := newTestVerifier(t, st, nil, nil, NewCrossReferencer(dir, nil), nil)
	vlog, err := v.Verify(ctx, sug, model.VerificationInitial)
	require.NoError(t, err)

	require.Len(t, vlog.Conflicts, 1)
	assert.Equal(t, "phone", vlog.Conflicts[0].Field)
	assert.False(t, vlog.Checks[model.CheckConflictDetection].Pass)
}
