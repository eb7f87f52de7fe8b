package verify

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gserafini/reentry-map/internal/config"
	"github.com/gserafini/reentry-map/internal/cost"
	"github.com/gserafini/reentry-map/internal/event"
	"github.com/gserafini/reentry-map/internal/store"
	"github.com/gserafini/reentry-map/pkg/anthropic"
	"github.com/gserafini/reentry-map/pkg/browser"
	"github.com/gserafini/reentry-map/pkg/findhelp"
	"github.com/gserafini/reentry-map/pkg/geocode"
	"github.com/gserafini/reentry-map/pkg/places"
)

// --- Browser Session Mock ---

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Navigate(ctx context.Context, rawURL string) (*browser.NavigationResult, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*browser.NavigationResult), args.Error(1)
}

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// --- Directory Index Mock ---

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) Search(ctx context.Context, name, location string) (*findhelp.SearchResponse, error) {
	args := m.Called(ctx, name, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*findhelp.SearchResponse), args.Error(1)
}

// --- Places Mock ---

type mockPlaces struct {
	mock.Mock
}

func (m *mockPlaces) TextSearch(ctx context.Context, query string) (*places.TextSearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*places.TextSearchResponse), args.Error(1)
}

// --- LLM Mock ---

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// --- Helpers ---

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "verify_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testVerifierConfig() config.VerifierConfig {
	return config.VerifierConfig{
		ApproveThreshold:  0.85,
		RejectThreshold:   0.50,
		ConflictThreshold: 0.7,
		AgentVersion:      "verify-agent/test",
		MaxBatchSize:      100,
	}
}

// newTestVerifier wires a Verifier over a real SQLite store with mocked
// external clients. Nil mocks skip the corresponding check.
func newTestVerifier(t *testing.T, st store.Store, session browser.Session, geo geocode.Client, crossref *CrossReferencer, fixer *URLFixer) *Verifier {
	t.Helper()
	return NewVerifier(
		testVerifierConfig(),
		st,
		session,
		geo,
		nil, // content extractor exercised separately against httptest
		crossref,
		fixer,
		event.NewEmitter(st),
		cost.NewCalculator(cost.DefaultRates()),
	)
}
