package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gserafini/reentry-map/internal/retry"
)

func censusServer(t *testing.T, matches []censusAddressMatch) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, censusBenchmark, r.URL.Query().Get("benchmark"))
		var resp censusOneLineResponse
		resp.Result.AddressMatches = matches
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeocode_CensusMatch(t *testing.T) {
	match := censusAddressMatch{MatchedAddress: "1212 BROADWAY, OAKLAND, CA, 94612"}
	match.Coordinates.X = -122.2711
	match.Coordinates.Y = 37.8044
	srv := censusServer(t, []censusAddressMatch{match})

	client := NewClient(WithCensusBaseURL(srv.URL))
	result, err := client.Geocode(context.Background(), AddressInput{
		Street: "1212 Broadway", City: "Oakland", State: "CA",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "census", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
	assert.InDelta(t, 37.8044, result.Latitude, 0.0001)
	assert.InDelta(t, -122.2711, result.Longitude, 0.0001)
	assert.Equal(t, "1212 BROADWAY, OAKLAND, CA, 94612", result.FormattedAddress)
}

func TestGeocode_NoMatchIsNotError(t *testing.T) {
	srv := censusServer(t, nil)

	client := NewClient(WithCensusBaseURL(srv.URL))
	result, err := client.Geocode(context.Background(), AddressInput{Street: "nowhere at all"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_GoogleFallback(t *testing.T) {
	censusSrv := censusServer(t, nil)

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		resp := googleGeocodeResponse{Status: "OK"}
		var gr googleResult
		gr.Geometry.Location.Lat = 37.8
		gr.Geometry.Location.Lng = -122.27
		gr.Geometry.LocationType = "ROOFTOP"
		gr.FormattedAddress = "1212 Broadway, Oakland, CA 94612, USA"
		resp.Results = []googleResult{gr}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(googleSrv.Close)

	client := NewClient(
		WithCensusBaseURL(censusSrv.URL),
		WithGoogleBaseURL(googleSrv.URL),
		WithGoogleAPIKey("test-key"),
	)
	result, err := client.Geocode(context.Background(), AddressInput{Street: "1212 Broadway"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
}

func TestGeocode_ProviderErrorYieldsUnmatched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(WithCensusBaseURL(srv.URL))
	result, err := client.Geocode(context.Background(), AddressInput{Street: "1212 Broadway"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocodeCensus_ServerErrorRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	g := NewClient(WithCensusBaseURL(srv.URL)).(*geocoder)
	_, err := g.geocodeCensus(context.Background(), AddressInput{Street: "1212 Broadway"})

	require.Error(t, err)
	assert.True(t, retry.Transient(err))
}

func TestFormatOneLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		addr AddressInput
		want string
	}{
		{
			name: "full address",
			addr: AddressInput{Street: "1212 Broadway", City: "Oakland", State: "CA", ZipCode: "94612"},
			want: "1212 Broadway, Oakland, CA, 94612",
		},
		{
			name: "street only",
			addr: AddressInput{Street: "1212 Broadway"},
			want: "1212 Broadway",
		},
		{
			name: "empty",
			addr: AddressInput{},
			want: "",
		},
		{
			name: "whitespace trimmed",
			addr: AddressInput{Street: " 1212 Broadway ", City: "Oakland"},
			want: "1212 Broadway, Oakland",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatOneLine(tt.addr))
		})
	}
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "rooftop", googleLocationTypeToQuality("ROOFTOP"))
	assert.Equal(t, "range", googleLocationTypeToQuality("RANGE_INTERPOLATED"))
	assert.Equal(t, "centroid", googleLocationTypeToQuality("GEOMETRIC_CENTER"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality("APPROXIMATE"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality("something_else"))
}
