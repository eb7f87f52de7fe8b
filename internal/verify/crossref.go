package verify

import (
	"context"

	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/model"
	"github.com/gserafini/reentry-map/internal/retry"
	"github.com/gserafini/reentry-map/pkg/findhelp"
	"github.com/gserafini/reentry-map/pkg/places"
)

// CrossRefResult is one external source's view of the organization. Absence
// of a match is normal: Found=false with no fields.
type CrossRefResult struct {
	Source     string
	Found      bool
	MatchScore float64
	Fields     map[string]string
}

// CrossReferencer looks the organization up in external indices. Either
// client may be nil, in which case that source is skipped.
type CrossReferencer struct {
	directory findhelp.Client
	places    places.Client
	retryCfg  retry.Config
}

// NewCrossReferencer creates a cross-referencer over the given sources.
func NewCrossReferencer(directory findhelp.Client, placesClient places.Client) *CrossReferencer {
	return &CrossReferencer{
		directory: directory,
		places:    placesClient,
		retryCfg:  retry.Config{MaxAttempts: 2},
	}
}

// Lookup queries all configured sources. Provider errors drop the source
// from the results rather than failing the lookup.
func (c *CrossReferencer) Lookup(ctx context.Context, sug *model.Suggestion) []CrossRefResult {
	var results []CrossRefResult

	if c.directory != nil {
		res, err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) (*findhelp.SearchResponse, error) {
			return c.directory.Search(ctx, sug.Name, sug.FullAddress())
		})
		switch {
		case err != nil:
			zap.L().Warn("directory lookup failed", zap.String("org", sug.Name), zap.Error(err))
		case len(res.Programs) == 0:
			results = append(results, CrossRefResult{Source: "findhelp", Found: false})
		default:
			results = append(results, bestDirectoryMatch(sug, res.Programs))
		}
	}

	if c.places != nil {
		res, err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) (*places.TextSearchResponse, error) {
			return c.places.TextSearch(ctx, sug.Name+" "+sug.FullAddress())
		})
		switch {
		case err != nil:
			zap.L().Warn("places lookup failed", zap.String("org", sug.Name), zap.Error(err))
		case len(res.Places) == 0:
			results = append(results, CrossRefResult{Source: "google_places", Found: false})
		default:
			results = append(results, bestPlacesMatch(sug, res.Places))
		}
	}

	return results
}

func bestDirectoryMatch(sug *model.Suggestion, programs []findhelp.Program) CrossRefResult {
	best := programs[0]
	bestScore := similarity(normalizeValue(sug.Name), normalizeValue(best.Name))
	for _, p := range programs[1:] {
		if s := similarity(normalizeValue(sug.Name), normalizeValue(p.Name)); s > bestScore {
			best, bestScore = p, s
		}
	}
	return CrossRefResult{
		Source:     "findhelp",
		Found:      true,
		MatchScore: bestScore,
		Fields: map[string]string{
			"name":    best.Name,
			"phone":   best.Phone,
			"website": best.Website,
			"address": best.Address,
			"email":   best.Email,
		},
	}
}

func bestPlacesMatch(sug *model.Suggestion, found []places.Place) CrossRefResult {
	best := found[0]
	bestScore := similarity(normalizeValue(sug.Name), normalizeValue(best.DisplayName.Text))
	for _, p := range found[1:] {
		if s := similarity(normalizeValue(sug.Name), normalizeValue(p.DisplayName.Text)); s > bestScore {
			best, bestScore = p, s
		}
	}
	return CrossRefResult{
		Source:     "google_places",
		Found:      true,
		MatchScore: bestScore,
		Fields: map[string]string{
			"name":    best.DisplayName.Text,
			"phone":   best.NationalPhone,
			"website": best.WebsiteURI,
			"address": best.FormattedAddress,
		},
	}
}
