package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/config"
	"github.com/gserafini/reentry-map/internal/cost"
	"github.com/gserafini/reentry-map/internal/event"
	"github.com/gserafini/reentry-map/internal/store"
	"github.com/gserafini/reentry-map/internal/verify"
	anthropicpkg "github.com/gserafini/reentry-map/pkg/anthropic"
	"github.com/gserafini/reentry-map/pkg/browser"
	"github.com/gserafini/reentry-map/pkg/findhelp"
	"github.com/gserafini/reentry-map/pkg/geocode"
	"github.com/gserafini/reentry-map/pkg/places"
)

// verifyEnv holds the initialized store and verifier shared by the verify,
// batch, serve, and schedule commands.
type verifyEnv struct {
	Store    store.Store
	Verifier *verify.Verifier
}

// Close releases resources held by the environment.
func (e *verifyEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "reentry.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initVerifier sets up the store and all external clients, then builds the
// Verifier. Callers should defer env.Close(). Providers without credentials
// are skipped with a log line; their checks simply don't run.
func initVerifier(ctx context.Context) (*verifyEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	session := browser.NewChrome(
		browser.WithTimeout(time.Duration(cfg.Browser.TimeoutSecs)*time.Second),
		browser.WithHeadless(cfg.Browser.Headless),
		browser.WithUserAgent(cfg.Browser.UserAgent),
	)

	geoOpts := []geocode.Option{geocode.WithRateLimit(cfg.Geocode.RateLimit)}
	if cfg.Geocode.GoogleKey != "" {
		geoOpts = append(geoOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	geocoder := geocode.NewClient(geoOpts...)

	var placesClient places.Client
	if cfg.Places.Key != "" {
		placesClient = places.NewClient(cfg.Places.Key, places.WithBaseURL(cfg.Places.BaseURL))
	} else {
		zap.L().Debug("REENTRY_PLACES_KEY not set, places cross-referencing disabled")
	}

	var directoryClient findhelp.Client
	if cfg.Directory.Key != "" {
		directoryClient = findhelp.NewClient(cfg.Directory.Key, findhelp.WithBaseURL(cfg.Directory.BaseURL))
	} else {
		zap.L().Debug("REENTRY_DIRECTORY_KEY not set, directory cross-referencing disabled")
	}

	var fixer *verify.URLFixer
	if cfg.Anthropic.Key != "" {
		llm := anthropicpkg.NewClient(cfg.Anthropic.Key)
		fixer = verify.NewURLFixer(llm, cfg.Anthropic.Model, int64(cfg.Anthropic.MaxTokens), cfg.Anthropic.WebSearchMaxUses)
	} else {
		zap.L().Warn("REENTRY_ANTHROPIC_KEY not set, URL auto-fixing disabled")
	}

	content := verify.NewContentExtractor(
		time.Duration(cfg.Verifier.ContentTimeoutSecs)*time.Second,
		cfg.Verifier.ContentCharBudget,
		cfg.Verifier.AgentVersion,
	)

	v := verify.NewVerifier(
		cfg.Verifier,
		st,
		session,
		geocoder,
		content,
		verify.NewCrossReferencer(directoryClient, placesClient),
		fixer,
		event.NewEmitter(st),
		cost.NewCalculator(pricingRates(cfg.Pricing)),
	)

	return &verifyEnv{Store: st, Verifier: v}, nil
}

// pricingRates converts configured pricing into calculator rates, falling
// back to the built-in table when nothing is configured.
func pricingRates(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for model, mp := range p.Anthropic {
		rates.Anthropic[model] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
	}
	if p.Geocode.PerQuery > 0 {
		rates.Geocode = cost.PerQueryRate{PerQuery: p.Geocode.PerQuery}
	}
	if p.Places.PerQuery > 0 {
		rates.Places = cost.PerQueryRate{PerQuery: p.Places.PerQuery}
	}
	return rates
}
