package verify

import (
	"context"
	"net/url"
	"time"

	"github.com/gserafini/reentry-map/internal/model"
	"github.com/gserafini/reentry-map/pkg/browser"
)

// CheckReachability loads the URL in an isolated browser session and passes
// on a 2xx-3xx main-document status. Malformed URLs fail fast without
// launching a browser. Navigation errors become a failing result, never an
// error return.
func CheckReachability(ctx context.Context, session browser.Session, rawURL string) model.CheckResult {
	now := time.Now().UTC()

	if !validURL(rawURL) {
		return model.CheckResult{
			Pass:      false,
			CheckedAt: now,
			Error:     "malformed URL",
		}
	}

	nav, err := session.Navigate(ctx, rawURL)
	if err != nil {
		return model.CheckResult{
			Pass:      false,
			CheckedAt: now,
			Error:     err.Error(),
		}
	}

	result := model.CheckResult{
		Pass:       nav.StatusCode >= 200 && nav.StatusCode < 400,
		CheckedAt:  now,
		LatencyMS:  nav.Latency.Milliseconds(),
		StatusCode: nav.StatusCode,
	}
	if nav.FinalURL != "" && nav.FinalURL != rawURL {
		result.Details = map[string]any{"final_url": nav.FinalURL}
	}
	return result
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
