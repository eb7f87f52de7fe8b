package verify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gserafini/reentry-map/internal/model"
)

// ContentExtractor fetches a page and reduces it to plain text bounded by a
// character budget, small enough to hand to an LLM or match against.
type ContentExtractor struct {
	httpClient *http.Client
	userAgent  string
	charBudget int
}

// NewContentExtractor creates an extractor with the given timeout and budget.
func NewContentExtractor(timeout time.Duration, charBudget int, userAgent string) *ContentExtractor {
	if charBudget <= 0 {
		charBudget = 5000
	}
	if userAgent == "" {
		userAgent = "reentry-map-verifier/1.0"
	}
	return &ContentExtractor{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		charBudget: charBudget,
	}
}

// Extract fetches the URL and returns stripped page text. Any fetch failure
// or non-2xx status returns an empty string; callers treat that as "check
// unavailable", not as a failing check.
func (e *ContentExtractor) Extract(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()

	text := strings.Join(strings.Fields(doc.Text()), " ")
	// The budget counts characters, and a byte slice could split a
	// multi-byte rune.
	if len(text) > e.charBudget {
		if runes := []rune(text); len(runes) > e.charBudget {
			text = string(runes[:e.charBudget])
		}
	}
	return text
}

// MatchContent checks whether page text plausibly belongs to the named
// organization: the fraction of name tokens present in the text serves as
// confidence, passing at half or more.
func MatchContent(content, orgName string) model.CheckResult {
	now := time.Now().UTC()
	tokens := strings.Fields(strings.ToLower(orgName))
	if len(tokens) == 0 || content == "" {
		return model.CheckResult{Pass: false, CheckedAt: now, Error: "no content"}
	}

	lower := strings.ToLower(content)
	found := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			found++
		}
	}
	frac := float64(found) / float64(len(tokens))

	return model.CheckResult{
		Pass:       frac >= 0.5,
		Confidence: frac,
		CheckedAt:  now,
		Details:    map[string]any{"matched_tokens": found, "total_tokens": len(tokens)},
	}
}
