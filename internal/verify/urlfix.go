package verify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/model"
	"github.com/gserafini/reentry-map/pkg/anthropic"
	"github.com/gserafini/reentry-map/pkg/browser"
)

const urlFixSystemPrompt = `You locate the official website of community service organizations. Respond with exactly one URL and nothing else, or the exact text "not found" if no official site exists. Never answer with prose, explanations, or directory listings.`

const urlFixUserPrompt = `Find the official website for this organization. Its previously known URL no longer works.

Organization: %s
Location: %s
Dead URL: %s

Reply with exactly one URL (the organization's own site, not a directory or aggregator page), or "not found".`

// aggregator domains the web-search tool must not treat as an official site.
var urlFixBlockedDomains = []string{
	"facebook.com",
	"yelp.com",
	"yellowpages.com",
	"findhelp.org",
	"211.org",
	"guidestar.org",
	"charitynavigator.org",
}

// FixResult is the outcome of one auto-fix attempt. Usage is populated on
// every attempt so the cost is booked even on a miss.
type FixResult struct {
	Fixed bool
	URL   string
	Model string
	Usage anthropic.TokenUsage

	// Recheck is the reachability result for the candidate URL, set whenever
	// a candidate was proposed.
	Recheck model.CheckResult
}

// URLFixer asks an LLM with web search to recover a working replacement for
// a dead website URL. A candidate is trusted only after it independently
// passes the reachability check.
type URLFixer struct {
	llm           anthropic.Client
	model         string
	maxTokens     int64
	maxSearchUses int
}

// NewURLFixer creates a fixer backed by the given LLM client.
func NewURLFixer(llm anthropic.Client, model string, maxTokens int64, maxSearchUses int) *URLFixer {
	return &URLFixer{
		llm:           llm,
		model:         model,
		maxTokens:     maxTokens,
		maxSearchUses: maxSearchUses,
	}
}

// Fix proposes and re-validates a replacement URL. Any LLM failure, sentinel
// response, or unverifiable candidate yields Fixed=false; the token usage is
// returned regardless so the caller can record spend.
func (f *URLFixer) Fix(ctx context.Context, session browser.Session, sug *model.Suggestion, deadURL string) FixResult {
	result := FixResult{Model: f.model}

	resp, err := f.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:          f.model,
		MaxTokens:      f.maxTokens,
		System:         urlFixSystemPrompt,
		Messages:       []anthropic.Message{{Role: "user", Content: fmt.Sprintf(urlFixUserPrompt, sug.Name, sug.FullAddress(), deadURL)}},
		WebSearch:      true,
		MaxSearchUses:  f.maxSearchUses,
		BlockedDomains: urlFixBlockedDomains,
	})
	if err != nil {
		zap.L().Warn("url autofix call failed", zap.String("org", sug.Name), zap.Error(err))
		return result
	}
	result.Usage = resp.Usage

	candidate := strings.TrimSpace(resp.Text())
	if candidate == "" || strings.EqualFold(candidate, "not found") {
		return result
	}
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		zap.L().Debug("url autofix returned non-URL text", zap.String("org", sug.Name))
		return result
	}

	// Trust only a candidate that independently passes reachability.
	result.Recheck = CheckReachability(ctx, session, candidate)
	if !result.Recheck.Pass {
		return result
	}

	result.Fixed = true
	result.URL = candidate
	return result
}
