// Package browser drives a headless Chrome session for reachability checks.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// Desktop Chrome on Windows. Sites that sniff for bots get a realistic
// fingerprint instead of the default HeadlessChrome token.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Session navigates URLs in an isolated browser context.
type Session interface {
	// Navigate loads the URL and waits for document-ready, returning the
	// main-document status and latency. Navigation failures are errors.
	Navigate(ctx context.Context, rawURL string) (*NavigationResult, error)
}

// NavigationResult holds the outcome of one page load.
type NavigationResult struct {
	StatusCode int
	FinalURL   string
	Latency    time.Duration
}

// Option configures the Chrome session.
type Option func(*Chrome)

// WithTimeout sets the hard navigation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Chrome) {
		c.timeout = d
	}
}

// WithUserAgent overrides the spoofed user agent.
func WithUserAgent(ua string) Option {
	return func(c *Chrome) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeadless toggles headless mode (on by default; off aids debugging).
func WithHeadless(headless bool) Option {
	return func(c *Chrome) {
		c.headless = headless
	}
}

// Chrome implements Session by launching a fresh browser process per
// navigation. Each call tears the process down on every exit path, so a
// crashed or timed-out page never leaks a Chrome process.
type Chrome struct {
	timeout   time.Duration
	userAgent string
	headless  bool
}

// NewChrome creates a Chrome session with the given options.
func NewChrome(opts ...Option) *Chrome {
	c := &Chrome{
		timeout:   15 * time.Second,
		userAgent: defaultUserAgent,
		headless:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Navigate implements Session.
func (c *Chrome) Navigate(ctx context.Context, rawURL string) (*NavigationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(c.userAgent),
		chromedp.WindowSize(1366, 768),
		chromedp.Flag("headless", c.headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "en-US"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var statusCode int64
	var finalURL string
	chromedp.ListenTarget(tabCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		// Only the main document's status matters, not subresources.
		if resp.Type == network.ResourceTypeDocument && statusCode == 0 {
			statusCode = resp.Response.Status
			finalURL = resp.Response.URL
		}
	})

	start := time.Now()
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(rawURL),
		// Document-ready, not network-idle: slow third-party assets should
		// not fail an otherwise live site.
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	latency := time.Since(start)

	if err != nil {
		return nil, eris.Wrapf(err, "browser: navigate %s", rawURL)
	}
	if statusCode == 0 {
		return nil, eris.Errorf("browser: no document response for %s", rawURL)
	}

	return &NavigationResult{
		StatusCode: int(statusCode),
		FinalURL:   finalURL,
		Latency:    latency,
	}, nil
}
