// Package findhelp provides a client for the findhelp.org social-services
// directory API, used to cross-reference community resource suggestions.
package findhelp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gserafini/reentry-map/internal/retry"
)

const defaultBaseURL = "https://api.findhelp.com/v3"

// Client defines the directory search operations used by the pipeline.
type Client interface {
	// Search looks up programs matching an organization name near a location.
	Search(ctx context.Context, name, location string) (*SearchResponse, error)
}

// SearchResponse is the parsed directory search response.
type SearchResponse struct {
	Programs []Program `json:"programs"`
	Count    int       `json:"count"`
}

// Program is one directory entry as known by the index.
type Program struct {
	Name        string `json:"name"`
	Provider    string `json:"provider_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone_number"`
	Website     string `json:"website_url"`
	Email       string `json:"email"`
	Description string `json:"description"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a directory search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, name, location string) (*SearchResponse, error) {
	params := url.Values{
		"query": {name},
	}
	if location != "" {
		params.Set("location", location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "findhelp: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "findhelp: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "findhelp: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("findhelp: unexpected status %d: %s", resp.StatusCode, string(body))
		if retry.TransientStatus(resp.StatusCode) {
			return nil, retry.Mark(err, resp.StatusCode)
		}
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "findhelp: unmarshal response")
	}

	return &result, nil
}
