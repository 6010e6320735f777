package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no API key is set
var ErrNotConfigured = errors.New("web search is not configured: set SERPAPI_API_KEY")

// Result is one organic search hit
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SerpAPIClient runs Google searches through SerpApi
type SerpAPIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewSerpAPIClient creates a client for baseURL. An empty apiKey leaves the
// client unconfigured; Search then fails with ErrNotConfigured.
func NewSerpAPIClient(baseURL, apiKey string, timeout time.Duration) *SerpAPIClient {
	return &SerpAPIClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

// Search returns up to max organic results for query
func (c *SerpAPIClient) Search(ctx context.Context, query string, max int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	q := url.Values{
		"engine":  {"google"},
		"q":       {query},
		"num":     {strconv.Itoa(max)},
		"api_key": {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		// the request url carries the key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Error   string   `json:"error"`
		Organic []Result `json:"organic_results"`
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			return nil, fmt.Errorf("web search returned %d: %s", resp.StatusCode, body.Error)
		}
		return nil, fmt.Errorf("web search returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode web search: %w", err)
	}
	if body.Error != "" && len(body.Organic) == 0 {
		// SerpApi reports an empty result page as an error with status 200
		if strings.Contains(strings.ToLower(body.Error), "hasn't returned any results") {
			return nil, nil
		}
		return nil, fmt.Errorf("web search: %s", body.Error)
	}
	if len(body.Organic) > max {
		body.Organic = body.Organic[:max]
	}
	return body.Organic, nil
}
