// Package stats is the HTTP client for the view statistics service.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventadmission/internal/domain"
)

// timeLayout is the timestamp format the stats service expects in queries and hits.
const timeLayout = "2006-01-02 15:04:05"

type viewStats struct {
	App  string `json:"app"`
	URI  string `json:"uri"`
	Hits int64  `json:"hits"`
}

type hitRequest struct {
	App       string `json:"app"`
	URI       string `json:"uri"`
	IP        string `json:"ip"`
	Timestamp string `json:"timestamp"`
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns a StatsClient for the service at baseURL.
func NewHTTPClient(baseURL string, client *http.Client) domain.StatsClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *httpClient) ViewsForEvents(ctx context.Context, start, end time.Time, uris []string) (map[string]int64, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(timeLayout))
	q.Set("end", end.UTC().Format(timeLayout))
	for _, u := range uris {
		q.Add("uris", u)
	}
	q.Set("unique", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats api returned status: %d", resp.StatusCode)
	}

	var data []viewStats
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode stats response: %w", err)
	}
	views := make(map[string]int64, len(data))
	for _, v := range data {
		views[v.URI] += v.Hits
	}
	return views, nil
}

func (c *httpClient) RecordHit(ctx context.Context, hit domain.EndpointHit) error {
	body, err := json.Marshal(hitRequest{
		App:       hit.App,
		URI:       hit.URI,
		IP:        hit.IP,
		Timestamp: hit.Timestamp.UTC().Format(timeLayout),
	})
	if err != nil {
		return fmt.Errorf("failed to encode hit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/hit", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to record hit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stats api returned status: %d", resp.StatusCode)
	}
	return nil
}

type noopClient struct{}

// NewNoopClient returns a StatsClient that records nothing and reports no views.
// It is used when no stats service is configured.
func NewNoopClient() domain.StatsClient {
	return noopClient{}
}

func (noopClient) ViewsForEvents(context.Context, time.Time, time.Time, []string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (noopClient) RecordHit(context.Context, domain.EndpointHit) error {
	return nil
}
