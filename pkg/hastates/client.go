package hastates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client reads entity states from an automation hub over its REST API.
type Client interface {
	// States returns the full state snapshot for every entity the hub knows.
	States(ctx context.Context) ([]EntityState, error)
	// History returns the recorded states of one entity between two instants.
	// Hubs frequently do not retain history for fast-changing power sensors,
	// so an empty result is normal.
	History(ctx context.Context, entityId string, start, end time.Time) ([]EntityState, error)
	// Ping checks API reachability without transferring a snapshot.
	Ping(ctx context.Context) error
}

type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func CreateHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) States(ctx context.Context) ([]EntityState, error) {
	body, err := c.get(ctx, "/api/states")
	if err != nil {
		return nil, err
	}
	var states []EntityState
	if err := json.Unmarshal(body, &states); err != nil {
		return nil, fmt.Errorf("hub states decode: %w", err)
	}
	return states, nil
}

func (c *HTTPClient) History(ctx context.Context, entityId string, start, end time.Time) ([]EntityState, error) {
	path := fmt.Sprintf("/api/history/period/%s?filter_entity_id=%s&end_time=%s",
		start.UTC().Format(time.RFC3339),
		url.QueryEscape(entityId),
		url.QueryEscape(end.UTC().Format(time.RFC3339)))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	// the hub nests one list per requested entity
	var lists [][]EntityState
	if err := json.Unmarshal(body, &lists); err != nil {
		return nil, fmt.Errorf("hub history decode: %w", err)
	}
	if len(lists) == 0 {
		return nil, nil
	}
	return lists[0], nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/api/")
	return err
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("hub GET %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
