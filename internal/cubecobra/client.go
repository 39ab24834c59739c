// Package cubecobra provides the fetch-by-id client for CubeCobra cube
// documents. The cube cache depends only on this single contract: give me
// the cube for id X, or report that it does not exist.
package cubecobra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://cubecobra.com/cube/api/cubejson"
	rateLimitDelay = 200 * time.Millisecond
	requestTimeout = 15 * time.Second
)

// Client fetches cube documents from CubeCobra.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	userAgent   string
}

// ClientOptions configures the CubeCobra client.
type ClientOptions struct {
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Timeout bounds each fetch. Default: 15 seconds.
	Timeout time.Duration

	// HTTPClient allows a custom HTTP client.
	HTTPClient *http.Client
}

// NewClient creates a new CubeCobra client.
func NewClient(options ClientOptions) *Client {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := options.Timeout
	if timeout == 0 {
		timeout = requestTimeout
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitDelay), 1),
		userAgent:   "CubeAdvisor/1.0",
	}
}

// FetchCube retrieves the cube document for the given id. A missing cube
// surfaces as *NotFoundError; transport and server failures surface as
// *UnavailableError so callers can tell "does not exist" from "try later".
// No retry loop here: retry policy belongs to the caller.
func (c *Client) FetchCube(ctx context.Context, cubeID string) (*Cube, error) {
	if cubeID == "" {
		return nil, fmt.Errorf("cube id is required")
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, cubeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{CubeID: cubeID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Parsed below.
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{CubeID: cubeID}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &UnavailableError{
			CubeID: cubeID,
			Err:    fmt.Errorf("upstream returned status %d", resp.StatusCode),
		}
	default:
		return nil, fmt.Errorf("unexpected status code %d fetching cube %s", resp.StatusCode, cubeID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{CubeID: cubeID, Err: err}
	}

	var cube Cube
	if err := json.Unmarshal(body, &cube); err != nil {
		return nil, fmt.Errorf("failed to parse cube %s: %w", cubeID, err)
	}
	if cube.ID == "" {
		cube.ID = cubeID
	}

	return &cube, nil
}
