// Package scryfall provides a client for the Scryfall bulk data API.
// The attribute catalog depends only on the metadata endpoint (current
// version token plus download URI) and on downloading the dataset itself.
package scryfall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://api.scryfall.com"
	rateLimitDelay  = 100 * time.Millisecond // 100ms between requests (10 req/sec)
	requestTimeout  = 30 * time.Second
	downloadTimeout = 5 * time.Minute
	maxRetries      = 3
	initialBackoff  = 1 * time.Second
	maxBackoff      = 16 * time.Second

	// OracleCardsType is the bulk data type holding one record per Oracle ID.
	OracleCardsType = "oracle_cards"
)

// Client represents a Scryfall API client with rate limiting.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	downloadClient *http.Client
	rateLimiter    *rate.Limiter
	userAgent      string
}

// ClientOptions configures the Scryfall client.
type ClientOptions struct {
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// HTTPClient allows a custom HTTP client for metadata requests.
	HTTPClient *http.Client
}

// NewClient creates a new Scryfall API client.
func NewClient(options ClientOptions) *Client {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		downloadClient: &http.Client{Timeout: downloadTimeout},
		// Rate limiter: 1 request per 100ms = 10 req/sec
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitDelay), 1),
		userAgent:   "CubeAdvisor/1.0",
	}
}

// BulkDataInfo retrieves the list of available bulk data files.
func (c *Client) BulkDataInfo(ctx context.Context) (*BulkDataList, error) {
	url := fmt.Sprintf("%s/bulk-data", c.baseURL)

	var bulkData BulkDataList
	if err := c.doRequest(ctx, url, &bulkData); err != nil {
		return nil, fmt.Errorf("failed to get bulk data: %w", err)
	}

	return &bulkData, nil
}

// OracleCardsInfo retrieves the metadata entry for the Oracle Cards dataset.
// This is the cheap version check: one small request, no dataset download.
func (c *Client) OracleCardsInfo(ctx context.Context) (*BulkData, error) {
	list, err := c.BulkDataInfo(ctx)
	if err != nil {
		return nil, err
	}

	for i := range list.Data {
		if list.Data[i].Type == OracleCardsType {
			return &list.Data[i], nil
		}
	}

	return nil, fmt.Errorf("%s bulk data not found", OracleCardsType)
}

// DownloadBulk streams a bulk dataset to destPath. The file is written to a
// temporary sibling first and renamed into place, so a reader never observes
// a partial download.
func (c *Client) DownloadBulk(ctx context.Context, downloadURI, destPath string) (int64, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURI, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download bulk data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return 0, &NotFoundError{URL: downloadURI}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create data directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "bulk-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, err := io.Copy(tmpFile, resp.Body)
	if err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write bulk data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename bulk file: %w", err)
	}

	return written, nil
}

// doRequest performs an HTTP request with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, url string, result interface{}) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)

			// Retry on network errors
			if attempt < maxRetries {
				time.Sleep(backoff)
				backoff = minDuration(backoff*2, maxBackoff)
				continue
			}
			return lastErr
		}

		switch resp.StatusCode {
		case http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return fmt.Errorf("failed to read response body: %w", err)
			}

			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("failed to parse JSON response: %w", err)
			}

			return nil

		case http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (HTTP 429)")

			if attempt < maxRetries {
				time.Sleep(backoff)
				backoff = minDuration(backoff*2, maxBackoff)
				continue
			}
			return lastErr

		case http.StatusNotFound:
			_ = resp.Body.Close()
			return &NotFoundError{URL: url}

		default:
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()

			var apiErr APIError
			if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Details != "" {
				return &apiErr
			}

			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// minDuration returns the minimum of two time.Duration values.
func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
