// Package remote provides the HTTP client for the hosted entity-store API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/salespilot/core/internal/errors"
)

// Config holds entity-store connection configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the hosted entity-store REST API. One collection per
// entity domain; payloads are opaque JSON owned by the caller.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new Client.
func NewClient(config *Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: false,
			},
		},
	}
}

// Create inserts a new record into the collection.
func (c *Client) Create(ctx context.Context, collection string, data json.RawMessage) error {
	req, err := c.createRequest(ctx, http.MethodPost, c.collectionURL(collection, ""), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// Update patches an existing record by id.
func (c *Client) Update(ctx context.Context, collection, id string, data json.RawMessage) error {
	req, err := c.createRequest(ctx, http.MethodPatch, c.collectionURL(collection, id), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// Delete removes a record by id.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	req, err := c.createRequest(ctx, http.MethodDelete, c.collectionURL(collection, id), nil)
	if err != nil {
		return err
	}

	return c.do(req)
}

// collectionURL builds the REST path for a collection, optionally scoped to
// a single record.
func (c *Client) collectionURL(collection, id string) string {
	base := strings.TrimSuffix(c.config.BaseURL, "/")
	if id == "" {
		return fmt.Sprintf("%s/rest/v1/%s", base, url.PathEscape(collection))
	}
	return fmt.Sprintf("%s/rest/v1/%s/%s", base, url.PathEscape(collection), url.PathEscape(id))
}

// createRequest builds an authenticated request.
func (c *Client) createRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	return req, nil
}

// do executes the request and maps non-success responses to coded errors.
func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteFailed, "entity store request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := fmt.Sprintf("%s %s returned status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.New(apperrors.ErrRemoteAuthFailed, message)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.ErrRemoteNotFound, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrRemoteRateLimited, message)
	case resp.StatusCode >= 500:
		return apperrors.New(apperrors.ErrRemoteUnavailable, message)
	default:
		return apperrors.New(apperrors.ErrRemoteFailed, message)
	}
}
