// Package client provides the HTTP client for communicating with the
// job-management controller. It covers the pull side of hook delivery:
// heartbeats, fetching pending hook requests, and reporting results.
//
// The client uses hashicorp/go-retryablehttp for automatic retry with
// backoff and jitter; transient network failures between node and
// controller are routine and must not lose hook results.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/opsforge/hookd/internal/hooks"
	"github.com/opsforge/hookd/internal/nodeinfo"
	"github.com/opsforge/hookd/internal/version"
)

// Client is the HTTP client for the controller API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	node       string
	logger     *slog.Logger
}

// NewClient creates a Client for the controller at baseURL, authenticating
// as node with the node token.
//
// The client retries up to 3 times with linear jitter backoff and a 30s
// per-request timeout.
func NewClient(baseURL, token, node string, logger *slog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff

	// Quiet retryablehttp's internal logging; slog covers it.
	retryClient.Logger = nil

	retryClient.HTTPClient.Timeout = 30 * time.Second

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    baseURL,
		token:      token,
		node:       node,
		logger:     logger.With(slog.String("component", "client")),
	}
}

// Heartbeat tells the controller the node is alive and reports its current
// snapshot. The controller uses the last heartbeat to detect dead nodes.
func (c *Client) Heartbeat(ctx context.Context, snap *nodeinfo.Snapshot) error {
	body := struct {
		Version  string             `json:"version"`
		Platform string             `json:"platform"`
		Node     *nodeinfo.Snapshot `json:"node,omitempty"`
	}{
		Version:  version.Version,
		Platform: runtime.GOOS + "-" + runtime.GOARCH,
		Node:     snap,
	}

	return c.post(ctx, "/api/v1/nodes/"+c.node+"/heartbeat", body, nil)
}

// FetchPendingRequests returns hook requests queued for this node. Used
// when NATS push is unavailable; the deduplicator makes dual delivery safe.
func (c *Client) FetchPendingRequests(ctx context.Context) ([]hooks.Request, error) {
	url := c.baseURL + "/api/v1/nodes/" + c.node + "/hooks/pending"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending-hooks request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pending-hooks request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("pending-hooks request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Requests []hooks.Request `json:"requests"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode pending-hooks response: %w", err)
	}

	return payload.Requests, nil
}

// ReportResults reports a batch of hook results to the controller.
func (c *Client) ReportResults(ctx context.Context, batch []*hooks.Result) error {
	if len(batch) == 0 {
		return nil
	}
	body := struct {
		Results []*hooks.Result `json:"results"`
	}{Results: batch}

	return c.post(ctx, "/api/v1/nodes/"+c.node+"/hooks/results", body, nil)
}

// post sends a JSON body and optionally decodes a JSON response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	c.logger.Debug("posting to controller", slog.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("request to %s failed with status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hookd-Version", version.Version)
}
