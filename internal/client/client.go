// Package client provides an HTTP client for the xtts-server API, for use by
// command-line callers and other services that want synthesized audio without
// speaking the wire protocol by hand.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API paths.
const (
	apiSynthesize = "/synthesize"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Static errors.
var (
	ErrTextEmpty     = errors.New("text cannot be empty")
	ErrEmptyAudio    = errors.New("received empty audio data")
	ErrNotWAV        = errors.New("unexpected content type")
	ErrServerFailure = errors.New("synthesis server error")
	ErrHealthNotOK   = errors.New("health check failed")
)

// Client talks to a running xtts-server instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// synthesizeRequest mirrors the server's request body.
type synthesizeRequest struct {
	Text string `json:"text"`
}

// New creates a client for the server at baseURL (protocol and port
// included, e.g. "http://localhost:5050"). The timeout bounds every request;
// zero means no timeout, matching the server's own lack of one.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize requests audio for the given text and returns the WAV bytes.
func (c *Client) Synthesize(ctx context.Context, input string) ([]byte, error) {
	if input == "" {
		return nil, ErrTextEmpty
	}

	body, marshalErr := json.Marshal(synthesizeRequest{Text: input})
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", marshalErr)
	}

	req, reqErr := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSynthesize,
		bytes.NewReader(body),
	)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create request: %w", reqErr)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, contentTypeWAV)

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("failed to reach synthesis server at %s: %w", c.baseURL, doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrNotWAV, contentTypeWAV, contentType)
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", readErr)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// Health verifies the server is up and answering.
func (c *Client) Health(ctx context.Context) error {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("failed to create health check request: %w", reqErr)
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return fmt.Errorf("health check failed for server at %s: %w", c.baseURL, doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrHealthNotOK, resp.Status)
	}

	return nil
}

// statusError turns a non-200 response into an error carrying the server's
// plain-text diagnostic.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = resp.Status
	}

	return fmt.Errorf("%w: %s: %s", ErrServerFailure, resp.Status, detail)
}
