// Package imghost uploads screenshots to an image host over multipart HTTP.
//
// The host receives the file in an "image" form field and answers with a
// JSON object whose "url" field is the public address of the image.
package imghost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 60 * time.Second
	headerAPIKey   = "X-API-Key"
	formField      = "image"
)

// Uploader publishes one image and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

type uploadResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Client uploads images to one endpoint, throttled by a token bucket.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
}

// Option customizes a client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRequestsPerMinute throttles uploads. Zero or less disables throttling.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(n)/60), 1)
	}
}

// New returns a client for endpoint.
func New(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		http:     &http.Client{Timeout: defaultTimeout},
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload waits for the rate limiter, posts the file and returns its URL.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	if c == nil || c.endpoint == "" {
		return "", fmt.Errorf("imghost: upload endpoint not configured")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("imghost: empty file path")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("imghost: rate limit: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("imghost: open image: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	field, err := writer.CreateFormFile(formField, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("imghost: create file field: %w", err)
	}
	if _, err := io.Copy(field, file); err != nil {
		return "", fmt.Errorf("imghost: copy image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("imghost: close multipart writer: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("imghost: build request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		request.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(request)
	if err != nil {
		return "", fmt.Errorf("imghost: http request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("imghost: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("imghost: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var parsed uploadResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("imghost: decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("imghost: %s", parsed.Error)
	}
	if strings.TrimSpace(parsed.URL) == "" {
		return "", fmt.Errorf("imghost: response has no url")
	}
	return parsed.URL, nil
}
