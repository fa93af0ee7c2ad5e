// Package mdmclient talks to the management server's plugin endpoints.
package mdmclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/org/mdmagent/pkg/models"
)

// DefaultTimeout bounds a single request when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 512

var (
	// ErrEmptyBody is returned when a read endpoint answers 2xx with no content.
	ErrEmptyBody = errors.New("empty response body")
	// ErrIncompleteDevice is returned by New when the device identity is unusable.
	ErrIncompleteDevice = errors.New("device id and server project are required")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Endpoint locates one management server.
type Endpoint struct {
	BaseURL string
}

// Device identifies this agent to the server.
type Device struct {
	Project  string
	DeviceID string
}

// Options tunes a Client.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client

	// Clock times requests for logging. Nil means the real clock.
	Clock  quartz.Clock
	Logger zerolog.Logger
}

// Client is an HTTP client for one management server.
type Client struct {
	base   string
	device Device
	http   *http.Client
	clock  quartz.Clock
	logger zerolog.Logger
}

// New creates a Client. It fails when the base URL is not absolute or the
// device identity is incomplete.
func New(ep Endpoint, dev Device, opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(ep.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", ep.BaseURL)
	}
	if dev.Project == "" || dev.DeviceID == "" {
		return nil, ErrIncompleteDevice
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Client{
		base:   base,
		device: dev,
		http:   hc,
		clock:  clock,
		logger: opts.Logger.With().Str("component", "mdmclient").Str("server", u.Host).Logger(),
	}, nil
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.base }

// GetPolicy returns the raw work-time policy response for this device.
func (c *Client) GetPolicy(ctx context.Context) ([]byte, error) {
	return c.read(ctx, c.pluginURL(models.WorkTimePluginID, "policy"))
}

// FeatureEnabled returns the raw "is the feature enabled" response for a
// server plugin, e.g. "calllog".
func (c *Client) FeatureEnabled(ctx context.Context, feature string) ([]byte, error) {
	return c.read(ctx, c.pluginURL(feature, "enabled"))
}

// UploadCallLogs submits a batch of call records.
func (c *Client) UploadCallLogs(ctx context.Context, records []models.CallLogRecord) error {
	return c.submit(ctx, c.pluginURL("calllog", "submit"), records)
}

// UploadDetailedInfo submits a batch of telemetry samples.
func (c *Client) UploadDetailedInfo(ctx context.Context, samples []models.DetailedInfo) error {
	return c.submit(ctx, c.pluginURL("deviceinfo", "submit"), samples)
}

func (c *Client) pluginURL(plugin, op string) string {
	return c.base + "/" + url.PathEscape(c.device.Project) +
		"/rest/plugins/" + url.PathEscape(plugin) +
		"/public/" + op + "/" + url.PathEscape(c.device.DeviceID)
}

func (c *Client) read(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyBody
	}
	return data, nil
}

func (c *Client) submit(ctx context.Context, target string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Idempotency-Key", IdempotencyKey(data))

	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := c.clock.Now("mdmclient", "request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", c.clock.Since(start, "mdmclient", "request")).
		Msg("server request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := strings.TrimSpace(string(data))
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode, Body: body}
	}
	return data, nil
}

// IdempotencyKey derives the deduplication key sent with an upload body.
// Identical batches always produce the same key.
func IdempotencyKey(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}
