package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// Error codes returned by the server.
const (
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeInvalidState         = "INVALID_STATE"
	CodeNotFound             = "NOT_FOUND"
	CodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client is a thin HTTP wrapper for the sqeleton API. Time-dependent calls
// take now from Clock, so tests can drive time explicitly.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Clock      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithClock sets the time source used for now_ms.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.Clock = clock }
}

// WithH2C switches the client to HTTP/2 over cleartext TCP.
func WithH2C() Option {
	return func(c *Client) { c.HTTPClient = h2cHTTPClient() }
}

// New creates a new client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		URL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		Clock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func h2cHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	tr := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		ReadIdleTimeout: 30 * time.Second,
		PingTimeout:     10 * time.Second,
	}
	return &http.Client{
		Timeout:   60 * time.Second,
		Transport: tr,
	}
}

// Job is a job record as returned by the server. Times are Unix
// milliseconds and TTR is a millisecond count.
type Job struct {
	ID              string  `json:"id"`
	Queue           string  `json:"queue"`
	Payload         []byte  `json:"payload"`
	Priority        int64   `json:"priority"`
	TTR             int64   `json:"ttr"`
	CreatedAt       int64   `json:"created_at"`
	ReadyAt         int64   `json:"ready_at"`
	State           string  `json:"state"`
	ReserveDeadline *int64  `json:"reserve_deadline,omitempty"`
	BuryReason      *string `json:"bury_reason,omitempty"`
	ReserveCount    int     `json:"reserve_count"`
}

// QueueStats holds per-state counts for one queue.
type QueueStats struct {
	Queue    string `json:"queue"`
	Delayed  int    `json:"delayed"`
	Ready    int    `json:"ready"`
	Reserved int    `json:"reserved"`
	Buried   int    `json:"buried"`
	Total    int    `json:"total"`
}

// EnqueueOptions are the optional enqueue fields.
type EnqueueOptions struct {
	Priority int64
	TTR      time.Duration
	Delay    time.Duration
}

// EnqueueOption configures an enqueue request.
type EnqueueOption func(*EnqueueOptions)

func WithPriority(p int64) EnqueueOption {
	return func(o *EnqueueOptions) { o.Priority = p }
}

func WithTTR(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.TTR = d }
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.Delay = d }
}

// DefaultTTR is the lease duration used when WithTTR is not given.
const DefaultTTR = 60 * time.Second

// Enqueue adds a job and returns its id.
func (c *Client) Enqueue(ctx context.Context, queue string, payload []byte, opts ...EnqueueOption) (string, error) {
	o := EnqueueOptions{TTR: DefaultTTR}
	for _, opt := range opts {
		opt(&o)
	}
	body := map[string]any{
		"payload":  payload,
		"priority": o.Priority,
		"ttr_ms":   o.TTR.Milliseconds(),
		"delay_ms": o.Delay.Milliseconds(),
		"now_ms":   c.nowMs(),
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/queues/"+url.PathEscape(queue)+"/jobs", body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// Dequeue reserves the next ready job in queue. It returns nil, nil when
// the queue has nothing ready.
func (c *Client) Dequeue(ctx context.Context, queue string) (*Job, error) {
	var result struct {
		Job *Job `json:"job"`
	}
	body := map[string]any{"now_ms": c.nowMs()}
	if err := c.do(ctx, http.MethodPost, "/api/v1/queues/"+url.PathEscape(queue)+"/reserve", body, &result); err != nil {
		return nil, err
	}
	return result.Job, nil
}

// Delete removes a job and returns 1 if it existed, else 0.
func (c *Client) Delete(ctx context.Context, id string) (int, error) {
	var result struct {
		Removed int `json:"removed"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/jobs/"+url.PathEscape(id), nil, &result); err != nil {
		return 0, err
	}
	return result.Removed, nil
}

// Release returns a reserved job to its queue.
func (c *Client) Release(ctx context.Context, id string, priority int64, delay time.Duration) error {
	body := map[string]any{
		"priority": priority,
		"delay_ms": delay.Milliseconds(),
		"now_ms":   c.nowMs(),
	}
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/release", body, nil)
}

// Bury parks a job until it is kicked.
func (c *Client) Bury(ctx context.Context, id, reason string) error {
	body := map[string]any{"reason": reason}
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/bury", body, nil)
}

// Kick moves up to n buried jobs back to ready.
func (c *Client) Kick(ctx context.Context, queue string, n int) (int, error) {
	var result struct {
		Kicked int `json:"kicked"`
	}
	body := map[string]any{"n": n}
	if err := c.do(ctx, http.MethodPost, "/api/v1/queues/"+url.PathEscape(queue)+"/kick", body, &result); err != nil {
		return 0, err
	}
	return result.Kicked, nil
}

// WipeAll removes every job in every queue.
func (c *Client) WipeAll(ctx context.Context) (int, error) {
	return c.wipe(ctx, map[string]any{"all": true})
}

// WipeQueue removes every job in queue.
func (c *Client) WipeQueue(ctx context.Context, queue string) (int, error) {
	return c.wipe(ctx, map[string]any{"queue": queue})
}

func (c *Client) wipe(ctx context.Context, body map[string]any) (int, error) {
	var result struct {
		Removed int `json:"removed"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/wipe", body, &result); err != nil {
		return 0, err
	}
	return result.Removed, nil
}

// GetJob returns a job without changing it.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Stats returns per-state counts for queue.
func (c *Client) Stats(ctx context.Context, queue string) (*QueueStats, error) {
	var st QueueStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/queues/"+url.PathEscape(queue)+"/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListQueues returns stats for every known queue.
func (c *Client) ListQueues(ctx context.Context) ([]QueueStats, error) {
	var result struct {
		Queues []QueueStats `json:"queues"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/queues", nil, &result); err != nil {
		return nil, err
	}
	return result.Queues, nil
}

func (c *Client) nowMs() int64 {
	return c.Clock().UnixMilli()
}

// HTTP helpers

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Code = body.Code
			apiErr.Message = body.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if result != nil {
		return json.Unmarshal(data, result)
	}
	return nil
}
