// Package apiclient is the Go counterpart of the web client's API layer:
// a cookie-carrying HTTP client that transparently refreshes an expired
// access token and retries the original request once.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultRefreshPath = "/auth/refresh"

// ErrSessionExpired reports that a refresh attempt failed; the session is
// terminal and the caller must re-authenticate.
var ErrSessionExpired = errors.New("session expired")

// APIError carries a non-2xx response the server answered with.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// Client deduplicates concurrent 401s into a single refresh-and-retry flow.
// The refresh state is owned by the client instance, so independent clients
// never share a session.
//
// Invariant: at most one refresh call is in flight per client. Requests that
// hit a 401 while a refresh is outstanding park themselves as waiters and
// settle together with it; each original request is retried at most once.
type Client struct {
	baseURL          *url.URL
	httpClient       *http.Client
	refreshPath      string
	onSessionExpired func()

	mu         sync.Mutex
	refreshing bool
	waiters    []chan error
}

type Option func(*Client)

// WithSessionExpiredHandler registers the callback fired once when a refresh
// fails — the client-side equivalent of redirecting to the login page.
func WithSessionExpiredHandler(fn func()) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url must be absolute")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client := &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		refreshPath: defaultRefreshPath,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Do sends a JSON request. On 401 it joins the shared refresh flow and, if
// the refresh succeeds, retries exactly once; a retried request that sees
// another 401 fails without re-entering the flow.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	retried := false
	for {
		resp, err := c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && !retried && path != c.refreshPath {
			drain(resp)
			retried = true
			if err := c.refresh(ctx); err != nil {
				return err
			}
			continue
		}

		return decodeResponse(resp, out)
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return resp, nil
}

// refresh is the IDLE/REFRESHING state machine. The flag flips before any
// suspension point, so near-simultaneous 401s cannot both observe IDLE and
// double-issue the refresh call; late arrivals park as waiters and settle
// with the in-flight outcome.
func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.refreshing {
		wait := make(chan error, 1)
		c.waiters = append(c.waiters, wait)
		c.mu.Unlock()

		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	err := c.callRefresh(ctx)

	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, wait := range waiters {
		wait <- err
	}

	if err != nil && c.onSessionExpired != nil {
		c.onSessionExpired()
	}

	return err
}

func (c *Client) callRefresh(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodPost, c.refreshPath, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrSessionExpired
	}

	return nil
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil {
			apiErr.Message = body.Error
			if apiErr.Message == "" {
				apiErr.Message = body.Message
			}
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}

	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
