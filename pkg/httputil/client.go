package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/strata/pkg/buildinfo"
	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/observability"
)

// Default client settings.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultAttempts = 3
	DefaultBackoff  = 500 * time.Millisecond

	// MaxBodySize caps response bodies. Layer assets are the largest
	// payloads and stay well below this.
	MaxBodySize = 64 << 20
)

// Client is a small HTTP client with retry and status classification.
type Client struct {
	HTTP     *http.Client
	Attempts int
	Backoff  time.Duration
	Header   http.Header
}

// NewClient returns a client with the default timeout and retry policy.
func NewClient() *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: DefaultTimeout},
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
	}
}

// Get fetches rawURL and returns the response body, retrying transient
// failures.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := Retry(ctx, c.Attempts, c.Backoff, func() error {
		var err error
		body, err = c.get(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, Permanent(err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	c.prepare(req)

	resp, err := c.do(ctx, req, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classify(resp, u); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "read %s", u.Redacted()))
	}
	if len(body) > MaxBodySize {
		return nil, errors.New(errors.ErrCodeInvalidInput, "GET %s: body exceeds %d bytes", u.Redacted(), MaxBodySize)
	}
	return body, nil
}

func (c *Client) prepare(req *http.Request) {
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
}

// do sends req and reports it to the HTTP hooks. Transport failures are
// retryable unless ctx is done.
func (c *Client) do(ctx context.Context, req *http.Request, u *url.URL) (*http.Response, error) {
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
	start := time.Now()

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeTimeout, err, "%s %s", req.Method, u.Redacted())
		}
		return nil, Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "%s %s", req.Method, u.Redacted()))
	}
	hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))
	return resp, nil
}

// classify maps a response status onto an error. Rate limits and
// unavailable gateways honour Retry-After.
func classify(resp *http.Response, u *url.URL) error {
	status, method := resp.StatusCode, resp.Request.Method
	switch {
	case status == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "%s %s: not found", method, u.Redacted())
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return RetryAfter(errors.New(errors.ErrCodeNetwork, "%s %s: status %d", method, u.Redacted(), status), resp.Header)
	case status >= 500:
		return Retryable(errors.New(errors.ErrCodeNetwork, "%s %s: status %d", method, u.Redacted(), status))
	case status < 200 || status > 299:
		return errors.New(errors.ErrCodeNetwork, "%s %s: status %d", method, u.Redacted(), status)
	}
	return nil
}

// PostJSON posts body as JSON to rawURL, retrying transient failures. The
// response body is discarded.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "encode request body")
	}
	err = Retry(ctx, c.Attempts, c.Backoff, func() error {
		return c.post(ctx, rawURL, payload)
	})
	return Permanent(err)
}

func (c *Client) post(ctx context.Context, rawURL string, payload []byte) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "parse url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	c.prepare(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize))
	return classify(resp, u)
}

// Join appends a path to a base URL, escaping the path.
func Join(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return u.JoinPath(path).String(), nil
}
