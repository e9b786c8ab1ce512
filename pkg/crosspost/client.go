// Package crosspost mirrors Discord announcements to Guilded and to a Roblox
// group, and talks to Roblox Open Cloud for game bans.
package crosspost

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

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

// ErrNotOpen is returned by clients used before Open or after Close.
var ErrNotOpen = errors.New("crosspost client is not open")

// RequestError describes a failed outbound call.
type RequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	default:
		return e.Op
	}
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusCode extracts the HTTP status from a RequestError chain, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// httpClient is the session shared by the Guilded and Roblox clients: an
// explicit Open/Close lifecycle around *http.Client plus outbound pacing.
type httpClient struct {
	timeout time.Duration
	limiter *rate.Limiter
	client  *http.Client
}

func newHTTPClient(timeout time.Duration, perSecond float64) httpClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return httpClient{timeout: timeout, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (c *httpClient) open() {
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
}

func (c *httpClient) close() {
	if c.client != nil {
		c.client.CloseIdleConnections()
		c.client = nil
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends body as JSON and returns the raw response. Non-2xx statuses are
// returned as a RequestError alongside the response.
func (c *httpClient) do(ctx context.Context, op, method, url string, body any, header http.Header) (response, error) {
	if c.client == nil {
		return response{}, &RequestError{Op: op, Err: ErrNotOpen}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return response{}, &RequestError{Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return response{}, &RequestError{Op: op, Err: fmt.Errorf("marshal request body: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return response{}, &RequestError{Op: op, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return response{}, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return response{}, &RequestError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	out := response{status: resp.StatusCode, header: resp.Header, body: data}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return out, &RequestError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	return out, nil
}

func trimBase(base, fallback string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = fallback
	}
	return strings.TrimRight(base, "/")
}
