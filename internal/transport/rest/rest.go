// Package rest issues single JSON requests against the chat service and
// normalises success and error responses.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// HeaderAlias carries the caller identity handle.
	HeaderAlias = "user-alias-name"
	// HeaderRequestID correlates a request with server logs.
	HeaderRequestID = "x-request-id"

	maxErrorBody = 64 << 10
)

// Error is a non-2xx response from the service.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsStatus reports whether err is an *Error with the given status code.
func IsStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}

// Request describes one call.
type Request struct {
	Method string
	Path   string
	// Handle is sent as the user-alias-name header when not empty.
	Handle string
	Query  url.Values
	Body   any
}

// Options configures a Requester.
type Options struct {
	HTTPClient *http.Client
	// Timeout bounds every request. Zero means no timeout beyond ctx.
	Timeout time.Duration
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
	Logger    zerolog.Logger
}

// Requester sends requests relative to a base URL.
type Requester struct {
	baseURL *url.URL
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a Requester for baseURL.
func New(baseURL string, opts Options) (*Requester, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must use http or https scheme, got %q", u.Scheme)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	r := &Requester{
		baseURL: u,
		client:  client,
		timeout: opts.Timeout,
		log:     opts.Logger.With().Str("component", "rest").Logger(),
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return r, nil
}

// BaseURL returns the service base address.
func (r *Requester) BaseURL() *url.URL {
	u := *r.baseURL
	return &u
}

// Client returns the underlying HTTP client.
func (r *Requester) Client() *http.Client {
	return r.client
}

// Do sends req and decodes a successful JSON response into out, which may be
// nil to discard the body. Non-2xx responses return *Error.
func (r *Requester) Do(ctx context.Context, req Request, out any) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	httpReq, err := r.newRequest(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	r.log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("handle", req.Handle).
		Str("request_id", httpReq.Header.Get(HeaderRequestID)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return r.handleErrorResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (r *Requester) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := r.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Handle != "" {
		httpReq.Header.Set(HeaderAlias, req.Handle)
	}
	httpReq.Header.Set(HeaderRequestID, uuid.NewString())

	return httpReq, nil
}

// handleErrorResponse extracts the service message from a non-2xx response.
func (r *Requester) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return &Error{Status: resp.StatusCode, Message: payload.Message}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}

// Path joins segments into a request path, escaping each one.
func Path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}
