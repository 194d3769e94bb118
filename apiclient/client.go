package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/randalmurphal/autodev/apiclient"

// DefaultBaseURL is used when no API URL is configured.
const DefaultBaseURL = "http://localhost:8000"

// Header names set on every JSON request.
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
	contentTypeJSON   = "application/json"
)

// Client executes requests against the backend REST API.
// It holds no mutable state between calls and is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	logger    *slog.Logger
	policy    RetryPolicy
	sleep     Sleeper
	metrics   *Metrics
	tracer    trace.Tracer
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// New creates a Client for the given base URL.
// An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}

	c := &Client{
		baseURL:   u,
		http:      &http.Client{},
		logger:    slog.Default(),
		policy:    DefaultRetryPolicy(),
		sleep:     sleepContext,
		tracer:    otel.Tracer(tracerName),
		userAgent: "autodev-go",
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.policy.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}
	return c, nil
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryPolicy sets the default policy. Zero MaxAttempts, Timeout and
// Multiplier take defaults; a zero BaseDelay is kept.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p.withDefaults() }
}

// WithSleeper replaces the backoff wait. Mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer sets the OpenTelemetry tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Policy returns the client's default retry policy.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Request describes one logical call. It is not modified by the client.
type Request struct {
	// Path is appended to the base URL, e.g. "/api/issues/".
	Path string

	// Method defaults to GET.
	Method string

	// Query is merged into the URL query string.
	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	// Headers are applied after the defaults; last write wins.
	Headers map[string]string

	// Policy overrides the client policy for this call.
	Policy *RetryPolicy
}

// Do executes req and decodes a successful response into T.
// Every failure is returned as *Error.
func Do[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	err := c.execute(ctx, req, func(status int, data []byte) error {
		if status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return json.Unmarshal(data, &out)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

type decodeFunc func(status int, data []byte) error

func (c *Client) execute(ctx context.Context, req Request, decode decodeFunc) error {
	policy := c.policy
	if req.Policy != nil {
		policy = req.Policy.withDefaults()
	}
	if err := policy.Validate(); err != nil {
		return wrapError("invalid retry policy: "+err.Error(), CodeValidation, 0, err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return wrapError("invalid request path", CodeUnknown, 0, err)
	}

	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return wrapError("encode request body", CodeUnknown, 0, err)
		}
	}

	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "api "+method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", req.Path),
			attribute.String("request.id", requestID),
		))
	defer span.End()

	start := time.Now()
	finish := func(apiErr *Error) error {
		c.metrics.observeCall(method, time.Since(start), apiErr)
		if apiErr == nil {
			span.SetStatus(codes.Ok, "")
			return nil
		}
		apiErr.RequestID = requestID
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, string(apiErr.Code))
		return apiErr
	}

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		apiErr, retry := c.attempt(ctx, method, target, payload, req.Headers, requestID, policy.Timeout, decode)
		if apiErr == nil {
			c.metrics.observeAttempt(method, "success")
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return finish(nil)
		}
		c.metrics.observeAttempt(method, string(apiErr.Code))

		if !retry || attempt == policy.MaxAttempts-1 {
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return finish(apiErr)
		}

		delay := policy.Delay(attempt)
		c.logger.Warn("retrying API request",
			slog.String("method", method),
			slog.String("path", req.Path),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.String("code", string(apiErr.Code)),
			slog.Int("status", apiErr.Status),
			slog.Duration("backoff", delay),
			slog.String("request_id", requestID))
		c.metrics.observeRetry(method, apiErr.Code)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt+1),
			attribute.String("error.code", string(apiErr.Code)),
			attribute.Int64("backoff_ms", delay.Milliseconds()),
		))

		if err := c.sleep(ctx, delay); err != nil {
			return finish(canceled(err))
		}
	}

	return finish(NewError("request failed without a result", CodeUnknown, 0, nil))
}

// attempt performs one HTTP exchange. The bool reports whether another
// attempt may follow.
func (c *Client) attempt(
	ctx context.Context,
	method, target string,
	payload []byte,
	headers map[string]string,
	requestID string,
	timeout time.Duration,
	decode decodeFunc,
) (*Error, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, body)
	if err != nil {
		return wrapError("build request", CodeUnknown, 0, err), false
	}
	httpReq.Header.Set(HeaderContentType, contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set(HeaderRequestID, requestID)
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classify(ctx, attemptCtx, err), ctx.Err() == nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(ctx, attemptCtx, err), ctx.Err() == nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := decode(resp.StatusCode, data); err != nil {
			return wrapError("decode response body", CodeUnknown, resp.StatusCode, err), true
		}
		return nil, false
	}

	var envelope ErrorResponse
	if err := json.Unmarshal(data, &envelope); err != nil || !envelope.Error {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, statusText(resp))
		return wrapError(msg, CodeUnknown, resp.StatusCode, err), false
	}
	apiErr := fromResponse(envelope, resp.StatusCode)
	return apiErr, apiErr.Retryable()
}

// classify maps a failure that happened before a full response was read.
func classify(parent, attemptCtx context.Context, err error) *Error {
	if parent.Err() != nil {
		return canceled(parent.Err())
	}
	var netErr net.Error
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return wrapError("request timed out", CodeTimeout, StatusTimeout, err)
	}
	if isNetworkError(err) {
		return wrapError("network error: "+err.Error(), CodeNetwork, StatusNetwork, err)
	}
	return wrapError(err.Error(), CodeUnknown, 0, err)
}

// canceled reports a caller-side cancellation; never retried.
func canceled(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError("request deadline exceeded", CodeTimeout, StatusTimeout, err)
	}
	return wrapError("request canceled", CodeUnknown, 0, err)
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	var opErr *net.OpError
	return errors.As(err, &urlErr) ||
		errors.As(err, &netErr) ||
		errors.As(err, &opErr) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
}

// resolve joins path onto the base URL without cleaning trailing slashes,
// which the backend's list routes require.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(strings.TrimRight(c.baseURL.String(), "/") + path)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Raw sends a single request without retries or structured decoding.
// The caller owns the response body. Transport failures are classified
// as in Do; HTTP status handling is left to the caller.
func (c *Client) Raw(ctx context.Context, method, path string, query url.Values, body io.Reader, header http.Header) (*http.Response, error) {
	target, err := c.resolve(path, query)
	if err != nil {
		return nil, wrapError("invalid request path", CodeUnknown, 0, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, wrapError("build request", CodeUnknown, 0, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(ctx, ctx, err)
	}
	return resp, nil
}
