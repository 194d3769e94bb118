package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func writeEnvelope(w http.ResponseWriter, status int, code Code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: true, ErrorCode: code, Message: msg})
}

func newTestClient(t *testing.T, url string, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleeper(rec.sleep)}, opts...)
	c, err := New(url, opts...)
	require.NoError(t, err)
	return c, rec
}

func TestDo_Success(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get(HeaderRequestID))
		_, _ = w.Write([]byte(`{"id":"p1","name":"alpha"}`))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL)
	got, err := Do[item](context.Background(), c, Request{Path: "/api/projects/p1"})

	require.NoError(t, err)
	assert.Equal(t, item{ID: "p1", Name: "alpha"}, got)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, rec.recorded())
}

func TestDo_CallerHeadersWin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/merge-patch+json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := Do[map[string]any](context.Background(), c, Request{
		Path: "/x",
		Headers: map[string]string{
			"Content-Type": "application/merge-patch+json",
			"X-Extra":      "yes",
		},
	})
	require.NoError(t, err)
}

func TestDo_PostBodyAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/issues/", r.URL.Path)
		assert.Equal(t, "default", r.URL.Query().Get("project_id"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"id":"i1","name":"bug"}`, string(body))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL+"/")
	got, err := Do[item](context.Background(), c, Request{
		Path:   "/api/issues/",
		Method: http.MethodPost,
		Query:  map[string][]string{"project_id": {"default"}},
		Body:   item{ID: "i1", Name: "bug"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bug", got.Name)
}

func TestDo_RetriesRetryableStatus(t *testing.T) {
	tests := []struct {
		status int
		code   Code
	}{
		{http.StatusInternalServerError, CodeInternal},
		{http.StatusBadGateway, CodeExternalService},
		{http.StatusServiceUnavailable, CodeConfiguration},
		{http.StatusTooManyRequests, CodeRateLimit},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				writeEnvelope(w, tt.status, tt.code, "boom")
			}))
			defer srv.Close()

			c, rec := newTestClient(t, srv.URL)
			_, err := Do[item](context.Background(), c, Request{Path: "/x"})

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.True(t, apiErr.Retryable())
			assert.Equal(t, int32(3), hits.Load())
			assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
		})
	}
}

func TestDo_NonRetryableClientErrors(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				writeEnvelope(w, status, CodeValidation, "nope")
			}))
			defer srv.Close()

			c, rec := newTestClient(t, srv.URL)
			_, err := Do[item](context.Background(), c, Request{Path: "/x"})

			require.Error(t, err)
			assert.False(t, IsRetryable(err))
			assert.Equal(t, int32(1), hits.Load())
			assert.Empty(t, rec.recorded())
		})
	}
}

func TestDo_EventualSuccessAfterUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			writeEnvelope(w, http.StatusServiceUnavailable, CodeExternalService, "down")
			return
		}
		_, _ = w.Write([]byte(`{"id":"ok","name":"done"}`))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second}))
	got, err := Do[item](context.Background(), c, Request{Path: "/x"})

	require.NoError(t, err)
	assert.Equal(t, "ok", got.ID)
	assert.Equal(t, int32(4), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.recorded())
}

func TestDo_NotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":true,"error_code":"NOT_FOUND","message":"Issueが見つかりません: i9","details":{"resource":"Issue","id":"i9"}}`))
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL)
	_, err := Do[item](context.Background(), c, Request{Path: "/api/issues/i9"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeNotFound, apiErr.Code)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "i9", apiErr.Details["id"])
	assert.NotEmpty(t, apiErr.RequestID)
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, &Error{Code: CodeNotFound}))
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, rec.recorded())
}

func TestDo_MalformedErrorBodyNeverRetried(t *testing.T) {
	bodies := map[string]string{
		"not json":     "<html>oops</html>",
		"missing flag": `{"error_code":"INTERNAL_ERROR","message":"x"}`,
		"flag false":   `{"error":false,"error_code":"INTERNAL_ERROR"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			c, rec := newTestClient(t, srv.URL)
			_, err := Do[item](context.Background(), c, Request{Path: "/x"})

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, CodeUnknown, apiErr.Code)
			assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
			assert.Contains(t, apiErr.Message, "500")
			assert.Equal(t, int32(1), hits.Load())
			assert.Empty(t, rec.recorded())
		})
	}
}

func TestDo_Timeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{
		MaxAttempts: 2,
		Timeout:     50 * time.Millisecond,
		BaseDelay:   time.Second,
	}))
	_, err := Do[item](context.Background(), c, Request{Path: "/slow"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeTimeout, apiErr.Code)
	assert.Equal(t, http.StatusRequestTimeout, apiErr.Status)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []time.Duration{time.Second}, rec.recorded())
}

func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, rec := newTestClient(t, url)
	_, err := Do[item](context.Background(), c, Request{Path: "/x"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeNetwork, apiErr.Code)
	assert.Equal(t, 0, apiErr.Status)
	assert.Len(t, rec.recorded(), 2)
}

func TestDo_DecodeFailureRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"id":`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := Do[item](context.Background(), c, Request{Path: "/x"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeUnknown, apiErr.Code)
	assert.Equal(t, http.StatusOK, apiErr.Status)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDo_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	got, err := Do[*item](context.Background(), c, Request{Path: "/x", Method: http.MethodDelete})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDo_Idempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"a","name":"one"},{"id":"b","name":"two"}]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	first, err := Do[[]item](context.Background(), c, Request{Path: "/list"})
	require.NoError(t, err)
	second, err := Do[[]item](context.Background(), c, Request{Path: "/list"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDo_CallerCancelStopsRetrying(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusBadGateway, CodeExternalService, "down")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := New(srv.URL, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	require.NoError(t, err)

	_, err = Do[item](ctx, c, Request{Path: "/x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CodeUnknown, CodeOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_PerRequestPolicy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusInternalServerError, CodeAIGeneration, "model failed")
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := Do[item](context.Background(), c, Request{Path: "/x", Policy: &RetryPolicy{MaxAttempts: 1}})

	assert.True(t, IsCode(err, CodeAIGeneration))
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_ZeroBaseDelayKept(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusServiceUnavailable, CodeExternalService, "down")
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxAttempts: 2}))
	_, err := Do[item](context.Background(), c, Request{Path: "/x"})

	assert.True(t, IsCode(err, CodeExternalService))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []time.Duration{0}, rec.recorded())
}

func TestDo_InvalidPolicyRejected(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
	}{
		{"negative attempts", RetryPolicy{MaxAttempts: -1}},
		{"negative timeout", RetryPolicy{MaxAttempts: 1, Timeout: -time.Second}},
		{"negative delay", RetryPolicy{MaxAttempts: 2, BaseDelay: -time.Second}},
		{"shrinking multiplier", RetryPolicy{MaxAttempts: 2, Multiplier: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv.URL)
			_, err := Do[item](context.Background(), c, Request{Path: "/x", Policy: &tt.policy})

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, CodeValidation, apiErr.Code)
			assert.Contains(t, apiErr.Message, "invalid retry policy")
			assert.False(t, apiErr.Retryable())
			assert.Zero(t, hits.Load())
		})
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		opts    []Option
		wantErr bool
	}{
		{"default", "", nil, false},
		{"https", "https://api.example.com", nil, false},
		{"bad scheme", "ftp://example.com", nil, true},
		{"no host", "http://", nil, true},
		{"bad policy", "http://localhost", []Option{WithRetryPolicy(RetryPolicy{Multiplier: 0.5})}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.url, tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestNew_DefaultBaseURL(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultRetryPolicy(), c.Policy())
}

func TestRaw_NoRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	resp, err := c.Raw(context.Background(), http.MethodPost, "/upload", nil,
		strings.NewReader("data"), http.Header{"Content-Type": {"text/plain"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}
