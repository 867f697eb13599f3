package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// =========================================================================
// LOGGER
// =========================================================================

func TestLogger_WritesOneLinePerRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/users", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/api/users", entry["path"])
	assert.EqualValues(t, 201, entry["status"])
	assert.EqualValues(t, 11, entry["bytes"])
}

func TestLogger_DefaultStatusIs200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hi"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Contains(t, buf.String(), `"status":200`)
}

// =========================================================================
// METRICS
// =========================================================================

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	requests []recordedRequest
}

func (f *fakeRecorder) RecordRequest(method, route string, status int, _ time.Duration) {
	f.requests = append(f.requests, recordedRequest{method, route, status})
}
func (f *fakeRecorder) RecordUserWrite(string) {}
func (f *fakeRecorder) RecordAggregation(int) {}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}

	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Get("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/abc123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, rec.requests, 2)
	assert.Equal(t, recordedRequest{"GET", "/api/users/{id}", 404}, rec.requests[0])
	assert.Equal(t, "GET", rec.requests[1].method)
	assert.Equal(t, 404, rec.requests[1].status)
	assert.NotContains(t, rec.requests[1].route, "nowhere")
}

// =========================================================================
// RATE LIMITER
// =========================================================================

func newLimitedHandler(t *testing.T, cfg RateLimiterConfig) (http.Handler, *RateLimiter) {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	return h, rl
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	h, _ := newLimitedHandler(t, RateLimiterConfig{Rate: 1, Burst: 3, CleanupInterval: time.Minute})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, requestFrom("10.0.0.1:5000"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:5001"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"success":false,"error":"Too many requests"}`, w.Body.String())
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	h, rl := newLimitedHandler(t, RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.2"))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, rl.ClientCount())
}

func TestRateLimiter_CleanupForgetsIdleClients(t *testing.T) {
	h, rl := newLimitedHandler(t, RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})

	h.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:5000"))
	require.Equal(t, 1, rl.ClientCount())

	rl.cleanup(time.Now())
	assert.Equal(t, 1, rl.ClientCount(), "recent client must be kept")

	rl.cleanup(time.Now().Add(3 * time.Minute))
	assert.Equal(t, 0, rl.ClientCount())
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(120)

	assert.InDelta(t, 2.0, float64(cfg.Rate), 1e-9)
	assert.Equal(t, 120, cfg.Burst)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(PerMinute(60))
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

// failingWriter accepts headers but fails every body write.
type failingWriter struct {
	*httptest.ResponseRecorder
}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestWriteRateLimitResponse_LogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	w := failingWriter{httptest.NewRecorder()}
	writeRateLimitResponse(w, rate.Limit(1))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "failed to encode JSON response", entry["msg"])
	assert.Equal(t, "connection reset by peer", entry["error"])
}
