package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
)

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(OwnerFromContext(r.Context())))
	})
}

func TestOwner(t *testing.T) {
	h := Owner(nil)(ownerEcho())

	t.Run("header copied to context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(OwnerHeader, " lab-42 ")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "lab-42", rec.Body.String())
	})

	t.Run("missing header is allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(OwnerHeader, "bad owner/../")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var body errorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "COMMON_010", body.Code)
		require.Len(t, body.Fields, 1)
		assert.Equal(t, OwnerHeader, body.Fields[0].Field)
	})
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := logging.NewLoggerFromCore(core)

	r := chi.NewRouter()
	r.Use(RequestLogging(logger, nil, DefaultLoggingConfig()))
	r.Get("/api/v1/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for _, path := range []string{"/api/v1/alerts/a1", "/healthz", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(OwnerHeader, "lab-42")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "/api/v1/alerts/a1", entries[0].ContextMap()["path"])
	assert.Equal(t, "lab-42", entries[0].ContextMap()["owner_id"])
	assert.EqualValues(t, 404, entries[0].ContextMap()["status"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}

func TestRoutePattern(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Get("/api/v1/analyses/{id}", func(w http.ResponseWriter, req *http.Request) {
		pattern = routePattern(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/analyses/123", nil))
	assert.Equal(t, "/api/v1/analyses/{id}", pattern)

	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(1, 2, 0)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, info := l.Allow("owner:a")
	assert.True(t, ok)
	assert.Equal(t, 1, info.Remaining)
	ok, _ = l.Allow("owner:a")
	assert.True(t, ok)
	ok, info = l.Allow("owner:a")
	assert.False(t, ok)
	assert.Zero(t, info.Remaining)

	// Other keys have their own budget.
	ok, _ = l.Allow("owner:b")
	assert.True(t, ok)

	now = now.Add(1500 * time.Millisecond)
	ok, _ = l.Allow("owner:a")
	assert.True(t, ok)
	assert.Equal(t, 2, l.BucketCount())
}

func TestTokenBucketLimiter_Cleanup(t *testing.T) {
	l := NewTokenBucketLimiter(10, 5, 0)
	l.cleanupInterval = time.Minute
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("owner:a")
	now = now.Add(2 * time.Minute)
	l.cleanup()
	assert.Zero(t, l.BucketCount())
	l.Stop()
	l.Stop()
}

func TestRateLimit(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1, 0)
	h := Owner(nil)(RateLimit(l)(ownerEcho()))

	call := func(owner string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(OwnerHeader, owner)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("a").Code)
	rec := call("a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, http.StatusOK, call("b").Code)
}
