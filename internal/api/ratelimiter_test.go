package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/layerconf/internal/resolver"
	"github.com/eugenenazirov/layerconf/internal/storage"
)

type staticLimiter struct {
	allow bool
	wait  time.Duration
}

func (s *staticLimiter) Admit() (bool, time.Duration) {
	return s.allow, s.wait
}

// limitedRouter returns a router with the given options and a second,
// unlimited router over the same handler for seeding rule sets.
func limitedRouter(t *testing.T, opts ...RouterOption) (limited, seed http.Handler) {
	t.Helper()

	handler := NewHandler(storage.NewMemoryStorage(), resolver.Env{"NODE_ENV": "production"})
	logger := zaptest.NewLogger(t)
	limited = NewRouter(handler, logger, append([]RouterOption{WithLogging(false)}, opts...)...)
	seed = NewRouter(handler, logger, WithLogging(false), WithRateLimit(0, 0))
	return limited, seed
}

func TestResolveRateLimited(t *testing.T) {
	router, seed := limitedRouter(t, WithRateLimit(1, 1))
	if rec := putRuleSet(t, seed, "eslint", eslintDocument); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	first := resolveRuleSet(t, router, "eslint", map[string]any{"path": "src/app.ts"})
	if first.Code != http.StatusOK {
		t.Fatalf("expected first resolve to succeed, got %d", first.Code)
	}

	second := resolveRuleSet(t, router, "eslint", map[string]any{"path": "src/app.ts"})
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if got := second.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
	if second.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected throttled response to carry a request id")
	}
	if ct := second.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error, got content type %q", ct)
	}

	var body errorResponse
	if err := json.NewDecoder(second.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error != "Too many requests" {
		t.Fatalf("unexpected error %q", body.Error)
	}
	if !strings.Contains(body.Details, "/api/rulesets/eslint/resolve") {
		t.Fatalf("expected details to name the throttled path, got %q", body.Details)
	}
	if body.Suggestion == "" {
		t.Fatalf("expected a retry suggestion")
	}
}

func TestWithRateLimitZeroDisablesLimiting(t *testing.T) {
	router, seed := limitedRouter(t, WithRateLimiter(&staticLimiter{allow: false}), WithRateLimit(0, 0))
	if rec := putRuleSet(t, seed, "eslint", eslintDocument); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	for i := 0; i < 5; i++ {
		rec := resolveRuleSet(t, router, "eslint", map[string]any{"path": "src/app.ts"})
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected limiter to be disabled, got %d", i, rec.Code)
		}
	}
}

func TestWithRateLimiterAppliesToEveryRoute(t *testing.T) {
	router, _ := limitedRouter(t, WithRateLimiter(&staticLimiter{allow: false, wait: 2500 * time.Millisecond}))

	for _, target := range []string{"/api/health", "/api/rulesets", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("%s: expected status 429, got %d", target, rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "3" {
			t.Fatalf("%s: expected Retry-After 3, got %q", target, got)
		}
	}
}

func TestRateLimitMiddlewarePassesWhenAdmitted(t *testing.T) {
	var called bool
	middleware := rateLimitMiddleware(&staticLimiter{allow: true}, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	middleware.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if !called {
		t.Fatalf("expected handler to execute when admitted")
	}
	if rec.Header().Get("Retry-After") != "" {
		t.Fatalf("expected no Retry-After on admitted requests")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))
	bucket := newTokenBucket(2, 1)
	bucket.now = clock.Now

	if ok, _ := bucket.Admit(); !ok {
		t.Fatalf("expected first request to be admitted")
	}

	ok, wait := bucket.Admit()
	if ok {
		t.Fatalf("expected empty bucket to reject")
	}
	if wait <= 0 || wait > 500*time.Millisecond {
		t.Fatalf("expected wait of at most 500ms, got %s", wait)
	}

	// A rejection must not consume the token it reported waiting for.
	clock.Advance(wait)
	if ok, _ := bucket.Admit(); !ok {
		t.Fatalf("expected bucket to refill after %s", wait)
	}
}

func TestNewTokenBucketDefaults(t *testing.T) {
	bucket := newTokenBucket(0, 0)
	if bucket.limiter.Limit() != 1 || bucket.limiter.Burst() != 1 {
		t.Fatalf("expected 1 rps with burst 1, got %v/%d", bucket.limiter.Limit(), bucket.limiter.Burst())
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{wait: 0, want: "1"},
		{wait: 10 * time.Millisecond, want: "1"},
		{wait: time.Second, want: "1"},
		{wait: 1001 * time.Millisecond, want: "2"},
		{wait: 30 * time.Second, want: "30"},
	}

	for _, tc := range tests {
		if got := retryAfterSeconds(tc.wait); got != tc.want {
			t.Fatalf("retryAfterSeconds(%s) = %s, want %s", tc.wait, got, tc.want)
		}
	}
}
