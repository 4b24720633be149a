package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/blendpoint-backend/pkg/redis"
)

type fakeLimiter struct {
	counts map[string]int64
	retry  time.Duration
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (redis.Window, error) {
	if f.err != nil {
		return redis.Window{}, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	w := redis.Window{Allowed: f.counts[scope] <= limit, Count: f.counts[scope], Limit: limit}
	if !w.Allowed {
		w.RetryAfter = f.retry
	}
	return w, nil
}

func TestRateLimitBlocksCustomerAfterLimit(t *testing.T) {
	limiter := &fakeLimiter{}
	policy := RateLimitPolicy{Name: "redeem", Window: time.Minute, CustomerLimit: 2}
	handler := RateLimit(policy, limiter, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/redeem", nil)
		req = req.WithContext(WithUserID(req.Context(), "customer-1"))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if _, ok := limiter.counts["redeem:customer:customer-1"]; !ok {
		t.Fatalf("expected customer scoped key, got %v", limiter.counts)
	}
}

func TestRateLimitCountsPerIP(t *testing.T) {
	limiter := &fakeLimiter{}
	policy := RateLimitPolicy{Name: "redeem", Window: time.Minute, IPLimit: 1}
	handler := RateLimit(policy, limiter, nil)(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/", nil)
	first.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), first)

	other := httptest.NewRequest(http.MethodPost, "/", nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.9")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, other)
	if resp.Code != http.StatusOK {
		t.Fatalf("different IP should pass, got %d", resp.Code)
	}

	again := httptest.NewRequest(http.MethodPost, "/", nil)
	again.Header.Set("X-Forwarded-For", "10.0.0.1")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, again)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", resp.Header().Get("Retry-After"))
	}
}

func TestRateLimitRetryAfterUsesWindowRemainder(t *testing.T) {
	limiter := &fakeLimiter{retry: 12300 * time.Millisecond}
	policy := RateLimitPolicy{Name: "redeem", Window: time.Minute, CustomerLimit: 1}
	handler := RateLimit(policy, limiter, nil)(okHandler())

	var resp *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "customer-1"))
		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
	}
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if got := resp.Header().Get("Retry-After"); got != "13" {
		t.Fatalf("expected Retry-After 13, got %q", got)
	}
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	policy := RateLimitPolicy{Window: time.Minute, IPLimit: 5}
	resp := httptest.NewRecorder()
	RateLimit(policy, limiter, nil)(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	resp := httptest.NewRecorder()
	RateLimit(RateLimitPolicy{}, &fakeLimiter{err: errors.New("unused")}, nil)(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
