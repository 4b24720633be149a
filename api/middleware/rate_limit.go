package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/redis"
)

// WindowLimiter counts requests in fixed windows.
type WindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Window, error)
}

// RateLimitPolicy throttles one route per customer and per client IP.
type RateLimitPolicy struct {
	Name          string
	Window        time.Duration
	CustomerLimit int
	IPLimit       int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.CustomerLimit > 0 || p.IPLimit > 0)
}

func (p RateLimitPolicy) name() string {
	if n := strings.ToLower(strings.TrimSpace(p.Name)); n != "" {
		return n
	}
	return "default"
}

// RateLimit enforces the policy with fixed windows in Redis. It must run
// after Auth so the customer id is known.
func RateLimit(policy RateLimitPolicy, store WindowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.IPLimit > 0 {
				if ip := clientIP(r); ip != "" {
					if !checkWindow(ctx, w, store, policy, logg, "ip", ip, policy.IPLimit) {
						return
					}
				}
			}
			if policy.CustomerLimit > 0 {
				if customer := UserIDFromContext(ctx); customer != "" {
					if !checkWindow(ctx, w, store, policy, logg, "customer", customer, policy.CustomerLimit) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func checkWindow(ctx context.Context, w http.ResponseWriter, store WindowLimiter, policy RateLimitPolicy, logg *logger.Logger, scope, subject string, limit int) bool {
	key := policy.name() + ":" + scope + ":" + subject
	window, err := store.FixedWindowAllow(ctx, key, int64(limit), policy.Window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if window.Allowed {
		return true
	}
	wait := window.RetryAfter
	if wait <= 0 || wait > policy.Window {
		wait = policy.Window
	}
	logg.Warn(logg.WithFields(ctx, map[string]any{
		"policy":         policy.name(),
		"scope":          scope,
		"attempts":       window.Count,
		"limit":          limit,
		"retry_after_ms": wait.Milliseconds(),
	}), "rate_limit.blocked")
	w.Header().Set("Retry-After", retryAfter(wait))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
	return false
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(wait time.Duration) string {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
