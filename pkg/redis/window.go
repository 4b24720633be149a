package redis

import (
	"context"
	"fmt"
	"time"
)

// fixedWindowScript increments KEYS[1], starts the window (ARGV[1] ms) on the
// first hit and returns {count, remaining_ms}. A key that lost its TTL is
// re-armed so it cannot block forever.
const fixedWindowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then redis.call("PEXPIRE", KEYS[1], ARGV[1]) end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}`

// Window is the state of one fixed rate-limit window after a hit.
type Window struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration
}

// FixedWindowAllow records a hit against scope and reports whether it fits in
// limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (Window, error) {
	if err := c.ready(); err != nil {
		return Window{}, err
	}
	if window <= 0 {
		return Window{}, fmt.Errorf("window must be positive, got %s", window)
	}
	vals, err := c.store.Eval(ctx, fixedWindowScript, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("rate window %s: %w", scope, err)
	}
	if len(vals) != 2 {
		return Window{}, fmt.Errorf("rate window %s: unexpected reply %v", scope, vals)
	}

	count := vals[0]
	w := Window{Allowed: count <= limit, Count: count, Limit: limit}
	if !w.Allowed {
		w.RetryAfter = time.Duration(vals[1]) * time.Millisecond
	}
	return w, nil
}
