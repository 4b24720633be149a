package redis

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	keyNamespace      = "bp"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
)

// IdempotencyKey digests scope and the client supplied id, so keys stay a
// fixed length and never carry customer or session identifiers in clear.
func (c *Client) IdempotencyKey(scope, id string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(scope) + "\x00" + strings.TrimSpace(id)))
	return buildKey(idempotencyPrefix, hex.EncodeToString(sum[:16]))
}

// RateLimitKey namespaces a fixed window counter, e.g. "redeem:customer:<id>".
func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

func (c *Client) LockKey(name string) string {
	return buildKey(lockPrefix, name)
}

func buildKey(parts ...string) string {
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}
