package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/blendpoint-backend/pkg/redis"
)

const defaultIdempotencyTTL = 24 * time.Hour

// idempotentRoutes lists the cart mutations that replay a stored response
// when the client resends the same Idempotency-Key. Redemption, receipt
// review and checkout are never replayed.
var idempotentRoutes = map[string]map[string]bool{
	http.MethodPost: {
		"/api/v1/carts":                    true,
		"/api/v1/carts/{cartId}/items":     true,
		"/api/v1/carts/{cartId}/promotion": true,
		"/api/v1/carts/{cartId}/abandon":   true,
	},
	http.MethodPatch: {
		"/api/v1/carts/{cartId}/items/{itemId}": true,
	},
	http.MethodDelete: {
		"/api/v1/carts/{cartId}/items/{itemId}": true,
		"/api/v1/carts/{cartId}/promotion":      true,
	},
}

const (
	recordPending = "pending"
	recordDone    = "done"

	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = time.Minute
)

type idempotencyRecord struct {
	State       string            `json:"state"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays cart mutation responses keyed by the optional
// Idempotency-Key header. The key is reserved before the handler runs, so a
// concurrent duplicate gets 409 instead of mutating the cart twice.
// Requests without the header run normally.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if store == nil || idempotencyKey == "" || !idempotentRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := logg.WithField(r.Context(), "idempotency_key", idempotencyKey)
			requestHash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), idempotencyKey)

			reserved, existing, err := reserve(ctx, store, key, requestHash)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store"))
				return
			}
			if !reserved {
				switch {
				case existing.RequestHash != requestHash:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case existing.State == recordPending:
					w.Header().Set("Retry-After", "1")
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
				default:
					logg.Info(ctx, "idempotency.replayed")
					writeStoredResponse(w, existing)
				}
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			finalize(context.WithoutCancel(ctx), store, logg, key, ttl, requestHash, rec)
		})
	}
}

// reserve claims key with a pending record. When the key is taken it
// returns the stored record instead. A record that expires between the two
// calls is claimed on a second pass.
func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, requestHash string) (bool, *idempotencyRecord, error) {
	pending, err := json.Marshal(idempotencyRecord{State: recordPending, RequestHash: requestHash})
	if err != nil {
		return false, nil, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := store.SetNX(ctx, key, string(pending), pendingTTL)
		if err != nil {
			return false, nil, err
		}
		if ok {
			return true, nil, nil
		}
		stored, err := store.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, nil, err
		}
		record, err := decodeRecord(stored)
		if err != nil {
			return false, nil, err
		}
		return false, record, nil
	}
	return false, nil, errors.New("idempotency key churned during reservation")
}

// finalize stores the captured response, or frees the key on 5xx so the
// client can retry.
func finalize(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, key string, ttl time.Duration, requestHash string, rec *responseCapture) {
	if rec.status >= http.StatusInternalServerError {
		if err := store.Del(ctx, key); err != nil {
			logError(ctx, logg, "idempotency.release_failed", err)
		}
		return
	}

	record := idempotencyRecord{
		State:       recordDone,
		Status:      defaultStatus(rec.status),
		Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
		RequestHash: requestHash,
	}
	if ct := rec.Header().Get("Content-Type"); ct != "" {
		record.Headers = map[string]string{"Content-Type": ct}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		logError(ctx, logg, "idempotency.marshal_failed", err)
		return
	}
	if err := store.Set(ctx, key, string(payload), ttl); err != nil {
		logError(ctx, logg, "idempotency.persist_failed", err)
	}
}

func buildScope(r *http.Request) string {
	owner := UserIDFromContext(r.Context())
	if owner == "" {
		owner = "guest:" + hashBody([]byte(CartSessionFromContext(r.Context())))
	}
	return strings.Join([]string{owner, r.Method, r.URL.Path}, "|")
}

func decodeRecord(payload string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record == nil {
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Idempotency-Replayed", "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

// idempotentRouter holds the replayable routes as chi patterns. The
// middleware wraps the mounted /carts subrouter, where RoutePattern is still
// "/api/v1/carts/*", so the request path is matched here with chi's own tree.
var idempotentRouter = func() *chi.Mux {
	mux := chi.NewRouter()
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for method, patterns := range idempotentRoutes {
		for pattern := range patterns {
			mux.Method(method, pattern, noop)
		}
	}
	return mux
}()

func idempotentRoute(method, path string) bool {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return idempotentRouter.Match(chi.NewRouteContext(), method, path)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
