package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	pkgAuth "github.com/angelmondragon/blendpoint-backend/pkg/auth"
	"github.com/angelmondragon/blendpoint-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

// CartSessionHeader carries the opaque guest token that scopes anonymous carts.
const CartSessionHeader = "X-Cart-Session"

const maxCartSessionLen = 256

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			ctx, err := authenticate(r.Context(), cfg, token, logg)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth lets guests through. A bearer token, when sent, must still be
// valid; guests identify their cart with the X-Cart-Session header instead.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token := bearerToken(r); token != "" {
				authed, err := authenticate(ctx, cfg, token, logg)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				ctx = authed
			}
			if session := strings.TrimSpace(r.Header.Get(CartSessionHeader)); session != "" {
				if len(session) > maxCartSessionLen {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart session token too long"))
					return
				}
				ctx = WithCartSession(ctx, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

func authenticate(ctx context.Context, cfg config.JWTConfig, token string, logg *logger.Logger) (context.Context, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return ctx, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	ctx = WithUserID(ctx, claims.UserID.String())
	ctx = WithRole(ctx, string(claims.Role))
	return logg.WithActor(ctx, claims.UserID.String(), string(claims.Role)), nil
}
