package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/blendpoint-backend/api/middleware"
	"github.com/angelmondragon/blendpoint-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
)

// cartOwner builds the cart owner from the authenticated customer or the
// guest session header.
func cartOwner(r *http.Request) cart.Owner {
	return cart.Owner{
		CustomerID:   middleware.CustomerIDFromContext(r.Context()),
		SessionToken: middleware.CartSessionFromContext(r.Context()),
	}
}

// requireUser returns the authenticated user id. Operators and customers are
// both users; the role check happens in middleware.
func requireUser(r *http.Request) (uuid.UUID, error) {
	id := middleware.CustomerIDFromContext(r.Context())
	if id == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return *id, nil
}
