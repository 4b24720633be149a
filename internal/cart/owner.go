package cart

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
)

// Owner identifies who may touch a cart: a signed-in customer or a guest
// holding a session token. Only the token digest is persisted.
type Owner struct {
	CustomerID   *uuid.UUID
	SessionToken string
}

func (o Owner) validate() error {
	if o.CustomerID == nil && strings.TrimSpace(o.SessionToken) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer or cart session token is required")
	}
	if o.CustomerID != nil && *o.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is invalid")
	}
	return nil
}

func (o Owner) digest() *string {
	if o.CustomerID != nil {
		return nil
	}
	d := SessionDigest(o.SessionToken)
	return &d
}

// scope narrows a cart query to rows the owner holds.
func (o Owner) scope(query *gorm.DB) *gorm.DB {
	if o.CustomerID != nil {
		return query.Where("customer_id = ?", *o.CustomerID)
	}
	return query.Where("customer_id IS NULL AND session_token_digest = ?", SessionDigest(o.SessionToken))
}

// SessionDigest hashes a guest session token for storage and lookup.
func SessionDigest(token string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}
