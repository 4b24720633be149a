package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
)

// AccessTokenPayload is what the identity provider knows about the caller
// when a token is minted. Customers own wallets and carts; operators reach
// the admin routes.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// check runs after signature and time validation. The subject must name
// the same user as user_id so a token cannot act for someone else.
func (c *AccessTokenClaims) check() error {
	if c.UserID == uuid.Nil {
		return errors.New("token missing user_id")
	}
	if c.Subject != c.UserID.String() {
		return fmt.Errorf("token subject %q does not match user_id", c.Subject)
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid role %q", c.Role)
	}
	return nil
}
