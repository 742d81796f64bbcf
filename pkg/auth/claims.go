package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
)

// Identity is the caller capability every quote operation receives.
type Identity struct {
	ActorID string
	Role    enums.ActorRole
}

// IsStaff reports whether the caller works the back office.
func (i Identity) IsStaff() bool {
	return i.Role.IsStaff()
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	ActorID string
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims is the JWT body. The actor id travels in the registered
// subject claim.
type AccessTokenClaims struct {
	Role enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
