package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
)

// OperatorTokenPayload is what Mint needs to issue a token. JTI and TTL are optional.
type OperatorTokenPayload struct {
	OperatorID string
	Role       enums.OperatorRole
	JTI        string
	TTL        time.Duration
}

// OperatorClaims is the typed JWT presented by back-office callers.
// The operator id travels in the registered subject claim.
type OperatorClaims struct {
	Role enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// OperatorID returns the token subject.
func (c OperatorClaims) OperatorID() string {
	return c.Subject
}
