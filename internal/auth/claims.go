package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Subject carries the decimal user id. DojangID and Role are set on access
// tokens only.
type Claims struct {
	jwt.RegisteredClaims

	Type     TokenType `json:"type"`
	TenantID int64     `json:"tenantId,omitempty"`
	DojangID *int64    `json:"dojangId,omitempty"`
	Role     string    `json:"role,omitempty"`
}

// Identity is the authenticated principal of one request.
type Identity struct {
	UserID   int64
	TenantID int64
	// DojangID is the optional sub-tenant unit.
	DojangID *int64
	Role     string
}
