package auth

import (
	"strings"
	"time"

	"maru-platform/internal/tenant"
	"maru-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// Verifier is the slice of Manager the middleware needs.
type Verifier interface {
	Verify(tokenString string, expected TokenType, now time.Time) (Claims, error)
}

// Authenticate resolves the bearer token, if any, into the request identity
// and tenant scope. It never rejects: missing or bad tokens leave the request
// anonymous and access control is left to later middleware.
// The tenant scope is released when the rest of the chain returns or panics.
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, release := tenant.Begin(c.Request.Context())
		defer release()
		ctx = WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		tok, ok := bearerToken(c.GetHeader(authorizationHeader))
		if !ok {
			c.Next()
			return
		}

		log := logger.FromGin(c)
		claims, err := v.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			log.Warn("access token rejected", "path", c.Request.URL.Path, "err", err)
			c.Next()
			return
		}
		id, err := IdentityFromClaims(claims)
		if err != nil {
			log.Warn("access token rejected", "path", c.Request.URL.Path, "err", err)
			c.Next()
			return
		}

		tenant.Set(ctx, id.TenantID)
		c.Request = c.Request.WithContext(WithIdentity(ctx, id))

		log.Info("authenticated",
			"user_id", id.UserID,
			"tenant_id", id.TenantID,
			"role", id.Role,
			"ip", c.ClientIP(),
			"path", c.Request.URL.Path,
		)

		c.Next()
	}
}

// bearerToken matches the "Bearer " scheme case-sensitively. Any other
// spelling is treated as an absent token and the request stays anonymous.
func bearerToken(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	return tok, tok != ""
}
