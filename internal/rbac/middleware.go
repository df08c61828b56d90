package rbac

import (
	"errors"

	"maru-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAuthenticated rejects anonymous requests with AUTH_001.
// Errors are attached to the gin context; the HTTP layer renders them.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth.IdentityFrom(c.Request.Context()) == nil {
			_ = c.Error(auth.NewError(auth.CodeAuthRequired, auth.ErrNoIdentity))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequirePermission guards a route with a RESOURCE:ACTION check.
// Rules:
// - no identity is 401 AUTH_001
// - a denial is 403 AUTH_003
// - a misconfigured permission string is a server error
func RequirePermission(ev *Evaluator, perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		err := ev.Check(ctx, auth.IdentityFrom(ctx), perm)
		switch {
		case err == nil:
			c.Next()
			return
		case errors.Is(err, ErrUnauthenticated):
			_ = c.Error(auth.NewError(auth.CodeAuthRequired, err))
		case errors.Is(err, ErrMalformedPermission):
			_ = c.Error(err)
		default:
			_ = c.Error(auth.NewError(auth.CodeAccessDenied, err))
		}
		c.Abort()
	}
}
