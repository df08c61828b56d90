package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"maru-platform/internal/auth"
	"maru-platform/internal/permission"

	"github.com/gin-gonic/gin"
)

// PermissionChecker answers RESOURCE:ACTION questions for an identity.
type PermissionChecker interface {
	Evaluate(ctx context.Context, id *auth.Identity, perm string) bool
}

// PermissionHandlers exposes permission decisions and cache control.
type PermissionHandlers struct {
	Checker PermissionChecker
	Cache   permission.Cache
}

type checkResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// Check reports whether the caller holds ?permission=RESOURCE:ACTION.
func (h PermissionHandlers) Check(c *gin.Context) {
	perm := c.Query("permission")
	if _, _, err := permission.Parse(perm); err != nil {
		WriteError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, checkResponse{
		Permission: perm,
		Allowed:    h.Checker.Evaluate(ctx, auth.IdentityFrom(ctx), perm),
	})
}

type invalidateRequest struct {
	UserID   int64 `json:"userId"`
	TenantID int64 `json:"tenantId"`
}

// Invalidate drops cached decisions after grants changed outside this process.
// Omitted ids default to the caller's own tenant.
func (h PermissionHandlers) Invalidate(c *gin.Context) {
	var req invalidateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			WriteError(c, fmt.Errorf("%w: malformed body", ErrBadRequest))
			return
		}
	}
	ctx := c.Request.Context()
	if req.TenantID == 0 {
		if id := auth.IdentityFrom(ctx); id != nil {
			req.TenantID = id.TenantID
		}
	}
	if err := h.Cache.Invalidate(ctx, req.UserID, req.TenantID); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
