package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"maru-platform/internal/audit"
	"maru-platform/internal/auth"
	"maru-platform/internal/tenant"

	"github.com/gin-gonic/gin"
)

// AuditLister reads the audit trail of a tenant.
type AuditLister interface {
	List(ctx context.Context, tenantID int64, limit int) ([]audit.Event, error)
}

type AuditHandlers struct {
	Audit AuditLister
}

// ListEvents returns the caller's tenant audit trail, newest first.
func (h AuditHandlers) ListEvents(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(c, fmt.Errorf("%w: limit must be a non-negative integer", ErrBadRequest))
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	tenantID, ok := tenant.Get(ctx)
	if !ok {
		WriteError(c, auth.NewError(auth.CodeAuthRequired, nil))
		return
	}
	events, err := h.Audit.List(ctx, tenantID, limit)
	if err != nil {
		WriteError(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
