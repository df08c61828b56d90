package main

import (
	"context"
	"log/slog"
	"net/http"

	"maru-platform/internal/auth"
	"maru-platform/internal/httpapi"
	"maru-platform/internal/permission"
	"maru-platform/internal/rbac"
	"maru-platform/pkg/logger"
	"maru-platform/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type routeDeps struct {
	Tokens       *auth.Manager
	Auth         httpapi.AuthService
	Evaluator    *rbac.Evaluator
	Cache        permission.Cache
	Audit        httpapi.AuditLister
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Readiness    []func(context.Context) error
	CookieSecure bool
}

func newRouter(log *slog.Logger, d routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(logger.Middleware(log))
	r.Use(d.Metrics.Middleware())
	r.Use(httpapi.Recovery())
	r.Use(httpapi.Errors())
	r.Use(auth.Authenticate(d.Tokens))
	r.NoRoute(httpapi.NotFound)

	registerRoutes(r, d)
	return r
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		for _, check := range d.Readiness {
			if err := check(c.Request.Context()); err != nil {
				logger.FromGin(c).Warn("readiness check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}

	h := httpapi.Handlers{
		Auth:         d.Auth,
		AccessTTL:    d.Tokens.AccessTTL(),
		RefreshTTL:   d.Tokens.RefreshTTL(),
		CookieSecure: d.CookieSecure,
	}
	ph := httpapi.PermissionHandlers{Checker: d.Evaluator, Cache: d.Cache}
	ah := httpapi.AuditHandlers{Audit: d.Audit}

	v1 := r.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	// protected
	protected := v1.Group("")
	protected.Use(rbac.RequireAuthenticated())
	{
		protected.GET("/me", h.Me)
		protected.GET("/permissions/check", ph.Check)
		protected.POST("/permissions/cache/invalidate",
			rbac.RequirePermission(d.Evaluator, "PERMISSION:MANAGE"), ph.Invalidate)
		protected.GET("/audit/events",
			rbac.RequirePermission(d.Evaluator, "AUDIT:READ"), ah.ListEvents)
	}
}
