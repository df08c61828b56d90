package rbac

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"maru-platform/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// codeRecorder exposes the application code of the last attached error as a header.
func codeRecorder(c *gin.Context) {
	c.Next()
	if err := c.Errors.Last(); err != nil {
		code, _ := auth.CodeOf(err.Err)
		c.Header("X-Code", string(code))
		c.Status(http.StatusTeapot)
	}
}

func withIdentity(id *auth.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != nil {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), *id))
		}
		c.Next()
	}
}

func serve(t *testing.T, chain ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{codeRecorder}, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestRequireAuthenticated(t *testing.T) {
	w := serve(t, withIdentity(nil), RequireAuthenticated())
	assert.Equal(t, string(auth.CodeAuthRequired), w.Header().Get("X-Code"))

	w = serve(t, withIdentity(staff()), RequireAuthenticated())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Code"))
}

func TestRequireAuthenticated_AttachesNoIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var attached error
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		c.Next()
		if last := c.Errors.Last(); last != nil {
			attached = last.Err
		}
	}, RequireAuthenticated(), func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, errors.Is(attached, auth.ErrNoIdentity), "got %v", attached)

	ev := NewEvaluator(&spyCache{}, nil, nil)
	assert.ErrorIs(t, ev.Check(httptest.NewRequest(http.MethodGet, "/x", nil).Context(), nil, "STUDENT:READ"), auth.ErrNoIdentity)
}

func TestRequirePermission_OwnerPasses(t *testing.T) {
	cache := &spyCache{}
	ev := NewEvaluator(cache, nil, nil)
	owner := &auth.Identity{UserID: 1, TenantID: 1, Role: "OWNER"}

	w := serve(t, withIdentity(owner), RequirePermission(ev, "PAYMENT:DELETE"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, cache.calls.Load())
}

func TestRequirePermission_DeniedIsAccessDenied(t *testing.T) {
	ev := NewEvaluator(&spyCache{allow: false}, nil, nil)
	w := serve(t, withIdentity(staff()), RequirePermission(ev, "PAYMENT:DELETE"))
	assert.Equal(t, string(auth.CodeAccessDenied), w.Header().Get("X-Code"))
}

func TestRequirePermission_AnonymousIsAuthRequired(t *testing.T) {
	ev := NewEvaluator(&spyCache{allow: true}, nil, nil)
	w := serve(t, withIdentity(nil), RequirePermission(ev, "PAYMENT:READ"))
	assert.Equal(t, string(auth.CodeAuthRequired), w.Header().Get("X-Code"))
}

func TestRequirePermission_MalformedCarriesNoAuthCode(t *testing.T) {
	ev := NewEvaluator(&spyCache{allow: true}, nil, nil)
	w := serve(t, withIdentity(staff()), RequirePermission(ev, "PAYMENTREAD"))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("X-Code"))
}
