package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"maru-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// AuthService is the login/refresh flow the handlers front.
type AuthService interface {
	Login(ctx context.Context, username, password string) (auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth AuthService

	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	CookieSecure bool
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	UserID  int64  `json:"userId"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Login verifies credentials and hands the token pair back as httpOnly cookies.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, fmt.Errorf("%w: username and password are required", ErrBadRequest))
		return
	}
	pair, err := h.Auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(c, err)
		return
	}
	h.setTokenCookies(c, pair)
	c.JSON(http.StatusOK, loginResponse{UserID: pair.UserID, Role: pair.Role, Message: "login succeeded"})
}

// Refresh reads the refresh token from its cookie, falling back to the JSON body.
func (h Handlers) Refresh(c *gin.Context) {
	tok, _ := c.Cookie(RefreshTokenCookie)
	if tok == "" && c.Request.ContentLength != 0 {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			WriteError(c, fmt.Errorf("%w: malformed body", ErrBadRequest))
			return
		}
		tok = req.RefreshToken
	}

	pair, err := h.Auth.Refresh(c.Request.Context(), tok)
	if err != nil {
		WriteError(c, err)
		return
	}
	h.setTokenCookies(c, pair)
	c.JSON(http.StatusOK, loginResponse{UserID: pair.UserID, Role: pair.Role, Message: "token refreshed"})
}

type meResponse struct {
	UserID   int64  `json:"userId"`
	TenantID int64  `json:"tenantId"`
	DojangID *int64 `json:"dojangId,omitempty"`
	Role     string `json:"role"`
}

// Me echoes the authenticated identity.
func (h Handlers) Me(c *gin.Context) {
	id := auth.IdentityFrom(c.Request.Context())
	if id == nil {
		WriteError(c, auth.NewError(auth.CodeAuthRequired, nil))
		return
	}
	c.JSON(http.StatusOK, meResponse{UserID: id.UserID, TenantID: id.TenantID, DojangID: id.DojangID, Role: id.Role})
}

func (h Handlers) setTokenCookies(c *gin.Context, pair auth.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(AccessTokenCookie, pair.AccessToken, int(h.AccessTTL.Seconds()), "/", "", h.CookieSecure, true)
	c.SetCookie(RefreshTokenCookie, pair.RefreshToken, int(h.RefreshTTL.Seconds()), "/", "", h.CookieSecure, true)
}
