package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"maru-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Manager issues and verifies the service's signed tokens.
type Manager struct {
	secret     []byte
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	secret, err := cfg.DecodeSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	issuer := cfg.JWTIssuer
	if issuer == "" {
		issuer = config.DefaultIssuer
	}
	audience := cfg.JWTAudience
	if audience == "" {
		audience = config.DefaultAudience
	}

	return &Manager{
		secret:     secret,
		method:     methodForKey(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		leeway:     cfg.Leeway,
	}, nil
}

// methodForKey picks the strongest HMAC variant the key length supports.
func methodForKey(key []byte) jwt.SigningMethod {
	switch {
	case len(key) >= 64:
		return jwt.SigningMethodHS512
	case len(key) >= 48:
		return jwt.SigningMethodHS384
	default:
		return jwt.SigningMethodHS256
	}
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       int64
	Role         string
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

/* ===================== ISSUE TOKENS ===================== */

// IssuePair issues an access and a refresh token for id using the configured TTLs.
func (m *Manager) IssuePair(now time.Time, id Identity) (TokenPair, error) {
	access, err := m.Issue(now, TokenTypeAccess, id, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.Issue(now, TokenTypeRefresh, id, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       id.UserID,
		Role:         id.Role,
	}, nil
}

// Issue signs a token of the given type for id, valid for ttl from now.
// A non-positive ttl yields a token that is already expired.
func (m *Manager) Issue(now time.Time, tokenType TokenType, id Identity, ttl time.Duration) (string, error) {
	if tokenType != TokenTypeAccess && tokenType != TokenTypeRefresh {
		return "", fmt.Errorf("auth: unknown token type %q", tokenType)
	}
	if id.UserID <= 0 {
		return "", errors.New("auth: user id required")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Type:     tokenType,
		TenantID: id.TenantID,
	}
	// refresh tokens do not carry role or dojang
	if tokenType == TokenTypeAccess {
		claims.DojangID = id.DojangID
		claims.Role = id.Role
	}

	t := jwt.NewWithClaims(m.method, claims)
	return t.SignedString(m.secret)
}

/* ===================== VERIFY TOKEN ===================== */

// Verify checks signature, time claims, issuer, audience and token type.
// It returns ErrTokenExpired for a correctly signed token past its expiry,
// ErrTokenTypeMismatch for the wrong type, and ErrTokenInvalid otherwise.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(m.leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
	)

	claims, err := m.parse(parser, tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != expected {
		return Claims{}, fmt.Errorf("%w: want %s, got %q", ErrTokenTypeMismatch, expected, claims.Type)
	}
	return claims, nil
}

// ExtractClaimsIgnoringExpiry reads claims from a correctly signed token
// without enforcing exp/iat. Structure, signature and required identity
// claims are still checked.
func (m *Manager) ExtractClaimsIgnoringExpiry(tokenString string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return m.parse(parser, tokenString)
}

func (m *Manager) parse(parser *jwt.Parser, tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		// jwt/v5 only reports expiry after the signature has been verified.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if _, err := subjectUserID(claims); err != nil {
		return Claims{}, err
	}
	if claims.TenantID <= 0 {
		return Claims{}, fmt.Errorf("%w: tenantId missing", ErrTokenInvalid)
	}
	if claims.Type == TokenTypeAccess && claims.Role == "" {
		return Claims{}, fmt.Errorf("%w: role missing in access token", ErrTokenInvalid)
	}
	return claims, nil
}

// IdentityFromClaims builds the request principal from verified claims.
func IdentityFromClaims(c Claims) (Identity, error) {
	uid, err := subjectUserID(c)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		UserID:   uid,
		TenantID: c.TenantID,
		DojangID: c.DojangID,
		Role:     c.Role,
	}, nil
}

func subjectUserID(c Claims) (int64, error) {
	uid, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return 0, fmt.Errorf("%w: subject is not a user id", ErrTokenInvalid)
	}
	return uid, nil
}
