package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier checks login credentials and returns the matching identity.
// It returns ErrBadCredentials when the pair does not match.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (Identity, error)
}

// IdentityResolver loads the current identity of a user during refresh, so
// role or tenant changes take effect on the next access token.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID, tenantID int64) (Identity, error)
}

// Service implements the login and refresh flows on top of Manager.
type Service struct {
	tokens      *Manager
	credentials CredentialVerifier
	identities  IdentityResolver
	rotate      bool
	clock       func() time.Time
	log         *slog.Logger
}

type ServiceOptions struct {
	// RotateRefreshTokens issues a new refresh token on refresh. When false the
	// presented refresh token is returned unchanged and stays valid until its
	// own expiry.
	RotateRefreshTokens bool
	Logger              *slog.Logger
}

func NewService(tokens *Manager, credentials CredentialVerifier, identities IdentityResolver, opts ServiceOptions) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		tokens:      tokens,
		credentials: credentials,
		identities:  identities,
		rotate:      opts.RotateRefreshTokens,
		clock:       time.Now,
		log:         log,
	}
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if s.credentials == nil {
		return TokenPair{}, errors.New("auth: credential verifier not configured")
	}
	id, err := s.credentials.VerifyCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			return TokenPair{}, NewError(CodeInvalidCredentials, err)
		}
		return TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(s.clock(), id)
	if err != nil {
		return TokenPair{}, err
	}
	s.log.DebugContext(ctx, "login succeeded", "user_id", id.UserID, "role", id.Role)
	return pair, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, NewError(CodeRefreshRequired, nil)
	}

	now := s.clock()
	claims, err := s.tokens.Verify(refreshToken, TokenTypeRefresh, now)
	switch {
	case errors.Is(err, ErrTokenExpired):
		s.log.WarnContext(ctx, "expired refresh token presented")
		return TokenPair{}, NewError(CodeRefreshExpired, err)
	case err != nil:
		s.log.WarnContext(ctx, "invalid refresh token presented", "err", err)
		return TokenPair{}, NewError(CodeRefreshInvalid, err)
	}

	uid, err := subjectUserID(claims)
	if err != nil {
		return TokenPair{}, NewError(CodeRefreshInvalid, err)
	}
	if s.identities == nil {
		return TokenPair{}, errors.New("auth: identity resolver not configured")
	}
	id, err := s.identities.ResolveIdentity(ctx, uid, claims.TenantID)
	if err != nil {
		return TokenPair{}, err
	}

	access, err := s.tokens.Issue(now, TokenTypeAccess, id, s.tokens.AccessTTL())
	if err != nil {
		return TokenPair{}, err
	}
	refresh := refreshToken
	if s.rotate {
		refresh, err = s.tokens.Issue(now, TokenTypeRefresh, id, s.tokens.RefreshTTL())
		if err != nil {
			return TokenPair{}, err
		}
	}

	s.log.DebugContext(ctx, "token refreshed", "user_id", id.UserID, "rotated", s.rotate)
	return TokenPair{AccessToken: access, RefreshToken: refresh, UserID: id.UserID, Role: id.Role}, nil
}

// StaticCredentials is a single-account verifier for local development.
type StaticCredentials struct {
	Username     string
	PasswordHash []byte
	Identity     Identity
}

// NewStaticCredentials hashes password with bcrypt at the given cost.
func NewStaticCredentials(username, password string, id Identity, cost int) (StaticCredentials, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return StaticCredentials{}, fmt.Errorf("auth: hash password: %w", err)
	}
	return StaticCredentials{Username: username, PasswordHash: hash, Identity: id}, nil
}

func (s StaticCredentials) VerifyCredentials(_ context.Context, username, password string) (Identity, error) {
	if s.Username == "" || username != s.Username {
		return Identity{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(password)); err != nil {
		return Identity{}, ErrBadCredentials
	}
	return s.Identity, nil
}

// StaticIdentities resolves every user to a fixed role within their tenant.
type StaticIdentities struct {
	Role     string
	DojangID *int64
}

func (s StaticIdentities) ResolveIdentity(_ context.Context, userID, tenantID int64) (Identity, error) {
	return Identity{UserID: userID, TenantID: tenantID, DojangID: s.DojangID, Role: s.Role}, nil
}
