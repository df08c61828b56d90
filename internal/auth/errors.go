package auth

import (
	"errors"
	"fmt"
)

var (
	ErrTokenInvalid      = errors.New("auth: token invalid")
	ErrTokenExpired      = errors.New("auth: token expired")
	ErrTokenTypeMismatch = errors.New("auth: token type mismatch")
	ErrConfig            = errors.New("auth: invalid configuration")
	ErrBadCredentials    = errors.New("auth: bad credentials")
)

// Code is an application error code rendered to clients alongside the HTTP status.
type Code string

const (
	CodeAuthRequired       Code = "AUTH_001"
	CodeInvalidToken       Code = "AUTH_002"
	CodeAccessDenied       Code = "AUTH_003"
	CodeTokenExpired       Code = "AUTH_004"
	CodeRefreshExpired     Code = "AUTH_005"
	CodeRefreshInvalid     Code = "AUTH_006"
	CodeRefreshRequired    Code = "AUTH_007"
	CodeInvalidCredentials Code = "AUTH_008"
)

var codeMessages = map[Code]string{
	CodeAuthRequired:       "authentication required",
	CodeInvalidToken:       "invalid token",
	CodeAccessDenied:       "access denied",
	CodeTokenExpired:       "token expired",
	CodeRefreshExpired:     "refresh token expired, please log in again",
	CodeRefreshInvalid:     "invalid refresh token",
	CodeRefreshRequired:    "refresh token is required",
	CodeInvalidCredentials: "invalid username or password",
}

// Message returns the user-facing message for c.
func (c Code) Message() string {
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return string(c)
}

// Error is an authentication failure that carries its application code so the
// HTTP boundary can render it without string matching.
type Error struct {
	Code Code
	Err  error
}

func NewError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Code.Message(), e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Code.Message())
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the application code from err, if it carries one.
func CodeOf(err error) (Code, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}
