package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/plantgate/sessionkit/session"
)

var (
	// ErrRefreshRejected means the identity service refused the refresh
	// token itself (expired, rotated away, revoked). The session is not
	// recoverable by retrying; the caller must force a logout.
	ErrRefreshRejected = errors.New("refresh token rejected by identity service")
	// ErrUnauthorized means the access token was refused on an
	// authenticated endpoint.
	ErrUnauthorized = errors.New("access token rejected by identity service")
)

// ValidationError reports a structurally invalid identity service response:
// a required field missing or carrying the wrong type. It is raised before
// any state mutation, so the session aggregate is untouched when callers
// see it.
type ValidationError struct {
	Endpoint string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("identity %s: invalid response: %s", e.Endpoint, e.Reason)
}

// StatusError is a non-2xx reply that is not a token rejection. Refresh
// treats these as recoverable: the caller may retry on the next guarded
// access.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity %s: unexpected status %d", e.Endpoint, e.Code)
}

// tokenBlock is the relative-expiry envelope the identity service attaches
// to login and refresh replies. Values are seconds.
type tokenBlock struct {
	AccessExpiresIn  int64 `json:"access_expires_in"`
	RefreshExpiresIn int64 `json:"refresh_expires_in"`
}

type loginResponse struct {
	User    *session.User `json:"user" validate:"required"`
	Access  string        `json:"access" validate:"required"`
	Refresh string        `json:"refresh" validate:"required"`
	Token   tokenBlock    `json:"token"`
}

type refreshResponse struct {
	Access  string     `json:"access" validate:"required"`
	Refresh string     `json:"refresh" validate:"required"`
	Token   tokenBlock `json:"token"`
}

type permissionsResponse struct {
	Permissions []string `json:"permissions" validate:"required"`
}

// LoginResult is the validated outcome of a login call: the user and a
// complete credential pair with absolute expiries.
type LoginResult struct {
	User *session.User
	Auth session.AuthSession
}

// TokenResult is the validated outcome of a refresh call.
type TokenResult struct {
	Auth session.AuthSession
}

// authSession converts a relative-expiry token block into an AuthSession
// anchored at now. When the service omits access_expires_in the access
// token's own exp claim decides; the configured defaults are the last
// resort. The access expiry is clamped to the refresh expiry so the
// AuthSession invariant holds even against odd server answers.
func authSession(access, refresh string, tok tokenBlock, now time.Time, defaultAccessTTL, defaultRefreshTTL time.Duration) session.AuthSession {
	accessExpiry := time.Time{}
	switch {
	case tok.AccessExpiresIn > 0:
		accessExpiry = now.Add(time.Duration(tok.AccessExpiresIn) * time.Second)
	default:
		if exp, ok := expiryFromClaims(access); ok {
			accessExpiry = exp
		} else {
			accessExpiry = now.Add(defaultAccessTTL)
		}
	}

	refreshExpiry := time.Time{}
	switch {
	case tok.RefreshExpiresIn > 0:
		refreshExpiry = now.Add(time.Duration(tok.RefreshExpiresIn) * time.Second)
	default:
		if exp, ok := expiryFromClaims(refresh); ok {
			refreshExpiry = exp
		} else {
			refreshExpiry = now.Add(defaultRefreshTTL)
		}
	}

	if accessExpiry.After(refreshExpiry) {
		accessExpiry = refreshExpiry
	}

	return session.AuthSession{
		AccessToken:        access,
		RefreshToken:       refresh,
		AccessTokenExpiry:  accessExpiry,
		RefreshTokenExpiry: refreshExpiry,
	}
}

// expiryFromClaims pulls the exp claim out of a JWT without verifying the
// signature. Verification is the identity service's job; this client only
// needs the expiry instant for its refresh schedule.
func expiryFromClaims(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
