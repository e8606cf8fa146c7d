package sessionkit

import (
	"errors"

	"github.com/plantgate/sessionkit/identity"
	"github.com/plantgate/sessionkit/refresh"
	"github.com/plantgate/sessionkit/session"
)

var (
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrRedisRequired is returned by Build when neither a Redis client nor
	// a Redis address was given.
	ErrRedisRequired = errors.New("redis client required")
	// ErrIdentityRequired is returned by Build when neither an identity
	// client nor an identity base URL was given.
	ErrIdentityRequired = errors.New("identity client required")
	// ErrNotAuthenticated is returned by operations that need a live
	// session when none exists.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrCompanyNotMember is returned by SwitchCompany when the requested
	// company is not among the user's memberships.
	ErrCompanyNotMember = errors.New("company is not a membership of the current user")
)

// Re-exported collaborator errors, so callers can classify failures without
// importing the subpackages.
var (
	// ErrNoRefreshToken: the durable store holds no refresh token.
	ErrNoRefreshToken = refresh.ErrNoRefreshToken
	// ErrRefreshRejected: the identity service refused the refresh token
	// itself; the session is terminally expired.
	ErrRefreshRejected = identity.ErrRefreshRejected
	// ErrStoreUnavailable: the durable store could not be reached. Never
	// terminal; the in-memory session stays live.
	ErrStoreUnavailable = session.ErrRedisUnavailable
)
