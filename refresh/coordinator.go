// Package refresh is the single origin of credential-renewal network calls.
//
// The coordinator deduplicates concurrent refresh attempts: while one call
// to the identity service is in flight, every other caller parks on the
// same memoized attempt and observes its outcome. The memo is cleared only
// after the attempt settles, so a later expiry starts a fresh attempt
// rather than replaying a stale result.
//
// Two browser tabs sharing the durable store may still refresh
// near-simultaneously; there is deliberately no cross-process lock. The
// identity service treats refresh as idempotent enough for that window
// (see DESIGN.md for the accepted relaxation).
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantgate/sessionkit/identity"
	"github.com/plantgate/sessionkit/metrics"
	"github.com/plantgate/sessionkit/session"
)

var (
	// ErrNoRefreshToken is returned when the durable store holds no
	// refresh token. No network call is made.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrSuperseded is returned to waiters whose in-flight attempt was
	// discarded by a logout before it settled.
	ErrSuperseded = errors.New("refresh superseded by logout")
)

// Reason says why EnsureValidToken reported an invalid session.
type Reason int

const (
	// ReasonNone means the session is valid.
	ReasonNone Reason = iota
	// ReasonMissingTokens means access or refresh token is absent from
	// the durable store.
	ReasonMissingTokens
	// ReasonSessionExpired means the refresh token itself is past hard
	// expiry; only a new login recovers.
	ReasonSessionExpired
	// ReasonRefreshFailed means a refresh was attempted and failed; Err
	// carries the classified failure.
	ReasonRefreshFailed
	// ReasonStoreUnavailable means the durable store could not be read, so
	// nothing is known about the stored credentials. Never terminal: an
	// infrastructure outage must not destroy a live in-memory session.
	ReasonStoreUnavailable
)

// Terminal reports whether the reason (or its underlying error) means the
// session is unrecoverable without re-login. Recoverable refresh failures
// (network, 5xx) are not terminal: the caller may retry on the next guarded
// access without forcing a logout.
func (r Reason) Terminal(err error) bool {
	switch r {
	case ReasonMissingTokens, ReasonSessionExpired:
		return true
	case ReasonRefreshFailed:
		return errors.Is(err, identity.ErrRefreshRejected)
	default:
		return false
	}
}

// Result is the outcome of EnsureValidToken.
type Result struct {
	// Valid is true when the caller may proceed with AccessToken.
	Valid bool
	// AccessToken is the usable credential when Valid.
	AccessToken string
	// Refreshed is non-nil when this call renewed the credentials; the
	// caller is responsible for feeding it into the state container,
	// which in turn triggers durable persistence.
	Refreshed *session.AuthSession
	// Reason and Err describe the failure when not Valid.
	Reason Reason
	Err    error
}

// IdentityRefresher is the slice of the identity client the coordinator
// needs.
type IdentityRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenResult, error)
}

type attempt struct {
	done chan struct{}
	auth session.AuthSession
	err  error
}

// Coordinator orchestrates credential renewal against the identity service.
// Safe for concurrent use; all fields past construction are guarded by mu.
type Coordinator struct {
	store    *session.Store
	identity IdentityRefresher
	log      zerolog.Logger

	mu         sync.Mutex
	inflight   *attempt
	generation uint64

	now func() time.Time
}

// NewCoordinator wires the coordinator to the durable store and the
// identity client.
func NewCoordinator(store *session.Store, ic IdentityRefresher, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		identity: ic,
		log:      log.With().Str("component", "token_refresh").Logger(),
		now:      time.Now,
	}
}

// IsTokenCompletelyExpired delegates to the store's hard-expiry check.
func (c *Coordinator) IsTokenCompletelyExpired(ctx context.Context) bool {
	return c.store.IsTokenExpiredCompletely(ctx)
}

// ShouldRefreshToken delegates to the store's soft-expiry check.
func (c *Coordinator) ShouldRefreshToken(ctx context.Context) bool {
	return c.store.IsTokenExpired(ctx)
}

// RefreshAccessToken renews the credential pair. Concurrent callers share
// one network call and one outcome. On failure nothing has been mutated;
// the caller decides whether the failure is terminal via Reason.Terminal.
func (c *Coordinator) RefreshAccessToken(ctx context.Context) (session.AuthSession, error) {
	c.mu.Lock()
	if a := c.inflight; a != nil {
		c.mu.Unlock()
		metrics.RefreshDedupTotal.Inc()
		return c.await(ctx, a)
	}
	a := &attempt{done: make(chan struct{})}
	gen := c.generation
	c.inflight = a
	c.mu.Unlock()

	go c.run(a, gen)
	return c.await(ctx, a)
}

// run performs the single network attempt and settles the memo. It uses a
// background context so one caller's cancellation cannot fail the attempt
// for every waiter; the identity client's own timeout bounds the call.
func (c *Coordinator) run(a *attempt, gen uint64) {
	ctx := context.Background()

	auth, found, err := c.store.Auth(ctx)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("store_unavailable").Inc()
		c.settle(a, gen, session.AuthSession{}, err)
		return
	}
	if !found {
		metrics.RefreshTotal.WithLabelValues("no_refresh_token").Inc()
		c.settle(a, gen, session.AuthSession{}, ErrNoRefreshToken)
		return
	}

	res, err := c.identity.Refresh(ctx, auth.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrRefreshRejected):
			metrics.RefreshTotal.WithLabelValues("rejected").Inc()
		default:
			metrics.RefreshTotal.WithLabelValues("error").Inc()
		}
		c.log.Warn().Err(err).Msg("token refresh failed")
		c.settle(a, gen, session.AuthSession{}, err)
		return
	}

	metrics.RefreshTotal.WithLabelValues("success").Inc()
	c.log.Debug().Time("access_expiry", res.Auth.AccessTokenExpiry).Msg("token refresh succeeded")
	c.settle(a, gen, res.Auth, nil)
}

func (c *Coordinator) settle(a *attempt, gen uint64, auth session.AuthSession, err error) {
	c.mu.Lock()
	if c.generation != gen {
		// Logout happened while the call was in flight; the session the
		// result belongs to is no longer current.
		auth, err = session.AuthSession{}, ErrSuperseded
	}
	if c.inflight == a {
		c.inflight = nil
	}
	a.auth, a.err = auth, err
	close(a.done)
	c.mu.Unlock()
}

func (c *Coordinator) await(ctx context.Context, a *attempt) (session.AuthSession, error) {
	select {
	case <-a.done:
		return a.auth, a.err
	case <-ctx.Done():
		return session.AuthSession{}, ctx.Err()
	}
}

// Reset discards any in-flight attempt. This is the logout path: a refresh
// that settles after Reset resolves as ErrSuperseded for its waiters and
// is never fed back into session state.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.generation++
	c.inflight = nil
	c.mu.Unlock()
}

// EnsureValidToken is the composed entry point used before every guarded
// operation. Checks run in order: store reachability, missing tokens, hard
// expiry, soft expiry with refresh, otherwise valid as-is. The credential
// pair is read once so every check sees the same snapshot. onExpired
// (optional) is invoked on every invalid outcome with the classified
// reason, so the owner can force a logout on terminal failures and leave
// recoverable ones alone.
func (c *Coordinator) EnsureValidToken(ctx context.Context, onExpired func(Reason, error)) Result {
	expired := func(reason Reason, err error) Result {
		if onExpired != nil {
			onExpired(reason, err)
		}
		return Result{Reason: reason, Err: err}
	}

	auth, found, err := c.store.Auth(ctx)
	if err != nil {
		// Cannot tell a logged-out profile from an unreachable store.
		// Report the outage and leave the in-memory session alone.
		return expired(ReasonStoreUnavailable, err)
	}
	if !found {
		return expired(ReasonMissingTokens, ErrNoRefreshToken)
	}

	now := c.now()
	if auth.HardExpired(now) {
		return expired(ReasonSessionExpired, nil)
	}

	if auth.SoftExpired(now, c.store.RefreshThreshold()) {
		renewed, err := c.RefreshAccessToken(ctx)
		if err != nil {
			return expired(ReasonRefreshFailed, err)
		}
		return Result{Valid: true, AccessToken: renewed.AccessToken, Refreshed: &renewed}
	}

	return Result{Valid: true, AccessToken: auth.AccessToken}
}
