// Package guard decides whether a requested view may render, composing the
// state container, the permission checker, and the token refresh
// coordinator into one auditable state machine.
//
// Two presentation variants share the same machine: Protect redirects
// (route-level guard) and Allow renders a fallback handler instead
// (inline conditional-render guard).
package guard

import (
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantgate/sessionkit/metrics"
	"github.com/plantgate/sessionkit/permission"
	"github.com/plantgate/sessionkit/refresh"
	"github.com/plantgate/sessionkit/state"
)

// Status enumerates the guard states. A navigation passes through at most
// one of these per evaluation; Unauthorized is terminal for the navigation.
type Status int

const (
	// StatusLoading: the container has not finished initializing. Render
	// a neutral wait state; never redirect.
	StatusLoading Status = iota
	// StatusUnauthenticated: no valid session. Redirect to login,
	// carrying the originally requested location for post-login return.
	StatusUnauthenticated
	// StatusPermissionPending: authenticated, but the permission snapshot
	// has not arrived yet. Hold rendering; a missing snapshot must never
	// be misread as a denial.
	StatusPermissionPending
	// StatusAuthorized: render the requested content.
	StatusAuthorized
	// StatusUnauthorized: permissions are loaded and the rule failed.
	StatusUnauthorized
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusPermissionPending:
		return "permission_pending"
	case StatusAuthorized:
		return "authorized"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Decide is the pure core of the state machine, usable without any I/O.
// tokenValid is the outcome of the coordinator's EnsureValidToken; pass
// true when no refresh check is wanted.
func Decide(st state.State, now time.Time, tokenValid bool, rule permission.Rule) Status {
	if st.Loading {
		return StatusLoading
	}
	if !st.IsAuthenticated(now) || !tokenValid {
		return StatusUnauthenticated
	}
	if !st.PermissionsLoaded {
		return StatusPermissionPending
	}

	role := ""
	if st.CurrentCompany != nil {
		role = st.CurrentCompany.Role
	}
	checker := permission.NewChecker(permission.NewSet(st.Permissions), role)
	if checker.Evaluate(rule) {
		return StatusAuthorized
	}
	return StatusUnauthorized
}

// Config carries the injected redirect destinations. The guard does not own
// route definitions.
type Config struct {
	// LoginPath receives unauthenticated navigations; the original
	// location is appended as the "next" query parameter.
	LoginPath string
	// UnauthorizedPath receives denied navigations.
	UnauthorizedPath string
	// Pending handles loading and permission-pending navigations in
	// Protect. Defaults to a 503 with a short Retry-After.
	Pending http.Handler
}

// Guard evaluates navigations against the live session state.
type Guard struct {
	container   *state.Container
	coordinator *refresh.Coordinator
	cfg         Config
	onExpired   func(refresh.Reason, error)
	log         zerolog.Logger
	now         func() time.Time
}

// New builds a Guard. onExpired is forwarded to the refresh coordinator on
// every guarded evaluation (typically the manager's forced-logout hook);
// nil is allowed.
func New(container *state.Container, coordinator *refresh.Coordinator, cfg Config, onExpired func(refresh.Reason, error), log zerolog.Logger) *Guard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.UnauthorizedPath == "" {
		cfg.UnauthorizedPath = "/unauthorized"
	}
	if cfg.Pending == nil {
		cfg.Pending = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "session initializing", http.StatusServiceUnavailable)
		})
	}
	return &Guard{
		container:   container,
		coordinator: coordinator,
		cfg:         cfg,
		onExpired:   onExpired,
		log:         log.With().Str("component", "route_guard").Logger(),
		now:         time.Now,
	}
}

// Check runs the full machine for one navigation: read the container, make
// sure the credentials are valid (refreshing them when soft-expired), then
// evaluate the rule. A refresh performed here is fed back into the
// container, which triggers durable persistence through the bridge.
func (g *Guard) Check(r *http.Request, rule permission.Rule) Status {
	st := g.container.State()
	now := g.now()

	if st.Loading {
		return g.observe(StatusLoading, rule)
	}
	if !st.IsAuthenticated(now) {
		return g.observe(StatusUnauthenticated, rule)
	}

	res := g.coordinator.EnsureValidToken(r.Context(), g.onExpired)
	if res.Refreshed != nil {
		st = g.container.Dispatch(state.UpdateTokens{Auth: *res.Refreshed})
	}
	if !res.Valid {
		if res.Reason == refresh.ReasonStoreUnavailable {
			// Durable store outage, not a logged-out profile. The
			// container stays authoritative; decide on what it holds.
			g.log.Warn().Err(res.Err).Str("path", r.URL.Path).Msg("durable store unreachable, deciding on in-memory session")
			return g.observe(Decide(st, now, true, rule), rule)
		}
		g.log.Debug().Err(res.Err).Str("path", r.URL.Path).Msg("guarded navigation invalidated")
		return g.observe(StatusUnauthenticated, rule)
	}

	return g.observe(Decide(st, now, true, rule), rule)
}

func (g *Guard) observe(s Status, rule permission.Rule) Status {
	metrics.GuardDecisions.WithLabelValues(s.String()).Inc()
	if s == StatusUnauthorized {
		g.log.Info().
			Strs("permissions", rule.Permissions).
			Str("module_prefix", rule.ModulePrefix).
			Msg("navigation denied")
	}
	return s
}

// Protect is the route-level variant: unauthenticated navigations redirect
// to the login destination with the requested location preserved, denied
// ones to the unauthorized destination. Loading and permission-pending go
// to the configured Pending handler (by default a 503 with a short
// Retry-After) instead of rendering or redirecting.
func (g *Guard) Protect(rule permission.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch g.Check(r, rule) {
			case StatusAuthorized:
				next.ServeHTTP(w, r)
			case StatusUnauthenticated:
				http.Redirect(w, r, g.loginRedirect(r), http.StatusSeeOther)
			case StatusUnauthorized:
				http.Redirect(w, r, g.cfg.UnauthorizedPath, http.StatusSeeOther)
			default:
				g.cfg.Pending.ServeHTTP(w, r)
			}
		})
	}
}

// Allow is the inline variant: instead of redirecting it renders fallback
// when the navigation is not authorized. Loading and permission-pending
// also render fallback, so a pending permission fetch shows the neutral
// placeholder rather than the denial branch.
func (g *Guard) Allow(rule permission.Rule, fallback http.Handler) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Check(r, rule) == StatusAuthorized {
				next.ServeHTTP(w, r)
				return
			}
			fallback.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) loginRedirect(r *http.Request) string {
	u, err := url.Parse(g.cfg.LoginPath)
	if err != nil {
		return g.cfg.LoginPath
	}
	q := u.Query()
	q.Set("next", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}
