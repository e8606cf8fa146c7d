// Package state holds the authoritative in-memory session snapshot for the
// running process and the closed set of events that may mutate it.
//
// All UI-facing reads go through the container; the durable store is only a
// best-effort mirror maintained by the sync bridge. Mutations are applied in
// dispatch order and atomically: no reader ever observes a partially applied
// event.
package state

import (
	"sync"
	"time"

	"github.com/plantgate/sessionkit/session"
)

// State is one immutable snapshot of the session aggregate. Copies handed
// out by the container share the underlying User and permission slices;
// treat them as read-only.
type State struct {
	User           *session.User
	Auth           *session.AuthSession
	Permissions    []string
	CurrentCompany *session.Company

	// Loading covers startup rehydration and login round-trips.
	Loading bool
	// PermissionsLoading is true while a permission fetch is in flight.
	PermissionsLoading bool
	// PermissionsLoaded flips to true only once a permission fetch has
	// completed after login. It exists to keep authorization checks from
	// running against an absent permission set and being misread as
	// "denied".
	PermissionsLoaded bool
	// Initialized is set once startup rehydration has finished.
	Initialized bool
}

// IsAuthenticated is derived, never stored: true iff a user and a
// non-hard-expired credential pair are both present.
func (s State) IsAuthenticated(now time.Time) bool {
	if s.User == nil || s.Auth == nil {
		return false
	}
	return now.Before(s.Auth.RefreshTokenExpiry)
}

// Listener observes every applied mutation. It runs synchronously on the
// dispatching goroutine and must not block; slow work belongs behind a
// channel, as the sync bridge does.
type Listener func(next State, ev Event)

// Container is the single authoritative state holder. Dispatch serialises
// mutations; State returns the current snapshot.
type Container struct {
	mu        sync.RWMutex
	state     State
	listeners []Listener
}

// NewContainer returns a container in the pre-initialization state:
// loading, unauthenticated, permissions not loaded.
func NewContainer() *Container {
	return &Container{state: State{Loading: true}}
}

// State returns the current snapshot.
func (c *Container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe registers a listener for all subsequent mutations. Listeners
// fire in registration order after the state swap.
func (c *Container) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Dispatch applies one event through the reducer and notifies listeners.
// The returned snapshot is the post-event state.
func (c *Container) Dispatch(ev Event) State {
	c.mu.Lock()
	next := reduce(c.state, ev)
	c.state = next
	listeners := c.listeners
	c.mu.Unlock()

	for _, l := range listeners {
		l(next, ev)
	}
	return next
}

// reduce is the pure transition function. Each case builds the complete
// next state in one step so no event can partially apply.
func reduce(cur State, ev Event) State {
	switch e := ev.(type) {
	case LoginSuccess:
		auth := e.Auth
		return State{
			User:        e.User,
			Auth:        &auth,
			Initialized: cur.Initialized,
		}

	case UpdateUser:
		next := cur
		next.User = e.User
		if next.CurrentCompany != nil && e.User.CompanyByID(next.CurrentCompany.ID) == nil {
			next.CurrentCompany = nil
		}
		return next

	case UpdateTokens:
		// Tokens attach only to a live session. A refresh that settles
		// after logout must not resurrect credentials on the dead state.
		if cur.User == nil {
			return cur
		}
		next := cur
		auth := e.Auth
		next.Auth = &auth
		return next

	case UpdatePermissions:
		next := cur
		next.Permissions = e.Permissions
		next.PermissionsLoading = false
		next.PermissionsLoaded = true
		return next

	case SwitchCompany:
		if cur.User == nil || cur.User.CompanyByID(e.Company.ID) == nil {
			return cur
		}
		next := cur
		company := e.Company
		next.CurrentCompany = &company
		return next

	case ClearCurrentCompany:
		next := cur
		next.CurrentCompany = nil
		return next

	case Logout:
		return State{Initialized: cur.Initialized}

	case InitializeAuth:
		next := cur
		next.Loading = true
		return next

	case InitializeComplete:
		next := State{Initialized: true}
		if r := e.Restored; r != nil && r.User != nil && r.Auth.Valid() {
			auth := r.Auth
			next.User = r.User
			next.Auth = &auth
			next.CurrentCompany = r.CurrentCompany
			if r.Permissions != nil {
				next.Permissions = r.Permissions
				next.PermissionsLoaded = true
			}
		}
		return next

	case SetLoading:
		next := cur
		next.Loading = e.Loading
		return next

	case SetPermissionsLoading:
		next := cur
		next.PermissionsLoading = e.Loading
		return next

	default:
		return cur
	}
}
