package sessionkit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/plantgate/sessionkit/guard"
	"github.com/plantgate/sessionkit/identity"
	"github.com/plantgate/sessionkit/refresh"
	"github.com/plantgate/sessionkit/session"
	"github.com/plantgate/sessionkit/state"
)

// IdentityAPI is the slice of the identity client the Manager consumes.
// Satisfied by *identity.Client; substituted with fakes in tests.
type IdentityAPI interface {
	Login(ctx context.Context, email, password string) (*identity.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenResult, error)
	Me(ctx context.Context, accessToken string) (*session.User, error)
	Permissions(ctx context.Context, accessToken string) ([]string, error)
}

// Manager is the façade over the session core. It owns the container, the
// durable store, the persistence bridge, and the refresh coordinator, and
// exposes the lifecycle operations the application calls.
//
// All methods are safe for concurrent use.
type Manager struct {
	cfg         Config
	log         zerolog.Logger
	container   *state.Container
	store       *session.Store
	identity    IdentityAPI
	coordinator *refresh.Coordinator
	bridge      *syncBridge
	guard       *guard.Guard
}

// Container returns the authoritative state container. UI reads go here.
func (m *Manager) Container() *state.Container { return m.container }

// Store returns the durable store. Exposed for diagnostics (Ping) and
// tests; application code should read through the container.
func (m *Manager) Store() *session.Store { return m.store }

// Guard returns the route guard bound to this manager's session.
func (m *Manager) Guard() *guard.Guard { return m.guard }

// Initialize rehydrates the container from the durable record. A record
// past hard expiry (or no record at all) yields a clean unauthenticated
// state. Call once at startup.
func (m *Manager) Initialize(ctx context.Context) state.State {
	m.container.Dispatch(state.InitializeAuth{})

	snap, ok := m.store.Load(ctx)
	if !ok || snap.User == nil || !snap.Auth.Valid() || m.store.IsTokenExpiredCompletely(ctx) {
		if ok {
			// Unusable leftovers; clear them so the next load is clean.
			m.store.ClearAuthData(ctx)
		}
		return m.container.Dispatch(state.InitializeComplete{})
	}

	m.log.Info().Int64("user_id", snap.User.ID).Msg("session rehydrated from durable store")
	return m.container.Dispatch(state.InitializeComplete{Restored: &snap})
}

// Login authenticates against the identity service and installs the
// aggregate atomically: user and tokens in one event, then the permission
// snapshot once its fetch completes. The identity response is validated
// before any state changes, so a malformed reply leaves the session
// untouched.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.container.Dispatch(state.SetLoading{Loading: true})

	res, err := m.identity.Login(ctx, email, password)
	if err != nil {
		m.container.Dispatch(state.SetLoading{Loading: false})
		m.log.Warn().Err(err).Msg("login failed")
		return err
	}

	m.container.Dispatch(state.LoginSuccess{User: res.User, Auth: res.Auth})
	if def := res.User.DefaultCompany(); def != nil {
		m.container.Dispatch(state.SwitchCompany{Company: *def})
	}

	if err := m.loadPermissions(ctx, res.Auth.AccessToken); err != nil {
		// The session stands; permission-gated views stay pending until
		// RefreshPermissions succeeds.
		m.log.Warn().Err(err).Msg("permission fetch after login failed")
	}
	return nil
}

// RefreshPermissions replaces the permission snapshot wholesale. Requires
// a valid session.
func (m *Manager) RefreshPermissions(ctx context.Context) error {
	res := m.coordinator.EnsureValidToken(ctx, m.expiredHook)
	if !res.Valid {
		if res.Err != nil {
			return res.Err
		}
		return ErrNotAuthenticated
	}
	if res.Refreshed != nil {
		m.container.Dispatch(state.UpdateTokens{Auth: *res.Refreshed})
	}
	return m.loadPermissions(ctx, res.AccessToken)
}

func (m *Manager) loadPermissions(ctx context.Context, accessToken string) error {
	m.container.Dispatch(state.SetPermissionsLoading{Loading: true})
	perms, err := m.identity.Permissions(ctx, accessToken)
	if err != nil {
		m.container.Dispatch(state.SetPermissionsLoading{Loading: false})
		return err
	}
	m.container.Dispatch(state.UpdatePermissions{Permissions: perms})
	return nil
}

// ReloadUser refetches the user from the identity service and updates the
// container. The current company is dropped if the new membership list no
// longer contains it.
func (m *Manager) ReloadUser(ctx context.Context) error {
	res := m.coordinator.EnsureValidToken(ctx, m.expiredHook)
	if !res.Valid {
		if res.Err != nil {
			return res.Err
		}
		return ErrNotAuthenticated
	}
	if res.Refreshed != nil {
		m.container.Dispatch(state.UpdateTokens{Auth: *res.Refreshed})
	}
	user, err := m.identity.Me(ctx, res.AccessToken)
	if err != nil {
		return err
	}
	m.container.Dispatch(state.UpdateUser{User: user})
	return nil
}

// SwitchCompany selects the membership with the given company ID as the
// current company.
func (m *Manager) SwitchCompany(companyID int64) error {
	st := m.container.State()
	if st.User == nil {
		return ErrNotAuthenticated
	}
	company := st.User.CompanyByID(companyID)
	if company == nil {
		return ErrCompanyNotMember
	}
	m.container.Dispatch(state.SwitchCompany{Company: *company})
	return nil
}

// ClearCurrentCompany deselects the current company.
func (m *Manager) ClearCurrentCompany() {
	m.container.Dispatch(state.ClearCurrentCompany{})
}

// EnsureValidToken exposes the coordinator's composed check, with the
// manager's forced-logout hook attached.
func (m *Manager) EnsureValidToken(ctx context.Context) refresh.Result {
	res := m.coordinator.EnsureValidToken(ctx, m.expiredHook)
	if res.Refreshed != nil {
		m.container.Dispatch(state.UpdateTokens{Auth: *res.Refreshed})
	}
	return res
}

// expiredHook runs when a guarded operation finds the session invalid.
// Terminal failures (missing tokens, hard expiry, refresh token rejected)
// destroy the session; recoverable refresh failures leave it in place so
// the next guarded access can retry.
func (m *Manager) expiredHook(reason refresh.Reason, err error) {
	if !reason.Terminal(err) {
		m.log.Debug().Err(err).Msg("recoverable failure, session kept")
		return
	}
	m.log.Info().Err(err).Msg("session expired, forcing logout")
	m.Logout()
}

// Logout destroys the aggregate everywhere at once: the in-memory state is
// cleared, any in-flight refresh is discarded so its late completion is a
// no-op, and the bridge deletes the durable record.
func (m *Manager) Logout() {
	m.coordinator.Reset()
	m.container.Dispatch(state.Logout{})
}

// BridgeDropped reports how many mutations the persistence bridge dropped.
func (m *Manager) BridgeDropped() uint64 { return m.bridge.Dropped() }

// Close drains the persistence bridge. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.bridge.Close()
}
