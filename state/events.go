package state

import (
	"github.com/plantgate/sessionkit/session"
)

// Event is the closed set of mutations the container accepts. The sealed
// marker method keeps the set enumerable: every transition the application
// can make is one of the types below, and each is applied by a single pure
// reducer step.
type Event interface {
	// Name is the stable event identifier used in logs and by the
	// persistence bridge.
	Name() string

	isEvent()
}

// LoginSuccess installs the freshly authenticated aggregate: user and
// tokens together, loading cleared, permissions reset to not-yet-loaded.
type LoginSuccess struct {
	User *session.User
	Auth session.AuthSession
}

// UpdateUser replaces the user while keeping tokens and permissions.
type UpdateUser struct {
	User *session.User
}

// UpdateTokens replaces the credential pair after a refresh.
type UpdateTokens struct {
	Auth session.AuthSession
}

// UpdatePermissions installs a new immutable permission snapshot and marks
// permissions as loaded.
type UpdatePermissions struct {
	Permissions []string
}

// SwitchCompany selects a current company. The reducer rejects companies
// that are not among the user's memberships.
type SwitchCompany struct {
	Company session.Company
}

// ClearCurrentCompany deselects the current company.
type ClearCurrentCompany struct{}

// Logout destroys the whole aggregate atomically.
type Logout struct{}

// InitializeAuth marks the start of startup rehydration.
type InitializeAuth struct{}

// InitializeComplete installs a rehydrated snapshot (or nothing, when the
// durable store held no usable record) and ends the loading phase.
type InitializeComplete struct {
	Restored *session.Snapshot
}

// SetLoading toggles the global loading flag.
type SetLoading struct {
	Loading bool
}

// SetPermissionsLoading toggles the permission-fetch-in-progress flag.
type SetPermissionsLoading struct {
	Loading bool
}

func (LoginSuccess) Name() string          { return "login_success" }
func (UpdateUser) Name() string            { return "update_user" }
func (UpdateTokens) Name() string          { return "update_tokens" }
func (UpdatePermissions) Name() string     { return "update_permissions" }
func (SwitchCompany) Name() string         { return "switch_company" }
func (ClearCurrentCompany) Name() string   { return "clear_current_company" }
func (Logout) Name() string                { return "logout" }
func (InitializeAuth) Name() string        { return "initialize_auth" }
func (InitializeComplete) Name() string    { return "initialize_complete" }
func (SetLoading) Name() string            { return "set_loading" }
func (SetPermissionsLoading) Name() string { return "set_permissions_loading" }

func (LoginSuccess) isEvent()          {}
func (UpdateUser) isEvent()            {}
func (UpdateTokens) isEvent()          {}
func (UpdatePermissions) isEvent()     {}
func (SwitchCompany) isEvent()         {}
func (ClearCurrentCompany) isEvent()   {}
func (Logout) isEvent()                {}
func (InitializeAuth) isEvent()        {}
func (InitializeComplete) isEvent()    {}
func (SetLoading) isEvent()            {}
func (SetPermissionsLoading) isEvent() {}
