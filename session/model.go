package session

import "time"

// User is the authenticated account as reported by the identity service.
// The active tab owns exactly one User at a time; the durable record keeps
// a read-only mirror of it.
type User struct {
	ID           int64     `json:"id" validate:"required"`
	Email        string    `json:"email" validate:"required,email"`
	DisplayName  string    `json:"display_name"`
	EmployeeCode string    `json:"employee_code"`
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"is_staff"`
	Companies    []Company `json:"companies" validate:"dive"`
}

// Company is a single membership entry on a User. At most one membership is
// the current company at a time, and the current company must always be one
// of User.Companies.
type Company struct {
	ID        int64  `json:"id" validate:"required"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	IsDefault bool   `json:"is_default"`
}

// CompanyByID returns the membership with the given company ID, or nil.
func (u *User) CompanyByID(id int64) *Company {
	if u == nil {
		return nil
	}
	for i := range u.Companies {
		if u.Companies[i].ID == id {
			return &u.Companies[i]
		}
	}
	return nil
}

// DefaultCompany returns the membership flagged as default, or nil.
func (u *User) DefaultCompany() *Company {
	if u == nil {
		return nil
	}
	for i := range u.Companies {
		if u.Companies[i].IsDefault {
			return &u.Companies[i]
		}
	}
	return nil
}

// AuthSession is the credential pair issued by the identity service together
// with both absolute expiry instants. The four fields are set and cleared as
// a unit; a partially populated AuthSession is never stored.
type AuthSession struct {
	AccessToken        string    `json:"access"`
	RefreshToken       string    `json:"refresh"`
	AccessTokenExpiry  time.Time `json:"access_token_expiry"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`
}

// Valid reports whether the session carries both tokens and both expiries,
// with the access expiry not after the refresh expiry.
func (a *AuthSession) Valid() bool {
	if a == nil {
		return false
	}
	if a.AccessToken == "" || a.RefreshToken == "" {
		return false
	}
	if a.AccessTokenExpiry.IsZero() || a.RefreshTokenExpiry.IsZero() {
		return false
	}
	return !a.AccessTokenExpiry.After(a.RefreshTokenExpiry)
}

// SoftExpired reports whether now plus threshold has reached the access
// token's expiry. A zero expiry counts as expired.
func (a AuthSession) SoftExpired(now time.Time, threshold time.Duration) bool {
	if a.AccessTokenExpiry.IsZero() {
		return true
	}
	return !now.Add(threshold).Before(a.AccessTokenExpiry)
}

// HardExpired reports whether the refresh token itself is past its expiry,
// making the session unrecoverable without a new login.
func (a AuthSession) HardExpired(now time.Time) bool {
	if a.RefreshTokenExpiry.IsZero() {
		return true
	}
	return !now.Before(a.RefreshTokenExpiry)
}

// Snapshot is the full post-login aggregate written to the durable store in
// one logical write.
type Snapshot struct {
	User           *User
	Auth           AuthSession
	Permissions    []string
	CurrentCompany *Company
}
