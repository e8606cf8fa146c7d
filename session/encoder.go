package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is the record layout version written by this build.
// Decode accepts any version in [1, CurrentSchemaVersion] and upgrades the
// record in memory; Encode always writes the current version.
const CurrentSchemaVersion = 2

// ErrRecordCorrupt is returned when the stored record cannot be decoded.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Record is the single durable row mirroring the in-memory session
// aggregate. One record exists per device profile, under a fixed key.
type Record struct {
	SchemaVersion      int      `json:"schema_version"`
	ID                 string   `json:"id"`
	User               *User    `json:"user,omitempty"`
	Access             string   `json:"access,omitempty"`
	Refresh            string   `json:"refresh,omitempty"`
	AccessTokenExpiry  int64    `json:"access_token_expiry,omitempty"`
	RefreshTokenExpiry int64    `json:"refresh_token_expiry,omitempty"`
	Permissions        []string `json:"permissions"`
	CurrentCompany     *Company `json:"current_company,omitempty"`
}

// Encode serialises a record at the current schema version.
func Encode(r *Record) ([]byte, error) {
	r.SchemaVersion = CurrentSchemaVersion
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode session record: %w", err)
	}
	return data, nil
}

// Decode parses a stored record and upgrades older schema versions in
// memory. The upgraded form is only written back on the next store write.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	if r.SchemaVersion < 1 || r.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unknown schema version %d", ErrRecordCorrupt, r.SchemaVersion)
	}
	if r.SchemaVersion < CurrentSchemaVersion {
		migrate(&r)
	}
	return &r, nil
}

// migrate upgrades a decoded record to the current layout. Version 1 stored
// permissions as nil when empty; version 2 distinguishes "never fetched"
// (nil) from "fetched, empty" ([]). Nothing to rewrite for that change, so
// the upgrade only bumps the version marker.
func migrate(r *Record) {
	r.SchemaVersion = CurrentSchemaVersion
}
