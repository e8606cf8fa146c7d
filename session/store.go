package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/plantgate/sessionkit/metrics"
)

// ErrRedisUnavailable is returned when the backing store cannot be reached.
// Writes swallow it and point reads degrade to absent values; only Auth and
// Ping surface it, for callers that must tell an outage from a logged-out
// profile.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultRecordKey is the fixed key under which the single session record
// lives. One logical session exists per device profile.
const DefaultRecordKey = "sk:session:current"

// DefaultRefreshThreshold is the soft-expiry window: once the access token
// is within this distance of its expiry, IsTokenExpired reports true so
// callers refresh proactively instead of racing the hard deadline.
const DefaultRefreshThreshold = 30 * time.Second

// Store is the durable mirror of the in-memory session aggregate. It is a
// best-effort cache: every write failure is logged and swallowed, because
// the in-memory container remains authoritative for the running tab. Reads
// report absence (zero values) on any storage failure.
type Store struct {
	redis            redis.UniversalClient
	recordKey        string
	refreshThreshold time.Duration
	log              zerolog.Logger

	// now is replaced in tests to pin expiry boundaries.
	now func() time.Time
}

// NewStore creates a Store over the given Redis client. recordKey and
// refreshThreshold fall back to the package defaults when zero.
func NewStore(client redis.UniversalClient, recordKey string, refreshThreshold time.Duration, log zerolog.Logger) *Store {
	if recordKey == "" {
		recordKey = DefaultRecordKey
	}
	if refreshThreshold <= 0 {
		refreshThreshold = DefaultRefreshThreshold
	}
	return &Store{
		redis:            client,
		recordKey:        recordKey,
		refreshThreshold: refreshThreshold,
		log:              log.With().Str("component", "session_store").Logger(),
		now:              time.Now,
	}
}

func (s *Store) load(ctx context.Context) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

func (s *Store) save(ctx context.Context, r *Record) error {
	r.ID = s.recordKey
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.recordKey, data, s.recordTTL(r)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// recordTTL expires the durable record together with the refresh token:
// past hard expiry the record is useless, re-login rewrites it anyway.
func (s *Store) recordTTL(r *Record) time.Duration {
	if r.RefreshTokenExpiry == 0 {
		return 0
	}
	ttl := time.Unix(r.RefreshTokenExpiry, 0).Sub(s.now())
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

// swallow logs a storage failure and drops it. The store is a cache; a
// failed write must never surface to the UI or roll back in-memory state.
func (s *Store) swallow(op string, err error) {
	if err == nil {
		return
	}
	metrics.StoreFailures.WithLabelValues(op).Inc()
	s.log.Warn().Err(err).Str("op", op).Msg("session store write dropped")
}

// SaveLogin writes the full post-login aggregate in one logical write,
// replacing any prior record.
func (s *Store) SaveLogin(ctx context.Context, snap Snapshot) {
	rec := &Record{
		User:               snap.User,
		Access:             snap.Auth.AccessToken,
		Refresh:            snap.Auth.RefreshToken,
		AccessTokenExpiry:  snap.Auth.AccessTokenExpiry.Unix(),
		RefreshTokenExpiry: snap.Auth.RefreshTokenExpiry.Unix(),
		Permissions:        snap.Permissions,
		CurrentCompany:     snap.CurrentCompany,
	}
	s.swallow("save_login", s.save(ctx, rec))
}

// UpdateTokens replaces only the token fields of the record. The access
// expiry is computed from the relative accessExpiresIn; the refresh expiry
// is taken as an absolute instant.
func (s *Store) UpdateTokens(ctx context.Context, access, refresh string, accessExpiresIn time.Duration, refreshExpiresAt time.Time) {
	rec, err := s.load(ctx)
	if err != nil {
		s.swallow("update_tokens", err)
		return
	}
	if rec == nil {
		rec = &Record{}
	}
	rec.Access = access
	rec.Refresh = refresh
	rec.AccessTokenExpiry = s.now().Add(accessExpiresIn).Unix()
	rec.RefreshTokenExpiry = refreshExpiresAt.Unix()
	s.swallow("update_tokens", s.save(ctx, rec))
}

// UpdateUser replaces the mirrored user. A nil record is created on demand
// so a missed SaveLogin does not lose the follow-up write.
func (s *Store) UpdateUser(ctx context.Context, user *User) {
	s.patch(ctx, "update_user", func(rec *Record) { rec.User = user })
}

// UpdateCurrentCompany replaces the current company; nil clears it.
func (s *Store) UpdateCurrentCompany(ctx context.Context, company *Company) {
	s.patch(ctx, "update_current_company", func(rec *Record) { rec.CurrentCompany = company })
}

// UpdatePermissions replaces the mirrored permission set wholesale.
func (s *Store) UpdatePermissions(ctx context.Context, permissions []string) {
	s.patch(ctx, "update_permissions", func(rec *Record) { rec.Permissions = permissions })
}

func (s *Store) patch(ctx context.Context, op string, apply func(*Record)) {
	rec, err := s.load(ctx)
	if err != nil {
		s.swallow(op, err)
		return
	}
	if rec == nil {
		rec = &Record{}
	}
	apply(rec)
	s.swallow(op, s.save(ctx, rec))
}

// ClearAuthData deletes the record. Deleting an absent record is a no-op.
func (s *Store) ClearAuthData(ctx context.Context) {
	if err := s.redis.Del(ctx, s.recordKey).Err(); err != nil {
		s.swallow("clear", fmt.Errorf("%w: %v", ErrRedisUnavailable, err))
	}
}

func (s *Store) read(ctx context.Context, op string) *Record {
	rec, err := s.load(ctx)
	if err != nil {
		metrics.StoreFailures.WithLabelValues(op).Inc()
		s.log.Warn().Err(err).Str("op", op).Msg("session store read degraded to absent")
		return nil
	}
	return rec
}

// Auth returns the stored credential pair in one read. found is false when
// no record with both tokens exists. Unlike the point reads, a storage
// failure is returned instead of degrading to absence: deciding the fate of
// a session on a failed read would turn an outage into a forced logout.
func (s *Store) Auth(ctx context.Context) (AuthSession, bool, error) {
	rec, err := s.load(ctx)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("auth").Inc()
		s.log.Warn().Err(err).Str("op", "auth").Msg("session store read failed")
		return AuthSession{}, false, err
	}
	if rec == nil || rec.Access == "" || rec.Refresh == "" {
		return AuthSession{}, false, nil
	}
	return AuthSession{
		AccessToken:        rec.Access,
		RefreshToken:       rec.Refresh,
		AccessTokenExpiry:  time.Unix(rec.AccessTokenExpiry, 0),
		RefreshTokenExpiry: time.Unix(rec.RefreshTokenExpiry, 0),
	}, true, nil
}

// RefreshThreshold returns the soft-expiry window this store was built with.
func (s *Store) RefreshThreshold() time.Duration {
	return s.refreshThreshold
}

// AccessToken returns the stored access token, or "" when absent.
func (s *Store) AccessToken(ctx context.Context) string {
	if rec := s.read(ctx, "access_token"); rec != nil {
		return rec.Access
	}
	return ""
}

// RefreshToken returns the stored refresh token, or "" when absent.
func (s *Store) RefreshToken(ctx context.Context) string {
	if rec := s.read(ctx, "refresh_token"); rec != nil {
		return rec.Refresh
	}
	return ""
}

// AccessTokenExpiry returns the stored access expiry, or the zero time.
func (s *Store) AccessTokenExpiry(ctx context.Context) time.Time {
	if rec := s.read(ctx, "access_expiry"); rec != nil && rec.AccessTokenExpiry != 0 {
		return time.Unix(rec.AccessTokenExpiry, 0)
	}
	return time.Time{}
}

// RefreshTokenExpiry returns the stored refresh expiry, or the zero time.
func (s *Store) RefreshTokenExpiry(ctx context.Context) time.Time {
	if rec := s.read(ctx, "refresh_expiry"); rec != nil && rec.RefreshTokenExpiry != 0 {
		return time.Unix(rec.RefreshTokenExpiry, 0)
	}
	return time.Time{}
}

// User returns the mirrored user, or nil when absent.
func (s *Store) User(ctx context.Context) *User {
	if rec := s.read(ctx, "user"); rec != nil {
		return rec.User
	}
	return nil
}

// CurrentCompany returns the mirrored current company, or nil.
func (s *Store) CurrentCompany(ctx context.Context) *Company {
	if rec := s.read(ctx, "current_company"); rec != nil {
		return rec.CurrentCompany
	}
	return nil
}

// Permissions returns the mirrored permission set, or nil when never
// fetched.
func (s *Store) Permissions(ctx context.Context) []string {
	if rec := s.read(ctx, "permissions"); rec != nil {
		return rec.Permissions
	}
	return nil
}

// Load returns the whole record as a Snapshot for startup rehydration.
// The second return is false when no record exists or the store is down.
func (s *Store) Load(ctx context.Context) (Snapshot, bool) {
	rec := s.read(ctx, "load")
	if rec == nil {
		return Snapshot{}, false
	}
	snap := Snapshot{
		User:           rec.User,
		Permissions:    rec.Permissions,
		CurrentCompany: rec.CurrentCompany,
	}
	if rec.Access != "" && rec.Refresh != "" {
		snap.Auth = AuthSession{
			AccessToken:        rec.Access,
			RefreshToken:       rec.Refresh,
			AccessTokenExpiry:  time.Unix(rec.AccessTokenExpiry, 0),
			RefreshTokenExpiry: time.Unix(rec.RefreshTokenExpiry, 0),
		}
	}
	return snap, true
}

// IsTokenExpired reports soft expiry: the access token is absent, or now
// plus the refresh threshold has reached its expiry. Soft-expired tokens
// should be refreshed proactively but may still be accepted upstream.
func (s *Store) IsTokenExpired(ctx context.Context) bool {
	expiry := s.AccessTokenExpiry(ctx)
	if expiry.IsZero() {
		return true
	}
	return !s.now().Add(s.refreshThreshold).Before(expiry)
}

// IsTokenExpiredCompletely reports hard expiry: the refresh token itself is
// absent or past its expiry, making the session unrecoverable without a new
// login.
func (s *Store) IsTokenExpiredCompletely(ctx context.Context) bool {
	expiry := s.RefreshTokenExpiry(ctx)
	if expiry.IsZero() {
		return true
	}
	return !s.now().Before(expiry)
}

// Ping returns a point-in-time availability check and its latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := s.now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
