// Package identity is the HTTP client for the external identity service.
//
// The service owns the authentication protocol (password verification,
// token issuance, rotation); this client only performs the three calls the
// session core needs and validates every response structurally before any
// caller-visible state can change.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plantgate/sessionkit/session"
)

const (
	loginPath       = "/login"
	refreshPath     = "/refresh"
	mePath          = "/me"
	permissionsPath = "/permissions"
)

// Config carries the injected collaborator settings.
type Config struct {
	// BaseURL is the identity service root, without trailing slash.
	BaseURL string
	// Timeout bounds every call, including a hung refresh. There is no
	// separate cancellation model; a timeout resolves as a recoverable
	// failure.
	Timeout time.Duration
	// DefaultAccessTTL and DefaultRefreshTTL are last-resort expiries used
	// when a response carries neither a token block nor parseable exp
	// claims.
	DefaultAccessTTL  time.Duration
	DefaultRefreshTTL time.Duration
}

// Client talks to the identity service. Safe for concurrent use.
type Client struct {
	cfg      Config
	http     *http.Client
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewClient creates a Client. Zero config fields fall back to 10s timeout,
// 5m access TTL, and 24h refresh TTL.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultAccessTTL <= 0 {
		cfg.DefaultAccessTTL = 5 * time.Minute
	}
	if cfg.DefaultRefreshTTL <= 0 {
		cfg.DefaultRefreshTTL = 24 * time.Hour
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("component", "identity_client").Logger(),
		now:      time.Now,
	}
}

// Login exchanges credentials for a user and a credential pair.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var resp loginResponse
	if err := c.call(ctx, http.MethodPost, loginPath, "", body, &resp); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&resp); err != nil {
		return nil, &ValidationError{Endpoint: loginPath, Reason: err.Error()}
	}

	return &LoginResult{
		User: resp.User,
		Auth: authSession(resp.Access, resp.Refresh, resp.Token, c.now(),
			c.cfg.DefaultAccessTTL, c.cfg.DefaultRefreshTTL),
	}, nil
}

// Refresh exchanges a refresh token for a new credential pair. A 401/403
// reply maps to ErrRefreshRejected (terminal); anything else non-2xx is a
// recoverable StatusError.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResult, error) {
	body := map[string]string{"refresh": refreshToken}

	var resp refreshResponse
	if err := c.call(ctx, http.MethodPost, refreshPath, "", body, &resp); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&resp); err != nil {
		return nil, &ValidationError{Endpoint: refreshPath, Reason: err.Error()}
	}

	return &TokenResult{
		Auth: authSession(resp.Access, resp.Refresh, resp.Token, c.now(),
			c.cfg.DefaultAccessTTL, c.cfg.DefaultRefreshTTL),
	}, nil
}

// Me fetches the current user for the given access token.
func (c *Client) Me(ctx context.Context, accessToken string) (*session.User, error) {
	var user session.User
	if err := c.call(ctx, http.MethodGet, mePath, accessToken, nil, &user); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&user); err != nil {
		return nil, &ValidationError{Endpoint: mePath, Reason: err.Error()}
	}
	return &user, nil
}

// Permissions fetches the flat permission snapshot for the given access
// token. The returned slice is never nil on success, so an empty grant set
// still counts as a completed fetch.
func (c *Client) Permissions(ctx context.Context, accessToken string) ([]string, error) {
	var resp permissionsResponse
	if err := c.call(ctx, http.MethodGet, permissionsPath, accessToken, nil, &resp); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&resp); err != nil {
		return nil, &ValidationError{Endpoint: permissionsPath, Reason: err.Error()}
	}
	if resp.Permissions == nil {
		resp.Permissions = []string{}
	}
	return resp.Permissions, nil
}

func (c *Client) call(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity %s: encode request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("identity %s: build request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("identity call failed")
		return fmt.Errorf("identity %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("identity call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return c.statusError(path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ValidationError{Endpoint: path, Reason: err.Error()}
	}
	return nil
}

func (c *Client) statusError(path string, code int) error {
	rejected := code == http.StatusUnauthorized || code == http.StatusForbidden
	switch {
	case rejected && path == refreshPath:
		return fmt.Errorf("%w (status %d)", ErrRefreshRejected, code)
	case rejected:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, code)
	default:
		return &StatusError{Endpoint: path, Code: code}
	}
}
