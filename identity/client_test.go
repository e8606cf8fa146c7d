package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, zerolog.Nop())
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestLoginParsesValidResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/login", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice@plantgate.example", body["email"])

		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{
				"id":    1,
				"email": "alice@plantgate.example",
				"companies": []map[string]any{
					{"id": 10, "name": "North Mill", "role": "gate_operator", "is_default": true},
				},
			},
			"access":  "acc",
			"refresh": "ref",
			"token":   map[string]any{"access_expires_in": 300, "refresh_expires_in": 86400},
		})
	})

	res, err := c.Login(context.Background(), "alice@plantgate.example", "pw")
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.User.ID)
	require.Len(t, res.User.Companies, 1)
	assert.Equal(t, "gate_operator", res.User.Companies[0].Role)

	assert.Equal(t, "acc", res.Auth.AccessToken)
	assert.Equal(t, "ref", res.Auth.RefreshToken)
	assert.True(t, res.Auth.Valid())
	assert.WithinDuration(t, time.Now().Add(300*time.Second), res.Auth.AccessTokenExpiry, 5*time.Second)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), res.Auth.RefreshTokenExpiry, 5*time.Second)
}

func TestLoginRejectsStructurallyInvalidResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing access token", `{"user":{"id":1,"email":"a@b.example"},"refresh":"r"}`},
		{"missing user", `{"access":"a","refresh":"r"}`},
		{"wrong-typed user id", `{"user":{"id":"one","email":"a@b.example"},"access":"a","refresh":"r"}`},
		{"not json at all", `<html>login</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := c.Login(context.Background(), "a@b.example", "pw")
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestRefreshClassifiesStatuses(t *testing.T) {
	t.Run("401 is a terminal rejection", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := c.Refresh(context.Background(), "ref")
		assert.ErrorIs(t, err, ErrRefreshRejected)
	})

	t.Run("5xx is recoverable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.Refresh(context.Background(), "ref")
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusBadGateway, serr.Code)
		assert.NotErrorIs(t, err, ErrRefreshRejected)
	})
}

func TestRefreshFallsBackToJWTExpiry(t *testing.T) {
	accessExp := time.Now().Add(7 * time.Minute).Truncate(time.Second)
	refreshExp := time.Now().Add(36 * time.Hour).Truncate(time.Second)
	access := signedToken(t, accessExp)
	refreshTok := signedToken(t, refreshExp)

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		// No token block at all: expiries must come from the exp claims.
		json.NewEncoder(w).Encode(map[string]any{"access": access, "refresh": refreshTok})
	})

	res, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, accessExp.Unix(), res.Auth.AccessTokenExpiry.Unix())
	assert.Equal(t, refreshExp.Unix(), res.Auth.RefreshTokenExpiry.Unix())
}

func TestRefreshClampsAccessExpiryToRefreshExpiry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access":  "a",
			"refresh": "r",
			"token":   map[string]any{"access_expires_in": 7200, "refresh_expires_in": 3600},
		})
	})

	res, err := c.Refresh(context.Background(), "ref")
	require.NoError(t, err)
	assert.True(t, res.Auth.Valid(), "clamped session must satisfy the expiry invariant")
	assert.False(t, res.Auth.AccessTokenExpiry.After(res.Auth.RefreshTokenExpiry))
}

func TestMeSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer acc", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "email": "alice@plantgate.example"})
	})

	user, err := c.Me(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
}

func TestPermissionsFetch(t *testing.T) {
	t.Run("empty grant set is still a completed fetch", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"permissions": []string{}})
		})
		perms, err := c.Permissions(context.Background(), "acc")
		require.NoError(t, err)
		assert.NotNil(t, perms)
		assert.Empty(t, perms)
	})

	t.Run("missing permissions field is invalid", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		})
		_, err := c.Permissions(context.Background(), "acc")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("grants pass through", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"permissions": []string{"gate_core.can_view_gate_entry", "qc.can_view_inspection"},
			})
		})
		perms, err := c.Permissions(context.Background(), "acc")
		require.NoError(t, err)
		assert.Equal(t, []string{"gate_core.can_view_gate_entry", "qc.can_view_inspection"}, perms)
	})
}
