package sessionkit

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the sectioned configuration for a Manager. The zero value plus
// defaultConfig() yields a working local setup; FromEnv overlays
// environment variables.
type Config struct {
	Store    StoreConfig
	Identity IdentityConfig
	Guard    GuardConfig
	Log      LogConfig
}

// StoreConfig configures the durable session record.
type StoreConfig struct {
	RedisAddr string `env:"SESSIONKIT_REDIS_ADDR, default=localhost:6379"`
	RedisDB   int    `env:"SESSIONKIT_REDIS_DB, default=0"`
	// RecordKey is the fixed key of the single session record.
	RecordKey string `env:"SESSIONKIT_RECORD_KEY, default=sk:session:current"`
	// RefreshThreshold is the soft-expiry window before the access token's
	// hard deadline in which a proactive refresh is triggered.
	RefreshThreshold time.Duration `env:"SESSIONKIT_REFRESH_THRESHOLD, default=30s"`
	// BridgeBuffer is the capacity of the persistence bridge queue;
	// mutations beyond it are dropped, not blocked on.
	BridgeBuffer int `env:"SESSIONKIT_BRIDGE_BUFFER, default=64"`
}

// IdentityConfig configures the identity service collaborator.
type IdentityConfig struct {
	BaseURL           string        `env:"SESSIONKIT_IDENTITY_URL"`
	Timeout           time.Duration `env:"SESSIONKIT_IDENTITY_TIMEOUT, default=10s"`
	DefaultAccessTTL  time.Duration `env:"SESSIONKIT_DEFAULT_ACCESS_TTL, default=5m"`
	DefaultRefreshTTL time.Duration `env:"SESSIONKIT_DEFAULT_REFRESH_TTL, default=24h"`
}

// GuardConfig carries the injected redirect destinations.
type GuardConfig struct {
	LoginPath        string `env:"SESSIONKIT_LOGIN_PATH, default=/login"`
	UnauthorizedPath string `env:"SESSIONKIT_UNAUTHORIZED_PATH, default=/unauthorized"`
}

// LogConfig configures the zerolog output.
type LogConfig struct {
	Level  string `env:"SESSIONKIT_LOG_LEVEL, default=info"`
	Pretty bool   `env:"SESSIONKIT_LOG_PRETTY, default=false"`
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			RedisAddr:        "localhost:6379",
			RecordKey:        "sk:session:current",
			RefreshThreshold: 30 * time.Second,
			BridgeBuffer:     64,
		},
		Identity: IdentityConfig{
			Timeout:           10 * time.Second,
			DefaultAccessTTL:  5 * time.Minute,
			DefaultRefreshTTL: 24 * time.Hour,
		},
		Guard: GuardConfig{
			LoginPath:        "/login",
			UnauthorizedPath: "/unauthorized",
		},
		Log: LogConfig{Level: "info"},
	}
}

// FromEnv loads a Config from the environment via go-envconfig.
func FromEnv(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
