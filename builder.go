package sessionkit

import (
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/plantgate/sessionkit/guard"
	"github.com/plantgate/sessionkit/identity"
	"github.com/plantgate/sessionkit/refresh"
	"github.com/plantgate/sessionkit/session"
	"github.com/plantgate/sessionkit/state"
)

// Builder assembles a Manager. A Builder is single-use: Build wires the
// components together and marks the Builder spent.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	identity IdentityAPI
	logger   *zerolog.Logger

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing the durable store. When omitted,
// Build dials Config.Store.RedisAddr.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentity sets the identity service client. When omitted, Build
// constructs one from Config.Identity (which then requires BaseURL).
func (b *Builder) WithIdentity(client IdentityAPI) *Builder {
	b.identity = client
	return b
}

// WithLogger sets the root logger. When omitted, Build creates one from
// Config.Log.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = &log
	return b
}

// Build wires the store, container, bridge, coordinator, and guard into a
// ready Manager.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	if b.redis == nil {
		if b.config.Store.RedisAddr == "" {
			return nil, ErrRedisRequired
		}
		b.redis = redis.NewClient(&redis.Options{
			Addr: b.config.Store.RedisAddr,
			DB:   b.config.Store.RedisDB,
		})
	}

	log := b.buildLogger()

	if b.identity == nil {
		if b.config.Identity.BaseURL == "" {
			return nil, ErrIdentityRequired
		}
		b.identity = identity.NewClient(identity.Config{
			BaseURL:           b.config.Identity.BaseURL,
			Timeout:           b.config.Identity.Timeout,
			DefaultAccessTTL:  b.config.Identity.DefaultAccessTTL,
			DefaultRefreshTTL: b.config.Identity.DefaultRefreshTTL,
		}, log)
	}

	store := session.NewStore(b.redis, b.config.Store.RecordKey, b.config.Store.RefreshThreshold, log)
	container := state.NewContainer()
	bridge := newSyncBridge(store, b.config.Store.BridgeBuffer, log)
	container.Subscribe(bridge.Listener())
	coordinator := refresh.NewCoordinator(store, b.identity, log)

	m := &Manager{
		cfg:         b.config,
		log:         log.With().Str("component", "session_manager").Logger(),
		container:   container,
		store:       store,
		identity:    b.identity,
		coordinator: coordinator,
		bridge:      bridge,
	}
	m.guard = guard.New(container, coordinator, guard.Config{
		LoginPath:        b.config.Guard.LoginPath,
		UnauthorizedPath: b.config.Guard.UnauthorizedPath,
	}, m.expiredHook, log)

	return m, nil
}

func (b *Builder) buildLogger() zerolog.Logger {
	if b.logger != nil {
		return *b.logger
	}

	level, err := zerolog.ParseLevel(b.config.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	log := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if b.config.Log.Pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: out})
	}
	return log
}
