package keygate

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/keygatelabs/keygate/internal/limiters"
	"github.com/keygatelabs/keygate/internal/stores"
	"github.com/keygatelabs/keygate/keys"
	"github.com/keygatelabs/keygate/rbac"
	"github.com/keygatelabs/keygate/token"
)

// Builder assembles an [Engine]. Builders are single-use: Build consumes
// the builder and further calls on it fail.
//
//	engine, err := keygate.New().
//		WithRedis(client).
//		WithIdentityStore(store).
//		Build()
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	identities IdentityStore
	keyStore   keys.Store
	notifier   Notifier
	auditSink  AuditSink
	err        error
	built      bool
}

// New starts a Builder with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration. Call it before the other
// With methods that read config fields.
func (b *Builder) WithConfig(cfg Config) *Builder {
	if b.err != nil {
		return b
	}
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing challenges, rate limits, and the
// default key store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	if b.err != nil {
		return b
	}
	if client == nil {
		b.err = errors.New("nil redis client")
		return b
	}
	b.redis = client
	return b
}

// WithIdentityStore sets the external identity persistence.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	if b.err != nil {
		return b
	}
	if store == nil {
		b.err = errors.New("nil identity store")
		return b
	}
	b.identities = store
	return b
}

// WithKeyStore overrides the default Redis-backed key store.
func (b *Builder) WithKeyStore(store keys.Store) *Builder {
	if b.err != nil {
		return b
	}
	if store == nil {
		b.err = errors.New("nil key store")
		return b
	}
	b.keyStore = store
	return b
}

// WithNotifier sets the out-of-band code delivery. Defaults to
// [NoOpNotifier].
func (b *Builder) WithNotifier(n Notifier) *Builder {
	if b.err != nil {
		return b
	}
	if n == nil {
		b.err = errors.New("nil notifier")
		return b
	}
	b.notifier = n
	return b
}

// WithAuditSink sets the audit event destination. Without one, events go to
// [NoOpSink] when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if b.err != nil {
		return b
	}
	if sink == nil {
		b.err = errors.New("nil audit sink")
		return b
	}
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	if b.err != nil {
		return b
	}
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every component, and returns the
// ready Engine. The builder cannot be reused afterward.
func (b *Builder) Build() (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := b.config

	// An ed25519 key pair is generated when none is supplied. Tokens then
	// survive only as long as the process, which is the right default for
	// tests and single-node deployments.
	if token.SigningMethod(cfg.Token.SigningMethod) == token.MethodEd25519 && len(cfg.Token.PrivateKey) == 0 {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate token key pair: %w", err)
		}
		cfg.Token.PrivateKey = priv
		cfg.Token.PublicKey = pub
	}

	tokens, err := token.NewManager(token.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	rules := cfg.Routes.Rules
	if len(rules) == 0 {
		rules = rbac.DefaultRouteRules()
	}
	public := cfg.Routes.Public
	if len(public) == 0 {
		public = rbac.DefaultPublicRoutes()
	}
	perms := rbac.NewWithRoutes(rules, public)

	keyStore := b.keyStore
	if keyStore == nil {
		keyStore = keys.NewRedisStore(b.redis, cfg.Keys.RedisPrefix)
	}

	var requests *limiters.RequestLimiter
	if cfg.OTP.RequestLimit > 0 {
		requests = limiters.NewRequestLimiter(b.redis, limiters.RequestConfig{
			Max:    cfg.OTP.RequestLimit,
			Window: cfg.OTP.RequestWindow,
		}, cfg.OTP.RedisPrefix)
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	return &Engine{
		config:     cfg,
		perms:      perms,
		tokens:     tokens,
		challenges: stores.NewChallengeStore(b.redis, cfg.OTP.RedisPrefix),
		requests:   requests,
		guard:      newAccountGuard(b.identities, cfg.Lockout),
		keyService: keys.NewService(keyStore, perms),
		identities: b.identities,
		notifier:   notifier,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    newMetrics(cfg.Metrics),
	}, nil
}
