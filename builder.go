package sessionflow

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/sessionflow/cookie"
	"github.com/MrEthical07/sessionflow/internal/audit"
	"github.com/MrEthical07/sessionflow/internal/rate"
	"github.com/MrEthical07/sessionflow/password"
	"github.com/MrEthical07/sessionflow/providers"
	"github.com/MrEthical07/sessionflow/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Controller. Configure it once, then call Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory  UserDirectory
	passwords  PasswordHasher
	providers  []OAuth2Provider
	httpClient *http.Client

	auditSink  AuditSink
	logger     *slog.Logger
	registerer prometheus.Registerer

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions and the login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory sets the user store.
func (b *Builder) WithUserDirectory(d UserDirectory) *Builder {
	b.directory = d
	return b
}

// WithPasswordHasher overrides the argon2id hasher built from Config.Password.
func (b *Builder) WithPasswordHasher(p PasswordHasher) *Builder {
	b.passwords = p
	return b
}

// WithProviders overrides the providers built from Config.OAuth2.Providers.
func (b *Builder) WithProviders(ps ...OAuth2Provider) *Builder {
	b.providers = append(b.providers, ps...)
	return b
}

// WithHTTPClient sets the client used by configured OAuth2 providers.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithAuditSink sets the audit sink. Without one, events are logged.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics registers the controller's collectors with reg.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// Build validates the configuration and returns a ready Controller.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := cloneConfig(b.config)

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	signer, err := cookie.NewSigner(cookie.Config{
		Mount:  cfg.Session.Mount,
		Secret: []byte(cfg.Session.Secret),
		Secure: cfg.Session.Secure,
		MaxAge: cfg.Session.AbsoluteLifetime,
	})
	if err != nil {
		return nil, err
	}

	passwords := b.passwords
	if passwords == nil {
		passwords, err = password.NewArgon2(password.Config{
			Memory:           cfg.Password.Memory,
			Time:             cfg.Password.Time,
			Parallelism:      cfg.Password.Parallelism,
			SaltLength:       cfg.Password.SaltLength,
			KeyLength:        cfg.Password.KeyLength,
			MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("password hasher: %w", err)
		}
	}

	registry := make(map[string]OAuth2Provider)
	for _, p := range b.providers {
		if p != nil {
			registry[p.Key()] = p
		}
	}
	if len(b.providers) == 0 {
		for _, pc := range cfg.OAuth2.Providers {
			p, err := providers.New(providers.Preset(pc), providers.WithHTTPClient(b.httpClient))
			if err != nil {
				return nil, fmt.Errorf("oauth2 provider: %w", err)
			}
			registry[p.Key()] = p
			logger.Info("oauth2 provider configured", "key", p.Key(), "name", p.Name())
		}
	}

	c := &Controller{
		config:    cfg,
		logger:    logger,
		directory: b.directory,
		passwords: passwords,
		providers: registry,
		cookies:   signer,
		sessions: session.NewStore(b.redis, session.StoreConfig{
			Prefix:            cfg.Session.RedisPrefix,
			IdleTTL:           cfg.Session.IdleTTL,
			AbsoluteLifetime:  cfg.Session.AbsoluteLifetime,
			SlidingExpiration: cfg.Session.SlidingExpiration,
			JitterEnabled:     cfg.Session.JitterEnabled,
			JitterRange:       cfg.Session.JitterRange,
		}),
	}

	if cfg.RateLimit.Enabled {
		c.limiter = rate.New(b.redis, rate.Config{
			MaxAttempts:      cfg.RateLimit.MaxAttempts,
			Window:           cfg.RateLimit.Window,
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
		})
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	c.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	if b.registerer != nil {
		c.metrics = NewMetrics(b.registerer)
		c.metrics.registerAuditDropped(c.AuditDropped)
	}

	c.initFlowDeps()
	b.built = true
	return c, nil
}
