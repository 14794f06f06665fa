package sessionflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/sessionflow/providers"
)

// Config holds the controller configuration. Use DefaultConfig as a base.
type Config struct {
	Session   SessionConfig   `mapstructure:"session"`
	Password  PasswordConfig  `mapstructure:"password"`
	OAuth2    OAuth2Config    `mapstructure:"oauth2"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// SessionConfig controls session storage and the session cookies.
type SessionConfig struct {
	// Mount prefixes the cookie names.
	Mount  string `mapstructure:"mount" validate:"required,excludesall=:;"`
	Secret string `mapstructure:"secret" validate:"required,min=32"`
	Secure bool   `mapstructure:"secure"`

	RedisPrefix       string        `mapstructure:"redis_prefix" validate:"required"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl" validate:"gte=0"`
	AbsoluteLifetime  time.Duration `mapstructure:"absolute_lifetime" validate:"gte=0"`
	SlidingExpiration bool          `mapstructure:"sliding_expiration"`
	JitterEnabled     bool          `mapstructure:"jitter_enabled"`
	JitterRange       time.Duration `mapstructure:"jitter_range" validate:"gte=0"`
}

// PasswordConfig holds the argon2id cost parameters.
type PasswordConfig struct {
	Memory           uint32 `mapstructure:"memory" validate:"gte=8192"`
	Time             uint32 `mapstructure:"time" validate:"gte=1"`
	Parallelism      uint8  `mapstructure:"parallelism" validate:"gte=1"`
	SaltLength       uint32 `mapstructure:"salt_length" validate:"gte=16"`
	KeyLength        uint32 `mapstructure:"key_length" validate:"gte=16"`
	MaxPasswordBytes int    `mapstructure:"max_password_bytes" validate:"gte=0"`
	// UpgradeOnLogin rehashes passwords stored with weaker parameters.
	UpgradeOnLogin   bool   `mapstructure:"upgrade_on_login"`
}

// OAuth2Config configures the OAuth2 login flow.
type OAuth2Config struct {
	// PublicURL is the externally visible base URL of the service. Callback
	// URLs and the post-login redirect are built from it.
	PublicURL       string             `mapstructure:"public_url" validate:"required,url"`
	ExchangeTimeout time.Duration      `mapstructure:"exchange_timeout" validate:"gt=0"`
	Providers       []providers.Config `mapstructure:"providers" validate:"dive"`
}

// RateLimitConfig configures the optional login throttle.
type RateLimitConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxAttempts      int           `mapstructure:"max_attempts" validate:"required_if=Enabled true,gte=0"`
	Window           time.Duration `mapstructure:"window" validate:"gte=0"`
	EnableIPThrottle bool          `mapstructure:"enable_ip_throttle"`
}

// AuditConfig configures audit event dispatch.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" validate:"gte=0"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// DefaultConfig returns a configuration suitable for local development.
// Session.Secret is left empty and must be set.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Mount:             "sessions",
			RedisPrefix:       "sess",
			IdleTTL:           time.Hour,
			AbsoluteLifetime:  24 * time.Hour,
			SlidingExpiration: true,
			JitterRange:       30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		OAuth2: OAuth2Config{
			PublicURL:       "http://localhost:8080",
			ExchangeTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.OAuth2.Providers != nil {
		out.OAuth2.Providers = make([]providers.Config, len(cfg.OAuth2.Providers))
		for i, p := range cfg.OAuth2.Providers {
			p.Scopes = append([]string(nil), p.Scopes...)
			out.OAuth2.Providers[i] = p
		}
	}
	return out
}

// Validate checks field constraints and cross-field rules.
// Well-known providers get their endpoints filled in first.
func (c *Config) Validate() error {
	for i := range c.OAuth2.Providers {
		c.OAuth2.Providers[i] = providers.Preset(c.OAuth2.Providers[i])
	}
	if err := validate.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Session.IdleTTL == 0 && c.Session.AbsoluteLifetime == 0 {
		return errors.New("session.idle_ttl or session.absolute_lifetime must be set")
	}
	if c.Session.AbsoluteLifetime > 0 && c.Session.IdleTTL > c.Session.AbsoluteLifetime {
		return errors.New("session.idle_ttl must not exceed session.absolute_lifetime")
	}
	if c.RateLimit.Enabled && c.RateLimit.Window <= 0 {
		return errors.New("rate_limit.window must be > 0 when the throttle is enabled")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit.buffer_size must be > 0 when audit is enabled")
	}

	seen := make(map[string]struct{}, len(c.OAuth2.Providers))
	for _, p := range c.OAuth2.Providers {
		if _, dup := seen[p.Key]; dup {
			return fmt.Errorf("oauth2.providers: duplicate key %q", p.Key)
		}
		seen[p.Key] = struct{}{}
	}
	if strings.HasSuffix(c.OAuth2.PublicURL, "/") {
		c.OAuth2.PublicURL = strings.TrimRight(c.OAuth2.PublicURL, "/")
	}
	return nil
}
