package sessionflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/sessionflow/cookie"
	"github.com/MrEthical07/sessionflow/internal/audit"
	"github.com/MrEthical07/sessionflow/internal/flows"
	"github.com/MrEthical07/sessionflow/internal/rate"
	"github.com/MrEthical07/sessionflow/session"
	"github.com/MrEthical07/sessionflow/users"
)

// Controller runs the session and identity flows. It is safe for
// concurrent use once built.
type Controller struct {
	config    Config
	logger    *slog.Logger
	directory UserDirectory
	passwords PasswordHasher
	providers map[string]OAuth2Provider
	sessions  *session.Store
	cookies   *cookie.Signer
	limiter   *rate.Limiter
	audit     *audit.Dispatcher
	metrics   *Metrics

	flowErrors flows.Errors
	hooks      flows.Hooks
}

func (c *Controller) initFlowDeps() {
	c.flowErrors = flows.Errors{
		NotReady:              ErrControllerNotReady,
		InvalidCredentials:    ErrInvalidCredentials,
		ReservedCharacter:     ErrReservedCharacter,
		LoginRateLimited:      ErrLoginRateLimited,
		CsrfMismatch:          ErrCsrfMismatch,
		NotAuthenticated:      ErrNotAuthenticated,
		NotAnAdmin:            ErrNotAnAdmin,
		DuplicateUsername:     duplicateUsername,
		ProviderUnavailable:   providerUnavailable,
		OAuth2ProviderError:   oauth2ProviderError,
		OAuth2ExchangeFailure: oauth2ExchangeFailure,
		RejectedPassword:      rejectedPassword,
	}
	c.hooks = flows.Hooks{
		Emit:      c.audit.Emit,
		Observe:   c.metrics.ObserveFlow,
		Warn:      c.logger.Warn,
		ClientIP:  clientIPFromContext,
		UserAgent: userAgentFromContext,
	}
}

// Close flushes pending audit events.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.audit.Close()
}

// AuditDropped returns how many audit events were dropped.
func (c *Controller) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// Config returns a copy of the active configuration.
func (c *Controller) Config() Config {
	return cloneConfig(c.config)
}

// Cookies returns the session cookie signer.
func (c *Controller) Cookies() *cookie.Signer {
	return c.cookies
}

// Metrics returns the controller's collectors, or nil when metrics are off.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// Ping checks the session store.
func (c *Controller) Ping(ctx context.Context) error {
	_, err := c.sessions.Ping(ctx)
	return err
}

func (c *Controller) callbackURL(key string) string {
	return c.config.OAuth2.PublicURL + "/oauth2/" + key + "/login"
}

func (c *Controller) provider(key string) (flows.Provider, bool) {
	p, ok := c.providers[key]
	return p, ok
}

// Login authenticates sess with creds and returns the user's public profile.
func (c *Controller) Login(ctx context.Context, sess *session.Session, creds Credentials) (map[string]any, error) {
	if err := creds.Validate(); err != nil {
		c.metrics.ObserveFlow("login", flows.ResultFailure)
		return nil, err
	}

	deps := flows.LoginDeps{
		Directory: c.directory,
		Passwords: c.passwords,
		Sessions:  c.sessions,
		Hooks:     c.hooks,
		Errors:    c.flowErrors,
	}
	if uc, ok := c.passwords.(upgradeChecker); ok && c.config.Password.UpgradeOnLogin {
		deps.PasswordNeedsUpgrade = uc.NeedsUpgrade
	}
	if c.limiter != nil {
		deps.CheckRate = func(ctx context.Context, username, ip string) error {
			if err := c.limiter.Check(ctx, username, ip); err != nil {
				if errors.Is(err, rate.ErrRateLimited) {
					return ErrLoginRateLimited
				}
				return err
			}
			return nil
		}
		deps.RecordFailure = c.limiter.RecordFailure
		deps.ResetRate = c.limiter.Reset
	}

	return flows.RunLogin(ctx, sess, creds.Username, creds.Password, deps)
}

// Register creates a password account and authenticates sess as it.
func (c *Controller) Register(ctx context.Context, sess *session.Session, creds Credentials, profile UserProfile) (*RegisterResult, error) {
	// A colon in the username wins over every payload error.
	if strings.Contains(creds.Username, ":") {
		c.metrics.ObserveFlow("register", flows.ResultFailure)
		return nil, ErrReservedCharacter
	}
	if err := creds.Validate(); err != nil {
		c.metrics.ObserveFlow("register", flows.ResultFailure)
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		c.metrics.ObserveFlow("register", flows.ResultFailure)
		return nil, err
	}

	return flows.RunRegister(ctx, sess, creds.Username, creds.Password, profile.userData(), flows.RegisterDeps{
		Directory: c.directory,
		Passwords: c.passwords,
		Sessions:  c.sessions,
		Hooks:     c.hooks,
		Errors:    c.flowErrors,
	})
}

func (c *Controller) oauth2Deps() flows.OAuth2Deps {
	return flows.OAuth2Deps{
		Provider:        c.provider,
		Directory:       c.directory,
		Sessions:        c.sessions,
		CallbackURL:     c.callbackURL,
		HomeURL:         c.config.OAuth2.PublicURL + "/",
		ExchangeTimeout: c.config.OAuth2.ExchangeTimeout,
		Hooks:           c.hooks,
		Errors:          c.flowErrors,
	}
}

// BeginOAuth2 returns the authorization URL of providerKey, bound to sess.
func (c *Controller) BeginOAuth2(ctx context.Context, sess *session.Session, providerKey string) (string, error) {
	return flows.RunBeginOAuth2(ctx, sess, providerKey, c.oauth2Deps())
}

// CompleteOAuth2 handles the provider callback and returns the URL to
// redirect the client to.
func (c *Controller) CompleteOAuth2(ctx context.Context, sess *session.Session, providerKey string, params CallbackParams) (string, error) {
	return flows.RunCompleteOAuth2(ctx, sess, providerKey, params, c.oauth2Deps())
}

// Logout deletes sess and returns a fresh anonymous session.
func (c *Controller) Logout(ctx context.Context, sess *session.Session) (*session.Session, error) {
	return flows.RunLogout(ctx, sess, flows.LogoutDeps{
		Sessions: c.sessions,
		Hooks:    c.hooks,
		Errors:   c.flowErrors,
	})
}

// IncrementCounter bumps and returns the session counter.
func (c *Controller) IncrementCounter(ctx context.Context, sess *session.Session) (int, error) {
	n, err := flows.RunIncrementCounter(ctx, sess, c.sessions)
	if err != nil {
		c.metrics.ObserveFlow("counter", flows.ResultError)
		return 0, err
	}
	c.metrics.ObserveFlow("counter", flows.ResultSuccess)
	return n, nil
}

// Whoami returns the session's user snapshot, or nil for an anonymous session.
func (c *Controller) Whoami(sess *session.Session) map[string]any {
	if !sess.Authenticated() {
		return nil
	}
	if sess.UserData == nil {
		return map[string]any{}
	}
	return sess.UserData
}

// ListUsers returns every registered username.
func (c *Controller) ListUsers(ctx context.Context) ([]string, error) {
	names, err := c.directory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return names, nil
}

// Dump returns the full client view of sess.
func (c *Controller) Dump(sess *session.Session) map[string]any {
	return sess.ForClient()
}

// LoadSession returns the live session with id, or session.ErrSessionNotFound.
func (c *Controller) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	return c.sessions.Get(ctx, id)
}

// NewSession creates and persists an anonymous session.
func (c *Controller) NewSession(ctx context.Context) (*session.Session, error) {
	sess, err := c.sessions.New()
	if err != nil {
		return nil, err
	}
	if err := c.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ResumeSession loads the session with id, or creates a new one when id is
// empty or no longer live. created reports which happened.
func (c *Controller) ResumeSession(ctx context.Context, id string) (sess *session.Session, created bool, err error) {
	if id != "" {
		sess, err = c.LoadSession(ctx, id)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) && !errors.Is(err, session.ErrSessionCorrupt) {
			return nil, false, err
		}
		if errors.Is(err, session.ErrSessionCorrupt) {
			c.logger.Warn("discarding corrupt session", "error", err)
		}
	}
	sess, err = c.NewSession(ctx)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// SeedAdmin creates an admin account with the given password. It fails
// with an error wrapping users.ErrUsernameTaken when the user exists.
func (c *Controller) SeedAdmin(ctx context.Context, username, pw string) (*users.User, error) {
	if err := (Credentials{Username: username, Password: pw}).Validate(); err != nil {
		return nil, err
	}
	hash, err := c.passwords.Hash(pw)
	if err != nil {
		if rejected := rejectedPassword(err); rejected != nil {
			return nil, rejected
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := c.directory.Create(ctx, username, map[string]any{
		"firstName": "Admin",
		"lastName":  "Admin",
		"admin":     true,
	})
	if err != nil {
		return nil, err
	}
	u.AuthData[users.AuthSimple] = hash
	if err := c.directory.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	c.logger.Info("admin user created", "username", username)
	return u, nil
}
