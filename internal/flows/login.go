package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/sessionflow/internal/audit"
	"github.com/MrEthical07/sessionflow/session"
	"github.com/MrEthical07/sessionflow/users"
)

// LoginDeps captures login dependencies. The throttle functions are
// optional; CheckRate must return Errors.LoginRateLimited to reject.
type LoginDeps struct {
	Directory Directory
	Passwords Passwords
	Sessions  Sessions

	// PasswordNeedsUpgrade, when set, reports whether a stored hash was made
	// with weaker parameters. Such hashes are replaced after a successful login.
	PasswordNeedsUpgrade func(encodedHash string) (bool, error)

	CheckRate     func(ctx context.Context, username, ip string) error
	RecordFailure func(ctx context.Context, username, ip string) error
	ResetRate     func(ctx context.Context, username, ip string) error

	Hooks  Hooks
	Errors Errors
}

// RunLogin authenticates sess with a username and password and returns the
// user's public profile.
//
// Unknown usernames and wrong passwords fail identically: the password is
// verified in both cases (against a dummy hash when the user is unknown)
// and the same error is returned.
func RunLogin(ctx context.Context, sess *session.Session, username, password string, deps LoginDeps) (map[string]any, error) {
	if deps.Directory == nil || deps.Passwords == nil || deps.Sessions == nil || sess == nil {
		return nil, deps.Errors.NotReady
	}
	h := deps.Hooks.withDefaults()
	ip := h.ClientIP(ctx)

	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, username, ip); err != nil {
			if errors.Is(err, deps.Errors.LoginRateLimited) {
				h.Observe("login", ResultFailure)
				e := h.event(ctx, audit.LoginFailure, false, sess)
				e.Username = username
				e.Error = err.Error()
				e.Metadata = map[string]string{"reason": "rate_limited"}
				h.Emit(ctx, e)
			} else {
				h.Observe("login", ResultError)
			}
			return nil, err
		}
	}

	user, err := deps.Directory.Resolve(ctx, username)
	if err != nil {
		h.Observe("login", ResultError)
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	ok, verr := deps.Passwords.Verify(password, user.PasswordHash())
	if verr != nil {
		h.Warn("sessionflow: password verification failed", "username", username, "error", verr)
	}
	if !ok || user == nil {
		if deps.RecordFailure != nil {
			if err := deps.RecordFailure(ctx, username, ip); err != nil {
				h.Warn("sessionflow: login throttle update failed", "error", err)
			}
		}
		h.Observe("login", ResultFailure)
		e := h.event(ctx, audit.LoginFailure, false, sess)
		e.Username = username
		e.Error = deps.Errors.InvalidCredentials.Error()
		h.Emit(ctx, e)
		return nil, deps.Errors.InvalidCredentials
	}

	if deps.PasswordNeedsUpgrade != nil {
		upgradePassword(ctx, user, password, deps, h)
	}

	profile := user.Public()
	sess.SetUser(user.ID, profile)
	if err := deps.Sessions.Save(ctx, sess); err != nil {
		h.Observe("login", ResultError)
		return nil, fmt.Errorf("save session: %w", err)
	}

	if deps.ResetRate != nil {
		if err := deps.ResetRate(ctx, username, ip); err != nil {
			h.Warn("sessionflow: login throttle reset failed", "error", err)
		}
	}

	h.Observe("login", ResultSuccess)
	e := h.event(ctx, audit.LoginSuccess, true, sess)
	e.Username = username
	h.Emit(ctx, e)
	return profile, nil
}

// upgradePassword rehashes password with the current parameters. Failures
// are logged and never fail the login.
func upgradePassword(ctx context.Context, user *users.User, password string, deps LoginDeps, h Hooks) {
	needs, err := deps.PasswordNeedsUpgrade(user.PasswordHash())
	if err != nil {
		h.Warn("sessionflow: password upgrade check failed", "user_id", user.ID, "error", err)
		return
	}
	if !needs {
		return
	}

	hash, err := deps.Passwords.Hash(password)
	if err != nil {
		h.Warn("sessionflow: password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if user.AuthData == nil {
		user.AuthData = map[string]any{}
	}
	user.AuthData[users.AuthSimple] = hash
	if err := deps.Directory.Save(ctx, user); err != nil {
		h.Warn("sessionflow: password hash update failed", "user_id", user.ID, "error", err)
	}
}
