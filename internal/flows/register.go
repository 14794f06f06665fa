package flows

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/MrEthical07/sessionflow/internal/audit"
	"github.com/MrEthical07/sessionflow/session"
	"github.com/MrEthical07/sessionflow/users"
)

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Directory Directory
	Passwords Passwords
	Sessions  Sessions

	Hooks  Hooks
	Errors Errors
}

// RegisterResult is the public profile of the new user plus every
// registered username.
type RegisterResult struct {
	User  map[string]any
	Users []string
}

// RunRegister creates a password account, authenticates sess as the new
// user and returns the result.
//
// Unlike login, a taken username is reported as such.
func RunRegister(ctx context.Context, sess *session.Session, username, password string, profile map[string]any, deps RegisterDeps) (*RegisterResult, error) {
	if deps.Directory == nil || deps.Passwords == nil || deps.Sessions == nil || sess == nil {
		return nil, deps.Errors.NotReady
	}
	h := deps.Hooks.withDefaults()

	// ':' separates provider key and provider username in OAuth2 accounts.
	if strings.Contains(username, ":") {
		h.Observe("register", ResultFailure)
		return nil, deps.Errors.ReservedCharacter
	}

	hash, err := deps.Passwords.Hash(password)
	if err != nil {
		if deps.Errors.RejectedPassword != nil {
			if rejected := deps.Errors.RejectedPassword(err); rejected != nil {
				h.Observe("register", ResultFailure)
				return nil, rejected
			}
		}
		h.Observe("register", ResultError)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := deps.Directory.Create(ctx, username, maps.Clone(profile))
	if err != nil {
		if errors.Is(err, users.ErrUsernameTaken) {
			h.Observe("register", ResultFailure)
			e := h.event(ctx, audit.RegisterDuplicate, false, sess)
			e.Username = username
			h.Emit(ctx, e)
			return nil, deps.Errors.DuplicateUsername(username)
		}
		h.Observe("register", ResultError)
		return nil, err
	}

	user.AuthData[users.AuthSimple] = hash
	if err := deps.Directory.Save(ctx, user); err != nil {
		h.Observe("register", ResultError)
		return nil, fmt.Errorf("save user: %w", err)
	}

	public := user.Public()
	sess.SetUser(user.ID, public)
	if err := deps.Sessions.Save(ctx, sess); err != nil {
		h.Observe("register", ResultError)
		return nil, fmt.Errorf("save session: %w", err)
	}

	names, err := deps.Directory.List(ctx)
	if err != nil {
		h.Observe("register", ResultError)
		return nil, fmt.Errorf("list users: %w", err)
	}

	h.Observe("register", ResultSuccess)
	e := h.event(ctx, audit.RegisterSuccess, true, sess)
	e.Username = username
	h.Emit(ctx, e)
	return &RegisterResult{User: public, Users: names}, nil
}
