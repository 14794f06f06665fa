package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionflow/internal/audit"
	"github.com/MrEthical07/sessionflow/session"
	"github.com/MrEthical07/sessionflow/users"
)

const defaultExchangeTimeout = 10 * time.Second

// OAuth2Deps captures the OAuth2 redirect and callback dependencies.
type OAuth2Deps struct {
	Provider  func(key string) (Provider, bool)
	Directory Directory
	Sessions  Sessions

	// CallbackURL returns the redirect URI registered with provider key.
	CallbackURL func(key string) string
	// HomeURL is where a completed login is redirected to.
	HomeURL         string
	ExchangeTimeout time.Duration

	Hooks  Hooks
	Errors Errors
}

// CallbackParams are the query parameters of the provider callback.
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// RunBeginOAuth2 persists sess and returns the provider authorization URL
// with the session id as state.
func RunBeginOAuth2(ctx context.Context, sess *session.Session, key string, deps OAuth2Deps) (string, error) {
	if deps.Provider == nil || deps.Sessions == nil || deps.CallbackURL == nil || sess == nil {
		return "", deps.Errors.NotReady
	}
	h := deps.Hooks.withDefaults()

	p, ok := deps.Provider(key)
	if !ok {
		h.Observe("oauth2_begin", ResultFailure)
		return "", deps.Errors.ProviderUnavailable(key)
	}

	if err := deps.Sessions.Save(ctx, sess); err != nil {
		h.Observe("oauth2_begin", ResultError)
		return "", fmt.Errorf("save session: %w", err)
	}

	h.Observe("oauth2_begin", ResultSuccess)
	return p.AuthCodeURL(deps.CallbackURL(p.Key()), sess.ID), nil
}

// RunCompleteOAuth2 handles the provider callback and returns the URL to
// redirect to.
//
// The state check happens before any provider call. Everything from the
// code exchange up to and including the user save is reported as
// Errors.OAuth2ExchangeFailure. The session is only authenticated once the
// user record has been saved.
func RunCompleteOAuth2(ctx context.Context, sess *session.Session, key string, params CallbackParams, deps OAuth2Deps) (string, error) {
	if deps.Provider == nil || deps.Directory == nil || deps.Sessions == nil || deps.CallbackURL == nil || sess == nil {
		return "", deps.Errors.NotReady
	}
	h := deps.Hooks.withDefaults()

	p, ok := deps.Provider(key)
	if !ok {
		h.Observe("oauth2_callback", ResultFailure)
		return "", deps.Errors.ProviderUnavailable(key)
	}

	if params.Error != "" {
		err := deps.Errors.OAuth2ProviderError(params.Error)
		h.Observe("oauth2_callback", ResultFailure)
		e := h.event(ctx, audit.OAuth2LoginFailure, false, sess)
		e.Provider = key
		e.Error = params.Error
		h.Emit(ctx, e)
		return "", err
	}

	if params.State == "" || params.State != sess.ID {
		h.Observe("oauth2_callback", ResultFailure)
		e := h.event(ctx, audit.CsrfMismatch, false, sess)
		e.Provider = key
		h.Emit(ctx, e)
		return "", deps.Errors.CsrfMismatch
	}

	timeout := deps.ExchangeTimeout
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}
	xctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	user, err := linkProviderAccount(xctx, p, params.Code, deps)
	if err != nil {
		h.Observe("oauth2_callback", ResultFailure)
		e := h.event(ctx, audit.OAuth2LoginFailure, false, sess)
		e.Provider = key
		e.Error = err.Error()
		h.Emit(ctx, e)
		return "", deps.Errors.OAuth2ExchangeFailure(err)
	}

	sess.SetUser(user.ID, user.Public())
	if err := deps.Sessions.Save(ctx, sess); err != nil {
		h.Observe("oauth2_callback", ResultError)
		return "", fmt.Errorf("save session: %w", err)
	}

	h.Observe("oauth2_callback", ResultSuccess)
	e := h.event(ctx, audit.OAuth2LoginSuccess, true, sess)
	e.Provider = key
	e.Username = user.Username
	h.Emit(ctx, e)

	home := deps.HomeURL
	if home == "" {
		home = "/"
	}
	return home, nil
}

// linkProviderAccount exchanges code, fetches the profile and stores both
// on the "<key>:<provider username>" user, creating it when needed.
func linkProviderAccount(ctx context.Context, p Provider, code string, deps OAuth2Deps) (*users.User, error) {
	key := p.Key()

	token, err := p.Exchange(ctx, code, deps.CallbackURL(key))
	if err != nil {
		return nil, err
	}
	accessToken, _ := token["access_token"].(string)

	profile, err := p.FetchActiveUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	remoteName, err := p.Username(profile)
	if err != nil {
		return nil, err
	}
	username := key + ":" + remoteName

	user, err := deps.Directory.Resolve(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = deps.Directory.Create(ctx, username, nil)
		if errors.Is(err, users.ErrUsernameTaken) {
			// Lost a race with a concurrent first login.
			user, err = deps.Directory.Resolve(ctx, username)
			if err == nil && user == nil {
				err = users.ErrNotFound
			}
		}
		if err != nil {
			return nil, err
		}
	}

	if user.UserData == nil {
		user.UserData = map[string]any{}
	}
	if user.AuthData == nil {
		user.AuthData = map[string]any{}
	}
	user.UserData[users.OAuth2Key(key)] = profile
	user.AuthData[users.OAuth2Key(key)] = token

	if err := deps.Directory.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
