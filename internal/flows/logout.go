package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/sessionflow/internal/audit"
	"github.com/MrEthical07/sessionflow/session"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Sessions Sessions
	Hooks    Hooks
	Errors   Errors
}

// RunLogout deletes sess, drops its user from the in-memory copy and
// returns a new, persisted anonymous session.
// Logging out an anonymous or already deleted session succeeds.
func RunLogout(ctx context.Context, sess *session.Session, deps LogoutDeps) (*session.Session, error) {
	if deps.Sessions == nil {
		return nil, deps.Errors.NotReady
	}
	h := deps.Hooks.withDefaults()

	if sess != nil {
		if err := deps.Sessions.Delete(ctx, sess.ID); err != nil {
			h.Observe("logout", ResultError)
			return nil, fmt.Errorf("delete session: %w", err)
		}
		if sess.Authenticated() {
			h.Emit(ctx, h.event(ctx, audit.Logout, true, sess))
		}
		sess.ClearUser()
	}

	fresh, err := deps.Sessions.New()
	if err != nil {
		h.Observe("logout", ResultError)
		return nil, err
	}
	if err := deps.Sessions.Save(ctx, fresh); err != nil {
		h.Observe("logout", ResultError)
		return nil, fmt.Errorf("save session: %w", err)
	}

	h.Observe("logout", ResultSuccess)
	return fresh, nil
}
