package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionflow/internal/audit"
	"github.com/MrEthical07/sessionflow/session"
	"github.com/MrEthical07/sessionflow/users"
)

// Directory is the user store as seen by the flows.
type Directory interface {
	Resolve(ctx context.Context, username string) (*users.User, error)
	Create(ctx context.Context, username string, userData map[string]any) (*users.User, error)
	Save(ctx context.Context, u *users.User) error
	List(ctx context.Context) ([]string, error)
}

// Passwords hashes and verifies passwords. Verify with an empty hash must
// still do the full amount of work and report false.
type Passwords interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Sessions persists session state.
type Sessions interface {
	New() (*session.Session, error)
	Save(ctx context.Context, sess *session.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// Provider is one OAuth2 authorization-code provider.
type Provider interface {
	Key() string
	AuthCodeURL(redirectURL, state string) string
	Exchange(ctx context.Context, code, redirectURL string) (map[string]any, error)
	FetchActiveUser(ctx context.Context, accessToken string) (map[string]any, error)
	Username(profile map[string]any) (string, error)
}

// Errors carries the host-level errors returned by the flows. The
// constructors receive the detail that ends up in the user-facing message.
type Errors struct {
	NotReady           error
	InvalidCredentials error
	ReservedCharacter  error
	LoginRateLimited   error
	CsrfMismatch       error
	NotAuthenticated   error
	NotAnAdmin         error

	DuplicateUsername     func(username string) error
	ProviderUnavailable   func(key string) error
	OAuth2ProviderError   func(message string) error
	OAuth2ExchangeFailure func(cause error) error

	// RejectedPassword classifies a Passwords.Hash error. It returns the
	// client-facing error for an unacceptable plaintext and nil otherwise.
	RejectedPassword func(cause error) error
}

// Hooks are the side channels every flow reports to. All fields are optional.
type Hooks struct {
	Emit      func(context.Context, audit.Event)
	Observe   func(flow, result string)
	Warn      func(msg string, args ...any)
	ClientIP  func(context.Context) string
	UserAgent func(context.Context) string
	Now       func() time.Time
}

// Flow results reported through Hooks.Observe.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

func (h Hooks) withDefaults() Hooks {
	if h.Emit == nil {
		h.Emit = func(context.Context, audit.Event) {}
	}
	if h.Observe == nil {
		h.Observe = func(string, string) {}
	}
	if h.Warn == nil {
		h.Warn = func(string, ...any) {}
	}
	if h.ClientIP == nil {
		h.ClientIP = func(context.Context) string { return "" }
	}
	if h.UserAgent == nil {
		h.UserAgent = func(context.Context) string { return "" }
	}
	if h.Now == nil {
		h.Now = time.Now
	}
	return h
}

// event prepares an audit event with request and session context filled in.
func (h Hooks) event(ctx context.Context, eventType string, success bool, sess *session.Session) audit.Event {
	e := audit.Event{
		Timestamp: h.Now(),
		Type:      eventType,
		Success:   success,
		IP:        h.ClientIP(ctx),
		UserAgent: h.UserAgent(ctx),
	}
	if sess != nil {
		e.SessionID = sess.ID
		e.UserID = sess.UID
	}
	return e
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
