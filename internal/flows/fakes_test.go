package flows

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/MrEthical07/sessionflow/internal/audit"
	"github.com/MrEthical07/sessionflow/session"
	"github.com/MrEthical07/sessionflow/users"
)

var (
	errNotReady           = errors.New("not ready")
	errInvalidCredentials = errors.New("Invalid password or unknown username.")
	errReserved           = errors.New("Username must not contain a colon")
	errRateLimited        = errors.New("rate limited")
	errCsrf               = errors.New("CSRF mismatch")
	errNotAuthenticated   = errors.New("not authenticated")
	errNotAdmin           = errors.New("You are not an admin.")
	errDuplicate          = errors.New("duplicate")
	errUnavailable        = errors.New("provider unavailable")
	errProvider           = errors.New("provider error")
	errExchange           = errors.New("exchange failure")
	errEmptyPassword      = errors.New("empty password")
	errRejectedPassword   = errors.New("rejected password")
)

func testErrors() Errors {
	return Errors{
		NotReady:              errNotReady,
		InvalidCredentials:    errInvalidCredentials,
		ReservedCharacter:     errReserved,
		LoginRateLimited:      errRateLimited,
		CsrfMismatch:          errCsrf,
		NotAuthenticated:      errNotAuthenticated,
		NotAnAdmin:            errNotAdmin,
		DuplicateUsername:     func(u string) error { return fmt.Errorf("%w: %s", errDuplicate, u) },
		ProviderUnavailable:   func(k string) error { return fmt.Errorf("%w: %s", errUnavailable, k) },
		OAuth2ProviderError:   func(m string) error { return fmt.Errorf("%w: %s", errProvider, m) },
		OAuth2ExchangeFailure: func(c error) error { return fmt.Errorf("%w: %v", errExchange, c) },
		RejectedPassword:      rejectEmptyPassword,
	}
}

func rejectEmptyPassword(cause error) error {
	if errors.Is(cause, errEmptyPassword) {
		return fmt.Errorf("%w: %v", errRejectedPassword, cause)
	}
	return nil
}

type memDirectory struct {
	mu      sync.Mutex
	byName  map[string]*users.User
	saveErr error
	saves   int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{byName: map[string]*users.User{}}
}

func clone(u *users.User) *users.User {
	return &users.User{ID: u.ID, Username: u.Username, UserData: maps.Clone(u.UserData), AuthData: maps.Clone(u.AuthData)}
}

func (d *memDirectory) Resolve(_ context.Context, username string) (*users.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byName[username]
	if !ok {
		return nil, nil
	}
	return clone(u), nil
}

func (d *memDirectory) Create(_ context.Context, username string, userData map[string]any) (*users.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byName[username]; ok {
		return nil, fmt.Errorf("%w: %s", users.ErrUsernameTaken, username)
	}
	ud := maps.Clone(userData)
	if ud == nil {
		ud = map[string]any{}
	}
	ud["username"] = username
	u := &users.User{ID: "id-" + username, Username: username, UserData: ud, AuthData: map[string]any{}}
	d.byName[username] = u
	return clone(u), nil
}

func (d *memDirectory) Save(_ context.Context, u *users.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saveErr != nil {
		return d.saveErr
	}
	d.saves++
	d.byName[u.Username] = clone(u)
	return nil
}

func (d *memDirectory) List(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.byName))
	for n := range d.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// plainPasswords stores "hashed:<pw>" and counts verifications. It also
// accepts legacy "old:<pw>" hashes.
type plainPasswords struct {
	verifies int
}

func (p *plainPasswords) Hash(pw string) (string, error) {
	if pw == "" {
		return "", errEmptyPassword
	}
	return "hashed:" + pw, nil
}

func (p *plainPasswords) Verify(pw, hash string) (bool, error) {
	p.verifies++
	if hash == "" {
		return false, nil
	}
	return hash == "hashed:"+pw || hash == "old:"+pw, nil
}

// plainNeedsUpgrade flags the "old:" hashes plainPasswords still accepts.
func plainNeedsUpgrade(hash string) (bool, error) {
	if hash == "" {
		return false, errors.New("empty hash")
	}
	return strings.HasPrefix(hash, "old:"), nil
}

type memSessions struct {
	mu      sync.Mutex
	saved   map[string]*session.Session
	deleted []string
	next    int
	saveErr error
}

func newMemSessions() *memSessions {
	return &memSessions{saved: map[string]*session.Session{}}
}

func (s *memSessions) New() (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return &session.Session{ID: fmt.Sprintf("sid-%d", s.next), SessionData: map[string]any{}}, nil
}

func (s *memSessions) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *sess
	s.saved[sess.ID] = &cp
	return nil
}

func (s *memSessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeProvider struct {
	key        string
	exchanges  int
	fetches    int
	exchangeFn func(code string) (map[string]any, error)
	profile    map[string]any
}

func (p *fakeProvider) Key() string { return p.key }

func (p *fakeProvider) AuthCodeURL(redirectURL, state string) string {
	return "https://provider.test/authorize?redirect_uri=" + redirectURL + "&state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code, _ string) (map[string]any, error) {
	p.exchanges++
	if p.exchangeFn != nil {
		return p.exchangeFn(code)
	}
	return map[string]any{"access_token": "tok-" + code}, nil
}

func (p *fakeProvider) FetchActiveUser(context.Context, string) (map[string]any, error) {
	p.fetches++
	return maps.Clone(p.profile), nil
}

func (p *fakeProvider) Username(profile map[string]any) (string, error) {
	name, _ := profile["login"].(string)
	if name == "" {
		return "", errors.New("no login")
	}
	return name, nil
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
	obs    []string
	warns  []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Emit: func(_ context.Context, e audit.Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		},
		Observe: func(flow, result string) {
			r.mu.Lock()
			r.obs = append(r.obs, flow+"/"+result)
			r.mu.Unlock()
		},
		Warn: func(msg string, _ ...any) {
			r.mu.Lock()
			r.warns = append(r.warns, msg)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func anonymous(id string) *session.Session {
	return &session.Session{ID: id, SessionData: map[string]any{}}
}

type failingDirectory struct {
	err error
}

func (d failingDirectory) Resolve(context.Context, string) (*users.User, error) { return nil, d.err }
func (d failingDirectory) Create(context.Context, string, map[string]any) (*users.User, error) {
	return nil, d.err
}
func (d failingDirectory) Save(context.Context, *users.User) error  { return d.err }
func (d failingDirectory) List(context.Context) ([]string, error) { return nil, d.err }
