package sessionflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/sessionflow/password"
	"github.com/MrEthical07/sessionflow/providers"
	"github.com/MrEthical07/sessionflow/session"
	"github.com/MrEthical07/sessionflow/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Secret = testSecret
	cfg.Password = PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	cfg.OAuth2.PublicURL = "http://example.test"
	return cfg
}

type testEnv struct {
	c     *Controller
	mr    *miniredis.Miniredis
	users *users.Store
}

func newTestController(t *testing.T, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := users.Open(context.Background(), users.DriverSQLite, filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open users: %v", err)
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(store).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, opt := range opts {
		opt(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		_ = store.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &testEnv{c: c, mr: mr, users: store}
}

func (e *testEnv) freshSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := e.c.NewSession(context.Background())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return sess
}

func grumpycat() (Credentials, UserProfile) {
	return Credentials{Username: "grumpycat", Password: "hunter2"}, UserProfile{FirstName: "Grumpy", LastName: "Cat"}
}

func TestBuildRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}

	cfg := testConfig()
	cfg.Session.Secret = "short"
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithUserDirectory(&users.Store{}).Build(); err == nil {
		t.Fatal("expected config error for short secret")
	}
}

func TestRegisterThenLogin(t *testing.T) {
	env := newTestController(t, testConfig())
	ctx := context.Background()
	creds, profile := grumpycat()

	sess := env.freshSession(t)
	res, err := env.c.Register(ctx, sess, creds, profile)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User["username"] != "grumpycat" || res.User["firstName"] != "Grumpy" {
		t.Fatalf("unexpected user: %#v", res.User)
	}
	if len(res.Users) != 1 || res.Users[0] != "grumpycat" {
		t.Fatalf("unexpected users: %v", res.Users)
	}
	if !sess.Authenticated() {
		t.Fatal("register must authenticate the session")
	}

	other := env.freshSession(t)
	user, err := env.c.Login(ctx, other, creds)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user["username"] != res.User["username"] || user["lastName"] != res.User["lastName"] {
		t.Fatalf("login user %#v differs from registered %#v", user, res.User)
	}

	loaded, err := env.c.LoadSession(ctx, other.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := env.c.Whoami(loaded); got["username"] != "grumpycat" {
		t.Fatalf("whoami after login: %#v", got)
	}
}

func TestLoginFailuresShareOneMessage(t *testing.T) {
	env := newTestController(t, testConfig())
	ctx := context.Background()
	creds, profile := grumpycat()
	if _, err := env.c.Register(ctx, env.freshSession(t), creds, profile); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPw := env.c.Login(ctx, env.freshSession(t), Credentials{Username: "grumpycat", Password: "nope"})
	_, unknown := env.c.Login(ctx, env.freshSession(t), Credentials{Username: "nobody", Password: "hunter2"})

	for _, err := range []error{wrongPw, unknown} {
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if wrongPw.Error() != unknown.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPw, unknown)
	}
	fe, _ := AsFlowError(wrongPw)
	if fe.Status != http.StatusForbidden {
		t.Fatalf("status = %d", fe.Status)
	}
}

func TestLoginRejectsMissingFields(t *testing.T) {
	env := newTestController(t, testConfig())
	_, err := env.c.Login(context.Background(), env.freshSession(t), Credentials{Username: "grumpycat"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRegisterDuplicateAndReserved(t *testing.T) {
	env := newTestController(t, testConfig())
	ctx := context.Background()
	creds, profile := grumpycat()
	if _, err := env.c.Register(ctx, env.freshSession(t), creds, profile); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := env.c.Register(ctx, env.freshSession(t), Credentials{Username: "grumpycat", Password: "other"}, UserProfile{FirstName: "X", LastName: "Y"})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if err.Error() != "Username already taken: grumpycat" {
		t.Fatalf("message = %q", err.Error())
	}
	if _, err := env.c.Login(ctx, env.freshSession(t), creds); err != nil {
		t.Fatalf("first account must keep its password: %v", err)
	}

	reserved := []struct {
		name    string
		creds   Credentials
		profile UserProfile
	}{
		{"valid payload", Credentials{Username: "a:b", Password: "pw"}, profile},
		{"empty password", Credentials{Username: "a:b", Password: ""}, profile},
		{"empty profile", Credentials{Username: "a:b", Password: "pw"}, UserProfile{}},
	}
	for _, tc := range reserved {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.c.Register(ctx, env.freshSession(t), tc.creds, tc.profile)
			if !errors.Is(err, ErrReservedCharacter) {
				t.Fatalf("expected ErrReservedCharacter, got %v", err)
			}
		})
	}
	names, _ := env.c.ListUsers(ctx)
	if len(names) != 1 {
		t.Fatalf("users = %v", names)
	}
}

func TestRegisterOversizedPassword(t *testing.T) {
	env := newTestController(t, testConfig())
	ctx := context.Background()
	_, profile := grumpycat()
	sess := env.freshSession(t)

	long := strings.Repeat("x", password.DefaultMaxPasswordBytes+1)
	_, err := env.c.Register(ctx, sess, Credentials{Username: "grumpycat", Password: long}, profile)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	fe, ok := AsFlowError(err)
	if !ok || fe.Status != http.StatusBadRequest {
		t.Fatalf("expected a 400 flow error, got %#v", err)
	}
	if sess.Authenticated() {
		t.Fatal("rejected registration must not authenticate")
	}
	if names, _ := env.c.ListUsers(ctx); len(names) != 0 {
		t.Fatalf("users = %v", names)
	}
	if _, err := env.c.SeedAdmin(ctx, "admin", long); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("SeedAdmin: expected ErrInvalidRequest, got %v", err)
	}
}

func TestLoginUpgradesWeakPasswordHash(t *testing.T) {
	cfg := testConfig()
	cfg.Password.Time = 2
	cfg.Password.UpgradeOnLogin = true
	env := newTestController(t, cfg)
	ctx := context.Background()

	weak, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	if err != nil {
		t.Fatalf("weak hasher: %v", err)
	}
	oldHash, err := weak.Hash("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := env.users.Create(ctx, "grumpycat", map[string]any{"firstName": "Grumpy", "lastName": "Cat"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	u.AuthData[users.AuthSimple] = oldHash
	if err := env.users.Save(ctx, u); err != nil {
		t.Fatalf("save: %v", err)
	}

	creds, _ := grumpycat()
	if _, err := env.c.Login(ctx, env.freshSession(t), creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	stored, err := env.users.Resolve(ctx, "grumpycat")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if stored.PasswordHash() == oldHash || !strings.Contains(stored.PasswordHash(), "t=2") {
		t.Fatalf("hash not upgraded: %s", stored.PasswordHash())
	}
	if _, err := env.c.Login(ctx, env.freshSession(t), creds); err != nil {
		t.Fatalf("login with upgraded hash: %v", err)
	}
}

func TestLogoutReplacesSession(t *testing.T) {
	env := newTestController(t, testConfig())
	ctx := context.Background()
	creds, profile := grumpycat()
	sess := env.freshSession(t)
	if _, err := env.c.Register(ctx, sess, creds, profile); err != nil {
		t.Fatalf("register: %v", err)
	}

	next, err := env.c.Logout(ctx, sess)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if next.ID == sess.ID || next.Authenticated() {
		t.Fatalf("expected a fresh anonymous session, got %+v", next)
	}
	if env.c.Whoami(next) != nil {
		t.Fatal("whoami must be nil after logout")
	}
	if _, err := env.c.LoadSession(ctx, sess.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("old session still live: %v", err)
	}
	if _, err := env.c.LoadSession(ctx, next.ID); err != nil {
		t.Fatalf("new session not persisted: %v", err)
	}
}

func TestIncrementCounterPersists(t *testing.T) {
	env := newTestController(t, testConfig())
	ctx := context.Background()
	sess := env.freshSession(t)

	for want := 1; want <= 3; want++ {
		loaded, err := env.c.LoadSession(ctx, sess.ID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		got, err := env.c.IncrementCounter(ctx, loaded)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("counter = %d, want %d", got, want)
		}
	}

	fresh := env.freshSession(t)
	if got, _ := env.c.IncrementCounter(ctx, fresh); got != 1 {
		t.Fatalf("fresh session counter = %d", got)
	}
}

func TestResumeSession(t *testing.T) {
	env := newTestController(t, testConfig())
	ctx := context.Background()

	sess, created, err := env.c.ResumeSession(ctx, "")
	if err != nil || !created {
		t.Fatalf("empty id: created=%v err=%v", created, err)
	}
	again, created, err := env.c.ResumeSession(ctx, sess.ID)
	if err != nil || created || again.ID != sess.ID {
		t.Fatalf("existing id: created=%v err=%v", created, err)
	}

	env.mr.Del("sess:" + sess.ID)
	replaced, created, err := env.c.ResumeSession(ctx, sess.ID)
	if err != nil || !created || replaced.ID == sess.ID {
		t.Fatalf("expired id: created=%v err=%v", created, err)
	}

	env.mr.Set("sess:"+replaced.ID, "garbage")
	_, created, err = env.c.ResumeSession(ctx, replaced.ID)
	if err != nil || !created {
		t.Fatalf("corrupt id: created=%v err=%v", created, err)
	}
}

func TestSeedAdminAndGuards(t *testing.T) {
	env := newTestController(t, testConfig())
	ctx := context.Background()

	if _, err := env.c.SeedAdmin(ctx, "admin", "admin-pw"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := env.c.SeedAdmin(ctx, "admin", "admin-pw"); !errors.Is(err, users.ErrUsernameTaken) {
		t.Fatalf("second seed: %v", err)
	}

	anon := env.freshSession(t)
	if d := RequiresAuthentication(anon); d.Allowed || !errors.Is(d.Err, ErrNotAuthenticated) {
		t.Fatalf("anonymous passed authentication: %+v", d)
	}

	admin := env.freshSession(t)
	if _, err := env.c.Login(ctx, admin, Credentials{Username: "admin", Password: "admin-pw"}); err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if d := All(RequiresAuthentication, RequiresAdmin)(admin); !d.Allowed {
		t.Fatalf("admin denied: %v", d.Err)
	}
	if dump := env.c.Dump(admin); dump["_key"] != admin.ID || dump["uid"] == nil {
		t.Fatalf("dump: %#v", dump)
	}

	creds, profile := grumpycat()
	plain := env.freshSession(t)
	if _, err := env.c.Register(ctx, plain, creds, profile); err != nil {
		t.Fatalf("register: %v", err)
	}
	d := All(RequiresAuthentication, RequiresAdmin)(plain)
	if d.Allowed || !errors.Is(d.Err, ErrNotAnAdmin) || d.Err.Error() != "You are not an admin." {
		t.Fatalf("non-admin: %+v", d)
	}
}

func newOAuth2Server(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	exchanges := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "token_type": "bearer"})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login":"octocat","id":42}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, exchanges
}

func withOAuth2(srv *httptest.Server) func(*Builder) {
	return func(b *Builder) {
		b.config.OAuth2.Providers = []providers.Config{{
			Key:          "github",
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			AuthURL:      srv.URL + "/authorize",
			TokenURL:     srv.URL + "/token",
			UserInfoURL:  srv.URL + "/user",
		}}
		b.WithHTTPClient(srv.Client())
	}
}

func TestOAuth2RoundTrip(t *testing.T) {
	srv, exchanges := newOAuth2Server(t)
	env := newTestController(t, testConfig(), withOAuth2(srv))
	ctx := context.Background()
	sess := env.freshSession(t)

	location, err := env.c.BeginOAuth2(ctx, sess, "github")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := u.Query().Get("state"); got != sess.ID {
		t.Fatalf("state = %q", got)
	}
	if got := u.Query().Get("redirect_uri"); got != "http://example.test/oauth2/github/login" {
		t.Fatalf("redirect_uri = %q", got)
	}

	home, err := env.c.CompleteOAuth2(ctx, sess, "github", CallbackParams{Code: "good-code", State: sess.ID})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if home != "http://example.test/" {
		t.Fatalf("home = %q", home)
	}
	if sess.UserData["username"] != "github:octocat" {
		t.Fatalf("session user: %#v", sess.UserData)
	}

	stored, err := env.users.Resolve(ctx, "github:octocat")
	if err != nil || stored == nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := stored.AuthData[users.OAuth2Key("github")]; !ok {
		t.Fatalf("token blob missing: %#v", stored.AuthData)
	}
	if stored.PasswordHash() != "" {
		t.Fatal("oauth2 users must not get a password")
	}
	if exchanges.Load() != 1 {
		t.Fatalf("exchanges = %d", exchanges.Load())
	}
}

func TestOAuth2CallbackFailures(t *testing.T) {
	srv, exchanges := newOAuth2Server(t)
	env := newTestController(t, testConfig(), withOAuth2(srv))
	ctx := context.Background()
	sess := env.freshSession(t)

	if _, err := env.c.BeginOAuth2(ctx, sess, "gitlab"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("unknown provider: %v", err)
	}

	_, err := env.c.CompleteOAuth2(ctx, sess, "github", CallbackParams{Code: "good-code", State: "forged"})
	if !errors.Is(err, ErrCsrfMismatch) {
		t.Fatalf("forged state: %v", err)
	}
	if exchanges.Load() != 0 {
		t.Fatal("csrf mismatch must not reach the provider")
	}

	_, err = env.c.CompleteOAuth2(ctx, sess, "github", CallbackParams{Error: "access_denied", State: sess.ID})
	if !errors.Is(err, ErrOAuth2ProviderError) || err.Error() != "access_denied" {
		t.Fatalf("provider error: %v", err)
	}

	_, err = env.c.CompleteOAuth2(ctx, sess, "github", CallbackParams{Code: "bad-code", State: sess.ID})
	if !errors.Is(err, ErrOAuth2ExchangeFailure) {
		t.Fatalf("bad code: %v", err)
	}
	if sess.Authenticated() {
		t.Fatal("failed callback must not authenticate")
	}
}

func TestLoginThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: true, MaxAttempts: 2, Window: time.Minute}
	env := newTestController(t, cfg)
	ctx := context.Background()

	bad := Credentials{Username: "grumpycat", Password: "nope"}
	for i := 0; i < 2; i++ {
		if _, err := env.c.Login(ctx, env.freshSession(t), bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	_, err := env.c.Login(ctx, env.freshSession(t), bad)
	if !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected throttle, got %v", err)
	}
	if fe, _ := AsFlowError(err); fe.Status != http.StatusTooManyRequests {
		t.Fatalf("status = %d", fe.Status)
	}
}

func TestAuditAndMetrics(t *testing.T) {
	sink := NewChannelSink(16)
	reg := prometheus.NewRegistry()
	env := newTestController(t, testConfig(), func(b *Builder) {
		b.WithAuditSink(sink).WithMetrics(reg)
	})
	ctx := context.Background()
	creds, profile := grumpycat()

	if _, err := env.c.Register(ctx, env.freshSession(t), creds, profile); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx = WithClientIP(ctx, "203.0.113.9")
	if _, err := env.c.Login(ctx, env.freshSession(t), creds); err != nil {
		t.Fatalf("login: %v", err)
	}

	want := []string{AuditRegisterSuccess, AuditLoginSuccess}
	for _, typ := range want {
		select {
		case e := <-sink.Events():
			if e.Type != typ {
				t.Fatalf("event = %q, want %q", e.Type, typ)
			}
			if typ == AuditLoginSuccess && e.IP != "203.0.113.9" {
				t.Fatalf("ip = %q", e.IP)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}

	if got := counterValue(t, reg, "sessionflow_flow_total", map[string]string{"flow": "login", "result": "success"}); got != 1 {
		t.Fatalf("login success counter = %v", got)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
