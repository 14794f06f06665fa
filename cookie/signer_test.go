package cookie

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(Config{
		Mount:  "sessions",
		Secret: []byte(strings.Repeat("k", 32)),
		MaxAge: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func requestWith(cookies []*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestWriteThenRead(t *testing.T) {
	s := testSigner(t)
	rec := httptest.NewRecorder()
	if err := s.Write(rec, "sid-123"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	if cookies[0].Name != "sessions_sid" || cookies[1].Name != "sessions_sid.sig" {
		t.Fatalf("unexpected cookie names: %s, %s", cookies[0].Name, cookies[1].Name)
	}
	if !cookies[0].HttpOnly || cookies[0].SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes: %+v", cookies[0])
	}

	sid, err := s.Read(requestWith(cookies))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if sid != "sid-123" {
		t.Fatalf("expected sid-123, got %q", sid)
	}
}

func TestReadRejectsSwappedID(t *testing.T) {
	s := testSigner(t)
	rec := httptest.NewRecorder()
	if err := s.Write(rec, "sid-123"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	cookies := rec.Result().Cookies()
	cookies[0].Value = "sid-999"

	if _, err := s.Read(requestWith(cookies)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestReadRejectsForeignSecret(t *testing.T) {
	other, err := NewSigner(Config{Mount: "sessions", Secret: []byte(strings.Repeat("x", 32))})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	rec := httptest.NewRecorder()
	if err := other.Write(rec, "sid-123"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := testSigner(t).Read(requestWith(rec.Result().Cookies())); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestReadMissingCookies(t *testing.T) {
	s := testSigner(t)
	if _, err := s.Read(requestWith(nil)); !errors.Is(err, ErrMissingCookie) {
		t.Fatalf("expected ErrMissingCookie, got %v", err)
	}
	onlyID := []*http.Cookie{{Name: s.Name(), Value: "sid-123"}}
	if _, err := s.Read(requestWith(onlyID)); !errors.Is(err, ErrMissingCookie) {
		t.Fatalf("expected ErrMissingCookie, got %v", err)
	}
}

func TestNewSignerValidation(t *testing.T) {
	cases := []Config{
		{Mount: "", Secret: []byte(strings.Repeat("k", 32))},
		{Mount: "a:b", Secret: []byte(strings.Repeat("k", 32))},
		{Mount: "ok", Secret: []byte("short")},
	}
	for _, cfg := range cases {
		if _, err := NewSigner(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}
