package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	minSecretBytes = 32
	issuer         = "sessionflow"
)

var (
	// ErrMissingCookie is returned when either session cookie is absent.
	ErrMissingCookie = errors.New("session cookie missing")
	// ErrBadSignature is returned when the signature cookie does not bind the id cookie.
	ErrBadSignature = errors.New("session cookie signature invalid")
)

// Config controls cookie naming and attributes.
type Config struct {
	// Mount prefixes both cookie names: "<mount>_sid" and "<mount>_sid.sig".
	Mount    string
	Secret   []byte
	Path     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
	Leeway   time.Duration
}

// Signer writes and reads the session id cookie pair. The id travels in
// plain form; its companion ".sig" cookie carries an HS256 JWS whose sid
// claim must equal the id.
type Signer struct {
	config Config
}

type sidClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg Config) (*Signer, error) {
	cfg.Mount = strings.TrimSpace(cfg.Mount)
	if cfg.Mount == "" {
		return nil, errors.New("cookie mount name required")
	}
	if strings.ContainsAny(cfg.Mount, " ;,=:\"\\/()<>@[]?{}\t") {
		return nil, fmt.Errorf("cookie mount name %q contains separator characters", cfg.Mount)
	}
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("cookie secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &Signer{config: cfg}, nil
}

// Name returns the id cookie name.
func (s *Signer) Name() string { return s.config.Mount + "_sid" }

// SigName returns the signature cookie name.
func (s *Signer) SigName() string { return s.Name() + ".sig" }

// Sign returns the signature token for sid.
func (s *Signer) Sign(sid string) (string, error) {
	now := time.Now()
	claims := sidClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.config.MaxAge > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.config.MaxAge))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
}

// Verify checks that sig is a valid signature for sid.
func (s *Signer) Verify(sid, sig string) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(sig, &sidClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.config.Secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	claims, ok := token.Claims.(*sidClaims)
	if !ok || !token.Valid || claims.SID == "" || claims.SID != sid {
		return ErrBadSignature
	}
	return nil
}

// Read returns the verified session id carried by r.
func (s *Signer) Read(r *http.Request) (string, error) {
	idCookie, err := r.Cookie(s.Name())
	if err != nil || idCookie.Value == "" {
		return "", ErrMissingCookie
	}
	sigCookie, err := r.Cookie(s.SigName())
	if err != nil || sigCookie.Value == "" {
		return "", ErrMissingCookie
	}
	if err := s.Verify(idCookie.Value, sigCookie.Value); err != nil {
		return "", err
	}
	return idCookie.Value, nil
}

// Write sets both cookies for sid, overwriting any previous pair.
func (s *Signer) Write(w http.ResponseWriter, sid string) error {
	sig, err := s.Sign(sid)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(s.Name(), sid))
	http.SetCookie(w, s.cookie(s.SigName(), sig))
	return nil
}

func (s *Signer) cookie(name, value string) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.config.Path,
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: s.config.SameSite,
	}
	if s.config.MaxAge > 0 {
		c.MaxAge = int(s.config.MaxAge.Seconds())
	}
	return c
}
