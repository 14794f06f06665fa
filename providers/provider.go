package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxProfileBytes = 1 << 20

var (
	// ErrMissingAccessToken is returned when a token response has no access token.
	ErrMissingAccessToken = errors.New("provider returned no access token")
	// ErrMissingUsername is returned when a profile lacks the username field.
	ErrMissingUsername = errors.New("provider profile has no username")
)

// Config describes one OAuth2 authorization-code provider.
type Config struct {
	Key           string   `mapstructure:"key" validate:"required,excludesall=:/"`
	Name          string   `mapstructure:"name"`
	ClientID      string   `mapstructure:"client_id" validate:"required"`
	ClientSecret  string   `mapstructure:"client_secret" validate:"required"`
	AuthURL       string   `mapstructure:"auth_url" validate:"required,url"`
	TokenURL      string   `mapstructure:"token_url" validate:"required,url"`
	UserInfoURL   string   `mapstructure:"user_info_url" validate:"required,url"`
	UsernameField string   `mapstructure:"username_field"`
	Scopes        []string `mapstructure:"scopes"`
}

// Provider wraps the authorization-code flow of a single provider.
type Provider struct {
	cfg    Config
	client *http.Client
}

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used for token exchange and profile fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// New builds a Provider from cfg.
func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg.Key = strings.TrimSpace(cfg.Key)
	if cfg.Key == "" {
		return nil, errors.New("provider key required")
	}
	if strings.Contains(cfg.Key, ":") {
		return nil, fmt.Errorf("provider key %q must not contain a colon", cfg.Key)
	}
	if cfg.ClientID == "" || cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("provider %s: client id, auth, token and user info URLs are required", cfg.Key)
	}
	if cfg.UsernameField == "" {
		cfg.UsernameField = "login"
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Key
	}

	p := &Provider{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Key returns the provider key used in routes and synthesized usernames.
func (p *Provider) Key() string { return p.cfg.Key }

// Name returns the display name.
func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.cfg.AuthURL,
			TokenURL: p.cfg.TokenURL,
		},
		RedirectURL: redirectURL,
		Scopes:      p.cfg.Scopes,
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// AuthCodeURL returns the provider's authorization URL for redirectURL and state.
func (p *Provider) AuthCodeURL(redirectURL, state string) string {
	return p.oauthConfig(redirectURL).AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and returns the token
// response as a plain map, suitable for storing as user auth data.
func (p *Provider) Exchange(ctx context.Context, code, redirectURL string) (map[string]any, error) {
	if code == "" {
		return nil, errors.New("authorization code missing")
	}
	tok, err := p.oauthConfig(redirectURL).Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p.cfg.Key, err)
	}
	if tok.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}

	out := map[string]any{
		"access_token": tok.AccessToken,
		"token_type":   tok.Type(),
	}
	if tok.RefreshToken != "" {
		out["refresh_token"] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		out["expiry"] = tok.Expiry.UTC().Format(time.RFC3339)
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		out["scope"] = scope
	}
	return out, nil
}

// FetchActiveUser loads the profile of the user owning accessToken.
func (p *Provider) FetchActiveUser(ctx context.Context, accessToken string) (map[string]any, error) {
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}
	client := p.oauthConfig("").Client(p.clientContext(ctx), &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s profile fetch: %w", p.cfg.Key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("%s profile read: %w", p.cfg.Key, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s profile fetch: status %d", p.cfg.Key, resp.StatusCode)
	}

	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var profile map[string]any
	if err := dec.Decode(&profile); err != nil {
		return nil, fmt.Errorf("%s profile decode: %w", p.cfg.Key, err)
	}
	return profile, nil
}

// Username extracts the provider-side username from profile.
func (p *Provider) Username(profile map[string]any) (string, error) {
	switch v := profile[p.cfg.UsernameField].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%w: field %q", ErrMissingUsername, p.cfg.UsernameField)
}
