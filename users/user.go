package users

import "maps"

// Auth data keys.
const (
	AuthSimple   = "simple"
	oauth2Prefix = "oauth2_"
)

// User is a directory record. UserData is the public profile and is copied
// into sessions; AuthData holds credentials and never leaves the server.
type User struct {
	ID       string
	Username string
	UserData map[string]any
	AuthData map[string]any
}

// PasswordHash returns the stored password hash, or "" when the user has none.
func (u *User) PasswordHash() string {
	if u == nil {
		return ""
	}
	h, _ := u.AuthData[AuthSimple].(string)
	return h
}

// Public returns a copy of the public profile.
func (u *User) Public() map[string]any {
	if u == nil {
		return nil
	}
	out := maps.Clone(u.UserData)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// OAuth2Key returns the userData/authData key for a provider.
func OAuth2Key(provider string) string {
	return oauth2Prefix + provider
}
