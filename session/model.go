package session

import "maps"

// Session is the server-side state behind one session cookie.
//
// UID is non-empty iff the session is authenticated. UserData is a snapshot of
// the user's public profile taken when the session was authenticated; it is
// not refreshed when the user record changes later.
type Session struct {
	ID          string         `json:"-"`
	UID         string         `json:"uid,omitempty"`
	UserData    map[string]any `json:"userData,omitempty"`
	SessionData map[string]any `json:"sessionData,omitempty"`

	CreatedAt  int64 `json:"created"`
	LastAccess int64 `json:"lastAccess"`
	ExpiresAt  int64 `json:"expires"`

	SchemaVersion uint8 `json:"-"`
}

// Authenticated reports whether a user is attached to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.UID != ""
}

// SetUser attaches uid and a copy of userData to the session. The username,
// when present, is also mirrored into SessionData for display.
func (s *Session) SetUser(uid string, userData map[string]any) {
	s.UID = uid
	s.UserData = maps.Clone(userData)
	if s.UserData == nil {
		s.UserData = map[string]any{}
	}
	if name, ok := userData["username"].(string); ok && name != "" {
		s.Set("username", name)
	}
}

// ClearUser detaches the user identity while keeping the session id.
func (s *Session) ClearUser() {
	s.UID = ""
	s.UserData = nil
	delete(s.SessionData, "username")
}

// Get returns a SessionData value.
func (s *Session) Get(key string) (any, bool) {
	if s == nil || s.SessionData == nil {
		return nil, false
	}
	v, ok := s.SessionData[key]
	return v, ok
}

// Set stores a SessionData value.
func (s *Session) Set(key string, value any) {
	if s.SessionData == nil {
		s.SessionData = map[string]any{}
	}
	s.SessionData[key] = value
}

// ForClient returns the full session object as exposed to clients.
func (s *Session) ForClient() map[string]any {
	out := map[string]any{
		"_key":        s.ID,
		"uid":         nil,
		"userData":    nil,
		"sessionData": maps.Clone(s.SessionData),
		"created":     s.CreatedAt,
		"lastAccess":  s.LastAccess,
	}
	if s.UID != "" {
		out["uid"] = s.UID
	}
	if s.UserData != nil {
		out["userData"] = maps.Clone(s.UserData)
	}
	if out["sessionData"] == nil {
		out["sessionData"] = map[string]any{}
	}
	return out
}
