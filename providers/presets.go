package providers

// Preset fills the well-known endpoints for key when cfg leaves them empty.
// Unknown keys are returned unchanged.
func Preset(cfg Config) Config {
	var p Config
	switch cfg.Key {
	case "github":
		p = Config{
			Name:          "GitHub",
			AuthURL:       "https://github.com/login/oauth/authorize",
			TokenURL:      "https://github.com/login/oauth/access_token",
			UserInfoURL:   "https://api.github.com/user",
			UsernameField: "login",
			Scopes:        []string{"read:user"},
		}
	case "google":
		p = Config{
			Name:          "Google",
			AuthURL:       "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:      "https://oauth2.googleapis.com/token",
			UserInfoURL:   "https://openidconnect.googleapis.com/v1/userinfo",
			UsernameField: "email",
			Scopes:        []string{"openid", "email", "profile"},
		}
	default:
		return cfg
	}

	if cfg.Name == "" {
		cfg.Name = p.Name
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = p.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = p.TokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = p.UserInfoURL
	}
	if cfg.UsernameField == "" {
		cfg.UsernameField = p.UsernameField
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = p.Scopes
	}
	return cfg
}
