package sessionflow

// Credentials is the login and registration payload.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserProfile is the public profile supplied at registration.
type UserProfile struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// Validate checks that both fields are present.
func (c Credentials) Validate() error {
	return validatePayload(c)
}

// Validate checks that both names are present.
func (p UserProfile) Validate() error {
	return validatePayload(p)
}

func (p UserProfile) userData() map[string]any {
	return map[string]any{
		"firstName": p.FirstName,
		"lastName":  p.LastName,
	}
}

func validatePayload(v any) error {
	if err := validate.Struct(v); err != nil {
		return invalidRequest(formatValidationErrors(err).Error())
	}
	return nil
}
