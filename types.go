package sessionflow

import (
	"context"

	"github.com/MrEthical07/sessionflow/internal/flows"
	"github.com/MrEthical07/sessionflow/users"
)

// UserDirectory stores user records. Resolve returns (nil, nil) for an
// unknown username; Create returns an error wrapping users.ErrUsernameTaken
// when the name exists.
type UserDirectory interface {
	Resolve(ctx context.Context, username string) (*users.User, error)
	Create(ctx context.Context, username string, userData map[string]any) (*users.User, error)
	Save(ctx context.Context, u *users.User) error
	List(ctx context.Context) ([]string, error)
}

// PasswordHasher hashes and verifies passwords. Verify must do the same
// work for an empty hash as for a real one and report false.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// upgradeChecker is implemented by hashers that can tell when a stored hash
// was made with weaker parameters. *password.Argon2 implements it.
type upgradeChecker interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

// OAuth2Provider is an authorization-code provider. *providers.Provider
// implements it.
type OAuth2Provider interface {
	Key() string
	AuthCodeURL(redirectURL, state string) string
	Exchange(ctx context.Context, code, redirectURL string) (map[string]any, error)
	FetchActiveUser(ctx context.Context, accessToken string) (map[string]any, error)
	Username(profile map[string]any) (string, error)
}

// Decision is the result of an access predicate.
type Decision = flows.Decision

// CallbackParams are the OAuth2 callback query parameters.
type CallbackParams = flows.CallbackParams

// RegisterResult is returned by Controller.Register.
type RegisterResult = flows.RegisterResult
