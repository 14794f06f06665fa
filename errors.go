package sessionflow

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/sessionflow/password"
)

// Kind classifies an expected flow failure.
type Kind uint8

const (
	KindInvalidRequest Kind = iota + 1
	KindInvalidCredentials
	KindReservedCharacter
	KindDuplicateUsername
	KindProviderUnavailable
	KindOAuth2ProviderError
	KindCsrfMismatch
	KindOAuth2ExchangeFailure
	KindNotAuthenticated
	KindNotAnAdmin
	KindLoginRateLimited
)

var kindNames = map[Kind]string{
	KindInvalidRequest:        "InvalidRequest",
	KindInvalidCredentials:    "InvalidCredentials",
	KindReservedCharacter:     "ReservedCharacter",
	KindDuplicateUsername:     "DuplicateUsername",
	KindProviderUnavailable:   "ProviderUnavailable",
	KindOAuth2ProviderError:   "OAuth2ProviderError",
	KindCsrfMismatch:          "CsrfMismatch",
	KindOAuth2ExchangeFailure: "OAuth2ExchangeFailure",
	KindNotAuthenticated:      "NotAuthenticated",
	KindNotAnAdmin:            "NotAnAdmin",
	KindLoginRateLimited:      "LoginRateLimited",
}

var kindStatus = map[Kind]int{
	KindInvalidRequest:        http.StatusBadRequest,
	KindInvalidCredentials:    http.StatusForbidden,
	KindReservedCharacter:     http.StatusBadRequest,
	KindDuplicateUsername:     http.StatusBadRequest,
	KindProviderUnavailable:   http.StatusInternalServerError,
	KindOAuth2ProviderError:   http.StatusInternalServerError,
	KindCsrfMismatch:          http.StatusBadRequest,
	KindOAuth2ExchangeFailure: http.StatusInternalServerError,
	KindNotAuthenticated:      http.StatusUnauthorized,
	KindNotAnAdmin:            http.StatusForbidden,
	KindLoginRateLimited:      http.StatusTooManyRequests,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Status returns the HTTP status of k.
func (k Kind) Status() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FlowError is an expected failure with a user-safe message.
//
// Two FlowErrors match under errors.Is when their kinds are equal, so a
// FlowError with a detailed message still matches the sentinel of its kind.
type FlowError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func newFlowError(kind Kind, message string, cause error) *FlowError {
	return &FlowError{Kind: kind, Status: kind.Status(), Message: message, Err: cause}
}

func (e *FlowError) Error() string {
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is reports kind equality.
func (e *FlowError) Is(target error) bool {
	var t *FlowError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrInvalidRequest is returned when a payload fails validation.
	ErrInvalidRequest = newFlowError(KindInvalidRequest, "Invalid request.", nil)
	// ErrInvalidCredentials is the single login failure for unknown users and wrong passwords.
	ErrInvalidCredentials = newFlowError(KindInvalidCredentials, "Invalid password or unknown username.", nil)
	// ErrReservedCharacter is returned when a username contains ':'.
	ErrReservedCharacter = newFlowError(KindReservedCharacter, "Username must not contain a colon", nil)
	// ErrDuplicateUsername matches every duplicate registration.
	ErrDuplicateUsername = newFlowError(KindDuplicateUsername, "Username already taken", nil)
	// ErrProviderUnavailable matches every unknown-provider failure.
	ErrProviderUnavailable = newFlowError(KindProviderUnavailable, "OAuth2 provider unavailable", nil)
	// ErrOAuth2ProviderError matches errors reported by the provider on callback.
	ErrOAuth2ProviderError = newFlowError(KindOAuth2ProviderError, "OAuth2 provider error", nil)
	// ErrCsrfMismatch is returned when the callback state is not the session id.
	ErrCsrfMismatch = newFlowError(KindCsrfMismatch, "CSRF mismatch", nil)
	// ErrOAuth2ExchangeFailure matches failures between code exchange and user save.
	ErrOAuth2ExchangeFailure = newFlowError(KindOAuth2ExchangeFailure, "OAuth2 exchange failed", nil)
	// ErrNotAuthenticated is returned by RequiresAuthentication.
	ErrNotAuthenticated = newFlowError(KindNotAuthenticated, "Not authenticated.", nil)
	// ErrNotAnAdmin is returned by RequiresAdmin.
	ErrNotAnAdmin = newFlowError(KindNotAnAdmin, "You are not an admin.", nil)
	// ErrLoginRateLimited is returned when the login throttle rejects an attempt.
	ErrLoginRateLimited = newFlowError(KindLoginRateLimited, "Too many login attempts. Try again later.", nil)

	// ErrControllerNotReady is returned when a required collaborator is missing.
	ErrControllerNotReady = errors.New("sessionflow: controller not ready")
)

func duplicateUsername(username string) error {
	return newFlowError(KindDuplicateUsername, "Username already taken: "+username, nil)
}

func providerUnavailable(key string) error {
	return newFlowError(KindProviderUnavailable, "OAuth2 provider unavailable: "+key, nil)
}

func oauth2ProviderError(message string) error {
	return newFlowError(KindOAuth2ProviderError, message, nil)
}

func oauth2ExchangeFailure(cause error) error {
	return newFlowError(KindOAuth2ExchangeFailure, cause.Error(), cause)
}

func invalidRequest(message string) error {
	return newFlowError(KindInvalidRequest, message, nil)
}

// rejectedPassword maps the hasher's input errors to invalid requests and
// leaves every other hashing failure internal.
func rejectedPassword(cause error) error {
	switch {
	case errors.Is(cause, password.ErrPasswordTooLong):
		return newFlowError(KindInvalidRequest, "Password is too long.", cause)
	case errors.Is(cause, password.ErrEmptyPassword):
		return newFlowError(KindInvalidRequest, "Password is required.", cause)
	}
	return nil
}

// AsFlowError extracts the FlowError from err's chain.
func AsFlowError(err error) (*FlowError, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
