package flows

import (
	"encoding/json"

	"github.com/MrEthical07/sessionflow/session"
)

// Decision is the outcome of an access predicate. Err is set iff Allowed
// is false.
type Decision struct {
	Allowed bool
	Err     error
}

// Allow is the passing decision.
var Allow = Decision{Allowed: true}

// Deny returns a failing decision carrying err.
func Deny(err error) Decision {
	return Decision{Err: err}
}

// RequireAuthenticated passes iff a user is attached to sess.
func RequireAuthenticated(sess *session.Session, errs Errors) Decision {
	if !sess.Authenticated() {
		return Deny(errs.NotAuthenticated)
	}
	return Allow
}

// RequireAdmin passes iff the session's user snapshot has a truthy admin flag.
func RequireAdmin(sess *session.Session, errs Errors) Decision {
	if sess == nil || !truthy(sess.UserData["admin"]) {
		return Deny(errs.NotAnAdmin)
	}
	return Allow
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}
