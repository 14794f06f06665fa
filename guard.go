package sessionflow

import (
	"github.com/MrEthical07/sessionflow/internal/flows"
	"github.com/MrEthical07/sessionflow/session"
)

// Predicate decides whether a request on sess may proceed.
type Predicate func(sess *session.Session) Decision

// RequiresAuthentication allows sessions with a user attached.
func RequiresAuthentication(sess *session.Session) Decision {
	return flows.RequireAuthenticated(sess, flows.Errors{NotAuthenticated: ErrNotAuthenticated})
}

// RequiresAdmin allows sessions whose user snapshot carries a truthy admin flag.
func RequiresAdmin(sess *session.Session) Decision {
	return flows.RequireAdmin(sess, flows.Errors{NotAnAdmin: ErrNotAnAdmin})
}

// All combines predicates; the first denial wins.
func All(preds ...Predicate) Predicate {
	return func(sess *session.Session) Decision {
		for _, p := range preds {
			if d := p(sess); !d.Allowed {
				return d
			}
		}
		return flows.Allow
	}
}
