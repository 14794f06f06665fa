package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/MrEthical07/sessionflow"
	"github.com/MrEthical07/sessionflow/session"
)

// ErrorWriter renders err as the response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type sessionContextKey struct{}

// SessionFromContext returns the session stored by [Session].
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// Session loads the request's session. A missing or badly signed cookie,
// or an id with no live record, yields a new anonymous session whose
// cookies are set on the response.
func Session(c *sessionflow.Controller, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookies := c.Cookies()
			sid, _ := cookies.Read(r)

			sess, created, err := c.ResumeSession(r.Context(), sid)
			if err != nil {
				onError(w, r, err)
				return
			}
			if created {
				if err := cookies.Write(w, sess.ID); err != nil {
					onError(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// Guard runs preds in order against the request's session. The first
// denial is written through onError and the handler is skipped.
func Guard(onError ErrorWriter, preds ...sessionflow.Predicate) func(http.Handler) http.Handler {
	check := sessionflow.All(preds...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := SessionFromContext(r.Context())
			if d := check(sess); !d.Allowed {
				onError(w, r, d.Err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientInfo attaches the remote IP and User-Agent to the request context.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx := sessionflow.WithClientIP(r.Context(), host)
		ctx = sessionflow.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
