package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/sessionflow"
	"github.com/MrEthical07/sessionflow/middleware"
	"github.com/MrEthical07/sessionflow/session"
)

type registerRequest struct {
	sessionflow.Credentials
	sessionflow.UserProfile
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		s.writeError(w, r, sessionflow.ErrControllerNotReady)
	}
	return sess, ok
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var creds sessionflow.Credentials
	if err := decodeBody(w, r, &creds); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.c.Login(r.Context(), sess, creds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.c.Register(r.Context(), sess, req.Credentials, req.UserProfile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": res.User, "users": res.Users})
}

func (s *server) handleUsers(w http.ResponseWriter, r *http.Request) {
	names, err := s.c.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": names})
}

func (s *server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": s.c.Whoami(sess)})
}

func (s *server) handleCounter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	n, err := s.c.IncrementCounter(r.Context(), sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counter": n})
}

func (s *server) handleDump(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.c.Dump(sess))
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	next, err := s.c.Logout(r.Context(), sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.c.Cookies().Write(w, next.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *server) handleOAuth2Begin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	location, err := s.c.BeginOAuth2(r.Context(), sess, r.PathValue("provider"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (s *server) handleOAuth2Callback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	location, err := s.c.CompleteOAuth2(r.Context(), sess, r.PathValue("provider"), sessionflow.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.c.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
