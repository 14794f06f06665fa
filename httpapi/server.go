package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/sessionflow"
	"github.com/MrEthical07/sessionflow/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Options configures the handler.
type Options struct {
	Logger *slog.Logger
	// Gatherer backs GET /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

type server struct {
	c      *sessionflow.Controller
	logger *slog.Logger
}

// NewHandler returns the HTTP surface of c.
func NewHandler(c *sessionflow.Controller, opts Options) http.Handler {
	s := &server{c: c, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	withSession := middleware.Session(c, s.writeError)
	requireAuth := middleware.Guard(s.writeError, sessionflow.RequiresAuthentication)
	requireAdmin := middleware.Guard(s.writeError, sessionflow.RequiresAuthentication, sessionflow.RequiresAdmin)

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
		var handler http.Handler = h
		for i := len(mws) - 1; i >= 0; i-- {
			handler = mws[i](handler)
		}
		mux.Handle(pattern, withSession(handler))
	}

	route("POST /login", s.handleLogin)
	route("POST /register", s.handleRegister)
	route("GET /users", s.handleUsers)
	route("GET /whoami", s.handleWhoami)
	route("GET /counter", s.handleCounter, requireAuth)
	route("GET /dump", s.handleDump, requireAdmin)
	for _, p := range []string{"/logout", "/destroy-session"} {
		route("GET "+p, s.handleLogout)
		route("POST "+p, s.handleLogout)
	}
	route("POST /oauth2/{provider}/auth", s.handleOAuth2Begin)
	route("GET /oauth2/{provider}/login", s.handleOAuth2Callback)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return middleware.ClientInfo(s.logRequests(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests must wrap the mux directly so r.Pattern is visible after
// dispatch.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.c.Metrics().ObserveRequest(route, rec.status, elapsed)
		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if fe, ok := sessionflow.AsFlowError(err); ok {
		if fe.Status >= http.StatusInternalServerError {
			s.logger.Error("flow failed", "path", r.URL.Path, "kind", fe.Kind.String(), "error", err)
		}
		writeJSON(w, fe.Status, map[string]any{"success": false, "error": fe.Message})
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Internal server error"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return sessionflow.ErrInvalidRequest
	}
	return nil
}
