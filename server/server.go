package server

import (
	"net/http"
	"time"

	"github.com/idphub/identity-gateway/audit"
	"github.com/idphub/identity-gateway/authflow"
	"github.com/idphub/identity-gateway/session"
)

// RefreshCookieName is the HTTP-only cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// RefreshCookiePath scopes the refresh cookie to the refresh endpoint.
const RefreshCookiePath = "/auth/refresh"

// Server is the HTTP surface of the identity gateway.
type Server struct {
	env          string
	mux          *http.ServeMux
	orchestrator *authflow.Orchestrator
	sessions     *session.Service
	auditStore   audit.Store
	interceptor  *audit.Interceptor
	refreshTTL   time.Duration
}

// New creates the HTTP server around the orchestrator and the audit read side.
func New(
	env string,
	orchestrator *authflow.Orchestrator,
	sessions *session.Service,
	auditStore audit.Store,
	interceptor *audit.Interceptor,
) *Server {
	s := &Server{
		env:          env,
		mux:          http.NewServeMux(),
		orchestrator: orchestrator,
		sessions:     sessions,
		auditStore:   auditStore,
		interceptor:  interceptor,
		refreshTTL:   sessions.RefreshTokenTTL(),
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	api := s.APIMiddleware()

	s.mux.HandleFunc("POST /auth/login", ChainMiddleware(s.LoginHandler(), api...))
	s.mux.HandleFunc("POST /auth/refresh", ChainMiddleware(s.RefreshHandler(), api...))
	s.mux.HandleFunc("POST /auth/logout", ChainMiddleware(s.LogoutHandler(), api...))
	s.mux.HandleFunc("GET /audit/logs", ChainMiddleware(s.AuditLogsHandler(), api...))
	s.mux.HandleFunc("GET /healthz", s.HealthHandler())
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
