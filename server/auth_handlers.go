package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/idphub/identity-gateway/audit"
	"github.com/idphub/identity-gateway/authflow"
)

type loginResponse struct {
	Success bool `json:"success"`
	*authflow.LoginResult
}

type refreshResponse struct {
	Success bool `json:"success"`
	*authflow.RefreshResult
}

// LoginHandler accepts an authorization code or identity token, runs the
// login flow, and sets the refresh token as an HTTP-only, path-scoped cookie.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input authflow.LoginInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with code or idToken")
			return
		}
		if input.Code == "" && input.IDToken == "" {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "either code or idToken is required")
			return
		}

		result, err := s.orchestrator.Login(r.Context(), input, requestMeta(r))
		if err != nil {
			writeAuthError(w, err)
			return
		}

		s.setRefreshCookie(w, result.RefreshToken)
		writeJSON(w, http.StatusOK, loginResponse{Success: true, LoginResult: result})
	}
}

// RefreshHandler reads the refresh token from the cookie and mints a new
// access token. Any validation failure clears the cookie, even when the
// failure is unrelated to the cookie's own validity.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(RefreshCookieName)
		if err != nil || cookie.Value == "" {
			s.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "REFRESH_MISSING", "no refresh token cookie")
			return
		}

		result, err := s.orchestrator.Refresh(r.Context(), cookie.Value, requestMeta(r))
		if err != nil {
			s.clearRefreshCookie(w)
			writeAuthError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, refreshResponse{Success: true, RefreshResult: result})
	}
}

// LogoutHandler validates the bearer access token and clears the refresh
// cookie. There is no server-side revocation list.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing or malformed Authorization header")
			return
		}

		_, err := s.orchestrator.Logout(r.Context(), token, requestMeta(r))
		s.clearRefreshCookie(w)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     RefreshCookiePath,
		MaxAge:   int(s.refreshTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func requestMeta(r *http.Request) *audit.RequestMeta {
	return &audit.RequestMeta{
		Endpoint:  r.URL.Path,
		Method:    r.Method,
		IPAddress: clientIP(r),
		SessionID: r.Header.Get("X-Request-Id"),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
