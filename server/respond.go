package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/idphub/identity-gateway/internal/errors"
)

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeAuthError maps the error taxonomy to a machine-readable code and a
// structured {success:false, error:{code, message}} body.
func writeAuthError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	var claimErr *errors.ClaimValidationError
	if errors.As(err, &claimErr) {
		return http.StatusUnauthorized, "CLAIM_" + strings.ToUpper(string(claimErr.Reason))
	}

	var refreshErr *errors.RefreshTokenError
	if errors.As(err, &refreshErr) {
		return http.StatusUnauthorized, "REFRESH_" + strings.ToUpper(string(refreshErr.Reason))
	}

	switch {
	case errors.Is(err, errors.ErrTokenFormat):
		return http.StatusUnauthorized, "TOKEN_MALFORMED"
	case errors.Is(err, errors.ErrKeyResolution):
		return http.StatusUnauthorized, "KEY_RESOLUTION_FAILED"
	case errors.Is(err, errors.ErrSignature):
		return http.StatusUnauthorized, "SIGNATURE_INVALID"
	case errors.Is(err, errors.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED"
	case errors.Is(err, errors.ErrInvalidToken):
		return http.StatusUnauthorized, "TOKEN_INVALID"
	case errors.Is(err, errors.ErrInvalidAuthorizationCode):
		return http.StatusUnauthorized, "INVALID_CODE"
	case errors.Is(err, errors.ErrExpiredAuthorizationCode):
		return http.StatusUnauthorized, "EXPIRED_CODE"
	case errors.Is(err, errors.ErrInvalidTenant):
		return http.StatusUnauthorized, "INVALID_TENANT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
