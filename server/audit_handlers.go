package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/idphub/identity-gateway/audit"
	"github.com/idphub/identity-gateway/session"
)

// AuditLogsHandler exposes filtered, paginated read access to the audit
// trail. The query itself is an audited operation; when a valid bearer token
// accompanies the request, its subject becomes the recorded actor.
func (s *Server) AuditLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseAuditFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}

		var caller *audit.CallerIdentity
		if token, ok := bearerToken(r); ok {
			if claims, err := s.sessions.Validate(token, session.TokenTypeAccess); err == nil {
				caller = &audit.CallerIdentity{Email: claims.Email}
			}
		}

		descriptor := audit.Descriptor{
			Action:      audit.ActionAuditQuery,
			Resource:    audit.ResourceAuditLog,
			Description: "Audit trail queried",
		}

		call := &audit.CallContext{Named: map[string]any{
			"page": filter.Page,
			"size": filter.Size,
		}}
		result, err := s.interceptor.Around(descriptor, call, requestMeta(r), caller, func() (any, error) {
			return s.auditStore.Query(r.Context(), filter)
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "audit query failed")
			return
		}

		writeJSON(w, http.StatusOK, result.(*audit.Page))
	}
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()

	filter := audit.Filter{
		ActorEmail: q.Get("userEmail"),
		ActorName:  q.Get("userName"),
		Action:     audit.ActionType(q.Get("actionType")),
		Resource:   audit.ResourceType(q.Get("resourceType")),
		Status:     audit.Status(q.Get("status")),
		Search:     q.Get("searchTerm"),
		Page:       1,
		Size:       audit.DefaultPageSize,
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filter, errParam("page")
		}
		filter.Page = page
	}

	if raw := q.Get("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return filter, errParam("size")
		}
		filter.Size = size
	}

	var err error
	if filter.From, err = parseDate(q.Get("startDate")); err != nil {
		return filter, errParam("startDate")
	}
	if filter.To, err = parseDate(q.Get("endDate")); err != nil {
		return filter, errParam("endDate")
	}

	return filter.Normalize(), nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

type paramError string

func errParam(name string) error { return paramError(name) }

func (e paramError) Error() string { return "invalid query parameter: " + string(e) }
