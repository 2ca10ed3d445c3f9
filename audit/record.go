package audit

import (
	"time"

	"github.com/uptrace/bun"
)

// ActionType classifies what kind of operation an audit record describes.
type ActionType string

const (
	ActionLogin                ActionType = "LOGIN"
	ActionTokenRefresh         ActionType = "TOKEN_REFRESH"
	ActionLogout               ActionType = "LOGOUT"
	ActionIdentityVerification ActionType = "IDENTITY_VERIFICATION"
	ActionUserCreate           ActionType = "USER_CREATE"
	ActionUserUpdate           ActionType = "USER_UPDATE"
	ActionAuditQuery           ActionType = "AUDIT_QUERY"
)

// ResourceType classifies what kind of resource an operation acted on.
type ResourceType string

const (
	ResourceAuthentication ResourceType = "AUTHENTICATION"
	ResourceSessionToken   ResourceType = "SESSION_TOKEN"
	ResourceUser           ResourceType = "USER"
	ResourceAuditLog       ResourceType = "AUDIT_LOG"
)

// Status is the outcome recorded for an audited operation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusPartial Status = "PARTIAL"
)

// Actor fallbacks used when no identity could be attributed.
const (
	ActorAnonymous      = "ANONYMOUS"
	ActorSystem         = "SYSTEM"
	RoleUnauthenticated = "UNAUTHENTICATED"
)

// Record is a durable log entry describing who performed what action, on what
// resource, with what outcome. It is created in memory before the wrapped
// operation runs, mutated with outcome data after, and persisted exactly once.
type Record struct {
	bun.BaseModel `bun:"table:audit_records,alias:aud"`

	ID                 string       `bun:"id,pk" json:"id"`
	ActorEmail         string       `bun:"actor_email,notnull" json:"actorEmail"`
	ActorName          string       `bun:"actor_name" json:"actorName,omitempty"`
	ActorRole          string       `bun:"actor_role" json:"actorRole,omitempty"`
	Action             ActionType   `bun:"action_type,notnull" json:"actionType"`
	Resource           ResourceType `bun:"resource_type,notnull" json:"resourceType"`
	ResourceID         string       `bun:"resource_id" json:"resourceId,omitempty"`
	ResourceIdentifier string       `bun:"resource_identifier" json:"resourceIdentifier,omitempty"`
	Description        string       `bun:"description" json:"descriptionText,omitempty"`
	Endpoint           string       `bun:"request_endpoint" json:"requestEndpoint,omitempty"`
	Method             string       `bun:"request_method" json:"requestMethod,omitempty"`
	ParametersJSON     string       `bun:"request_parameters" json:"requestParametersJson,omitempty"`
	InitiatedAt        time.Time    `bun:"initiated_at,notnull" json:"initiatedAt"`
	IPAddress          string       `bun:"ip_address" json:"ipAddress,omitempty"`
	SessionID          string       `bun:"session_id" json:"sessionId,omitempty"`
	Status             Status       `bun:"status,notnull" json:"status"`
	ErrorMessage       string       `bun:"error_message" json:"errorMessage,omitempty"`
	ServiceName        string       `bun:"service_name" json:"serviceName,omitempty"`
}

// normalize enforces the record invariants before persistence: a non-empty
// status and a non-empty actor email.
func (r *Record) normalize() {
	if r.Status == "" {
		r.Status = StatusPartial
	}
	if r.ActorEmail == "" {
		r.ActorEmail = ActorSystem
	}
}
