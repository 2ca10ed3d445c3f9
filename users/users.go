package users

import (
	"time"

	"github.com/uptrace/bun"
)

// RoleType represents a user's role within the gateway.
type RoleType string

const (
	RoleAdmin  RoleType = "admin"
	RoleUser   RoleType = "user"
	RoleViewer RoleType = "viewer"
)

// User is an internal user record mapped from an externally-verified identity.
// There is no local credential material: authentication always happens at the
// external identity provider.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	// ID is the internal identifier (UUID). ExternalID is the identity
	// provider's stable subject/object id.
	ID          string    `bun:"id,pk" json:"id"`
	ExternalID  string    `bun:"external_id,notnull,unique" json:"external_id"`
	Email       string    `bun:"email,notnull,unique" json:"email"`
	DisplayName string    `bun:"display_name" json:"display_name,omitempty"`
	TenantID    string    `bun:"tenant_id" json:"tenant_id,omitempty"`
	Role        RoleType  `bun:"user_role,notnull" json:"role"`
	Active      bool      `bun:"active,notnull" json:"active"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	LastSeenAt  time.Time `bun:"last_seen_at,notnull" json:"last_seen_at"`
}
