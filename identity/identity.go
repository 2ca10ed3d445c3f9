package identity

import "time"

// VerifiedIdentity is the canonical identity extracted from a successfully
// verified external identity token. It is produced once per verification and
// handed to the user store; this package never persists it.
type VerifiedIdentity struct {
	ExternalID  string            `json:"external_id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"display_name"`
	TenantID    string            `json:"tenant_id"`
	Issuer      string            `json:"issuer"`
	Audience    string            `json:"audience"`
	IssuedAt    time.Time         `json:"issued_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Profile     map[string]string `json:"profile,omitempty"`
}
