package config

import "strconv"

// AuditConfig configures the audit worker pool.
type AuditConfig interface {
	GetAuditWorkers() int
	GetAuditQueueCapacity() int
	GetAuditOverloadPolicy() string
}

type Audit struct{}

var _ AuditConfig = Audit{}

func (Audit) GetAuditWorkers() int {
	return intEnv("AUDIT_WORKERS", 2)
}

func (Audit) GetAuditQueueCapacity() int {
	return intEnv("AUDIT_QUEUE_CAPACITY", 64)
}

// GetAuditOverloadPolicy returns one of run-inline, reject or
// block-with-timeout. The default caller-runs policy guarantees no record is
// dropped under saturation.
func (Audit) GetAuditOverloadPolicy() string {
	return GetEnv("AUDIT_OVERLOAD_POLICY", "run-inline")
}

func intEnv(envVar string, defaultValue int) int {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
