package config

type Config interface {
	EnvConfig
	ProviderConfig
	SessionConfig
	AuditConfig
}

type mainConfig struct {
	EnvVars
	Provider
	Session
	Audit
}

func New() Config {
	return mainConfig{}
}
