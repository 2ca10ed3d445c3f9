package config

import (
	"strconv"
	"time"
)

// SessionConfig configures locally-issued session tokens.
type SessionConfig interface {
	GetSessionSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", "")
}

func (Session) GetAccessTokenTTL() time.Duration {
	return durationSeconds("ACCESS_TOKEN_TTL_SECONDS", 15*time.Minute)
}

func (Session) GetRefreshTokenTTL() time.Duration {
	return durationSeconds("REFRESH_TOKEN_TTL_SECONDS", time.Hour)
}

func durationSeconds(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
