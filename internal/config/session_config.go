package config

import "time"

type SessionConfig interface {
	GetLoginRoute() string
	GetExpiryWarning() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetLoginRoute is where the client navigates after the backend rejects the session.
func (Session) GetLoginRoute() string {
	return GetEnv("LOGIN_ROUTE", "/login")
}

func (Session) GetExpiryWarning() time.Duration {
	return GetEnvDuration("SESSION_EXPIRY_WARNING", 5*time.Minute)
}
