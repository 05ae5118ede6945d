package config

import (
	"strings"
	"time"
)

type APIConfig interface {
	GetBaseURL() string
	GetLoginPath() string
	GetHTTPTimeout() time.Duration
}

type API struct{}

var _ APIConfig = API{}

// GetBaseURL returns the backend base URL without a trailing slash (e.g. "https://api.example.com/v1")
func (API) GetBaseURL() string {
	return strings.TrimRight(GetEnv("API_BASE_URL", "http://localhost:8081"), "/")
}

// GetLoginPath is the backend endpoint that exchanges credentials for a token.
func (API) GetLoginPath() string {
	return GetEnv("API_LOGIN_PATH", "/auth/login")
}

func (API) GetHTTPTimeout() time.Duration {
	return GetEnvDuration("HTTP_TIMEOUT", 30*time.Second)
}
