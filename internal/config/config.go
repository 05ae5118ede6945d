package config

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetLogLevel() string
	GetDevListenAddr() string
}

type mainConfig struct {
	EnvVars
	API
	Session
	Storage
}

func New() Config {
	return mainConfig{}
}
