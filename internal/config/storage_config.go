package config

type StorageBackend string

const (
	StorageBackendFile   StorageBackend = "file"
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendRedis  StorageBackend = "redis"
)

type StorageConfig interface {
	GetStorageBackend() StorageBackend
	GetStorageSecret() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisNamespace() string
	GetTokenKey() string
	GetClaimsKey() string
	GetCompanyKey() string
	GetCompanyIDField() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStorageBackend() StorageBackend {
	switch b := StorageBackend(GetEnv("STORAGE_BACKEND", string(StorageBackendFile))); b {
	case StorageBackendFile, StorageBackendMemory, StorageBackendRedis:
		return b
	}
	return StorageBackendFile
}

// GetStorageSecret seals the file backend when set. Must decode to 32 bytes (hex or base64).
func (Storage) GetStorageSecret() string {
	return GetEnv("STORAGE_SECRET", "")
}

func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

// GetRedisNamespace scopes the redis hash to one client instance.
func (Storage) GetRedisNamespace() string {
	return GetEnv("REDIS_NAMESPACE", "invoicectl")
}

func (Storage) GetTokenKey() string {
	return GetEnv("TOKEN_KEY", "token")
}

func (Storage) GetClaimsKey() string {
	return GetEnv("CLAIMS_KEY", "userInfo")
}

func (Storage) GetCompanyKey() string {
	return GetEnv("COMPANY_KEY", "company")
}

// GetCompanyIDField names the identifier inside the company entry. Known values are "id" and "company_id".
func (Storage) GetCompanyIDField() string {
	return GetEnv("COMPANY_ID_FIELD", "id")
}
