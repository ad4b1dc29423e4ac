package config

import (
	"fmt"

	"learnforge/internal/store"
)

// OpenProvider opens the storage provider selected by StorageBackend.
// The returned close function is never nil.
func (c Config) OpenProvider() (store.Provider, func() error, error) {
	noop := func() error { return nil }
	switch c.StorageBackend {
	case BackendMemory:
		return store.NewMemoryProvider(), noop, nil
	case BackendFile, "":
		p, err := store.NewFileProvider(c.DataDir)
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil
	case BackendSQLite:
		p, err := store.NewSQLiteProvider(c.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case BackendRedis:
		p := store.NewRedisProvider(c.RedisAddr, c.RedisPassword)
		return p, p.Close, nil
	case BackendMinIO:
		p, err := store.NewObjectProvider(c.MinIOEndpoint, c.MinIOAccessKey, c.MinIOSecretKey, c.MinIOBucket, c.MinIOUseSSL)
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}
