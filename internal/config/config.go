package config

import (
	"os"
	"strconv"

	"tilecache/internal/storage"
)

type Config struct {
	Port             int
	LogLevel         string
	LogEncoding      string
	StorageConfig    string
	StorageType      string
	MemcachedOptions string
	MemcachedExpire  int
	MemoryTiles      int
	DiskRoot         string
	StorageMetrics   bool
	SeedDir          string
	SeedWorkers      int
	VipsMaxCacheMB   int
	VipsConcurrency  int
	AllowedOrigin    string
	MaxMetatileSize  int64
}

func Load() *Config {
	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogEncoding:      getEnv("LOG_ENCODING", "json"),
		StorageConfig:    getEnv("STORAGE_CONFIG", ""),
		StorageType:      getEnv("STORAGE_TYPE", "memcached"),
		MemcachedOptions: getEnv("MEMCACHED_OPTIONS", "--SERVER=localhost"),
		MemcachedExpire:  getEnvInt("MEMCACHED_EXPIRE", 0),
		MemoryTiles:      getEnvInt("MEMORY_TILES", 100000),
		DiskRoot:         getEnv("DISK_ROOT", "/data/tiles"),
		StorageMetrics:   getEnvBool("STORAGE_METRICS", true),
		SeedDir:          getEnv("SEED_DIR", ""),
		SeedWorkers:      getEnvInt("SEED_WORKERS", 1),
		VipsMaxCacheMB:   getEnvInt("VIPS_MAX_CACHE_MB", 256),
		VipsConcurrency:  getEnvInt("VIPS_CONCURRENCY", 1),
		AllowedOrigin:    getEnv("ALLOWED_ORIGIN", ""),
		MaxMetatileSize:  getEnvInt64("MAX_METATILE_SIZE", 64<<20), // 64MB default
	}

	return cfg
}

// Storage returns the backend block to build. A STORAGE_CONFIG file wins over
// the single-backend env settings.
func (c *Config) Storage() (storage.Config, error) {
	if c.StorageConfig != "" {
		return storage.LoadConfig(c.StorageConfig)
	}

	block := storage.Config{
		"type":    c.StorageType,
		"metrics": c.StorageMetrics,
	}
	switch c.StorageType {
	case "memcached":
		block["options"] = c.MemcachedOptions
		block["expire"] = c.MemcachedExpire
	case "memory":
		block["max_tiles"] = c.MemoryTiles
		block["expire"] = c.MemcachedExpire
	case "disk":
		block["root"] = c.DiskRoot
	}
	return block, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
