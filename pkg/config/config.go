// Package config loads process configuration from the environment,
// following the teacher's pkg/config/config.go: a flat struct populated by
// os.Getenv with defaults, no framework.
package config

import (
	"os"
	"strconv"
	"time"
)

// ObjectStoreKind selects the C6 ObjectStore backend.
type ObjectStoreKind string

const (
	ObjectStoreFile     ObjectStoreKind = "file"
	ObjectStoreS3       ObjectStoreKind = "s3"
	ObjectStorePostgres ObjectStoreKind = "postgres"
)

// Config holds the matching kernel's process configuration.
type Config struct {
	LogLevel string

	ObjectStoreKind ObjectStoreKind
	FileStoreDir    string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	DatabaseURL     string

	TaxonomyPath string

	DefaultTTLDays  int
	WorkerPoolSize  int
	NLPTimeout      time.Duration
	LLMTimeout      time.Duration
	RedisAddr       string
}

// Load reads configuration from the environment, applying the same
// defaults pattern as the teacher's config.Load.
func Load() *Config {
	cfg := &Config{
		LogLevel:        getenv("LOG_LEVEL", "INFO"),
		ObjectStoreKind: ObjectStoreKind(getenv("STORE_KIND", string(ObjectStoreFile))),
		FileStoreDir:    getenv("STORE_DIR", "./data/solutions"),
		S3Bucket:        getenv("STORE_S3_BUCKET", ""),
		S3Region:        getenv("STORE_S3_REGION", "us-east-1"),
		S3Endpoint:      getenv("STORE_S3_ENDPOINT", ""),
		DatabaseURL:     getenv("DATABASE_URL", "postgres://matcher@localhost:5432/supplygraph?sslmode=disable"),
		TaxonomyPath:    getenv("TAXONOMY_PATH", "./data/taxonomy.yaml"),
		DefaultTTLDays:  getenvInt("DEFAULT_TTL_DAYS", 30),
		WorkerPoolSize:  getenvInt("WORKER_POOL_SIZE", 0), // 0 => min(facilities, CPU*2)
		NLPTimeout:      getenvDuration("NLP_TIMEOUT", 5*time.Second),
		LLMTimeout:      getenvDuration("LLM_TIMEOUT", 30*time.Second),
		RedisAddr:       getenv("REDIS_ADDR", ""),
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
