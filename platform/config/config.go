// Package config provides typed configuration for the application.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Interface segregation: modules declare only the config surface they need,
// keeping them decoupled from the full Config struct.

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketImages() string
	GetMinIOPublicBaseURL() string
	IsMinIOEnabled() bool
}

// RedisConfig provides settings for the Redis-backed gallery store.
type RedisConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetGalleryStateKey() string
	IsRedisEnabled() bool
}

// IngestConfig provides settings for the image ingestion pipeline.
type IngestConfig interface {
	GetUploadMaxSize() int64
	GetGalleryMaxImages() int
	GetUploadConcurrency() int
}

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env      string
	HTTPAddr string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	UploadMaxSize     int64
	GalleryMaxImages  int
	UploadConcurrency int

	MinIOEndpoint      string
	MinIOAccessKey     string
	MinIOSecretKey     string
	MinIOUseSSL        bool
	MinioBucketImages  string
	MinIOPublicBaseURL string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	GalleryStateKey string
}

// HTTP getters
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// MinIO getters
func (c *Config) GetMinIOEndpoint() string     { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string    { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string    { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool         { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketImages() string { return c.MinioBucketImages }
func (c *Config) GetMinIOPublicBaseURL() string {
	if c.MinIOPublicBaseURL != "" {
		return c.MinIOPublicBaseURL
	}
	scheme := "http"
	if c.MinIOUseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.MinIOEndpoint
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// Redis getters
func (c *Config) GetRedisAddr() string       { return c.RedisAddr }
func (c *Config) GetRedisPassword() string   { return c.RedisPassword }
func (c *Config) GetRedisDB() int            { return c.RedisDB }
func (c *Config) GetGalleryStateKey() string { return c.GalleryStateKey }
func (c *Config) IsRedisEnabled() bool       { return c.RedisAddr != "" }

// Ingest getters
func (c *Config) GetUploadMaxSize() int64   { return c.UploadMaxSize }
func (c *Config) GetGalleryMaxImages() int  { return c.GalleryMaxImages }
func (c *Config) GetUploadConcurrency() int { return c.UploadConcurrency }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		UploadMaxSize:     mustInt64(getEnv("UPLOAD_MAX_SIZE", "5242880")),
		GalleryMaxImages:  int(mustInt64(getEnv("GALLERY_MAX_IMAGES", "10"))),
		UploadConcurrency: int(mustInt64(getEnv("UPLOAD_CONCURRENCY", "5"))),

		MinIOEndpoint:      getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:     getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:        strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketImages:  getEnv("MINIO_BUCKET_IMAGES", "gallery-images"),
		MinIOPublicBaseURL: getEnv("MINIO_PUBLIC_BASE_URL", ""),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         int(mustInt64(getEnv("REDIS_DB", "0"))),
		GalleryStateKey: getEnv("GALLERY_STATE_KEY", "gallery:images"),
	}

	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}
	if cfg.MinIOAccessKey == "" || cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}
	if cfg.UploadMaxSize <= 0 {
		return nil, fmt.Errorf("UPLOAD_MAX_SIZE must be a positive byte count")
	}
	if cfg.GalleryMaxImages <= 0 {
		return nil, fmt.Errorf("GALLERY_MAX_IMAGES must be positive")
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 5
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
