// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	IsDatabaseEnabled() bool
	ShouldMigrateOnStart() bool
}

// RedisConfig provides settings for the element cache.
type RedisConfig interface {
	GetRedisURL() string
	GetElementCacheTTL() time.Duration
	IsRedisEnabled() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetRenderRateLimit() float64
	GetRenderRateBurst() int
}

// MapboxConfig provides settings for map rendering and client assets.
type MapboxConfig interface {
	GetMapboxAccessToken() string
	GetMapboxGLVersion() string
	GetAssetsBaseURL() string
	IsJSLoggingEnabled() bool
}

// TemplateConfig provides settings for the popup template renderer.
type TemplateConfig interface {
	GetTemplatesPath() string
}

// WebhookConfig provides settings for the element change webhook.
type WebhookConfig interface {
	GetWebhookAPIKey() string
	IsWebhookEnabled() bool
}

// MinIOConfig provides settings for MinIO hosted interpreter bundles.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketMapAssets() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	CORSAllowAll         bool
	CORSOrigins          []string
	RenderRateLimit      float64
	RenderRateBurst      int
	DatabaseURL          string
	MigrateOnStart       bool
	RedisURL             string
	ElementCacheTTL      time.Duration
	MapboxAccessToken    string
	MapboxGLVersion      string
	AssetsBaseURL        string
	DevMode              bool
	EnableJSLogging      bool
	TemplatesPath        string
	WebhookAPIKey        string
	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MinioBucketMapAssets string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string  { return c.DatabaseURL }
func (c *Config) IsDatabaseEnabled() bool { return c.DatabaseURL != "" }

// ShouldMigrateOnStart reports whether the API applies schema migrations
// before serving.
func (c *Config) ShouldMigrateOnStart() bool { return c.MigrateOnStart && c.IsDatabaseEnabled() }

// RedisConfig implementation
func (c *Config) GetRedisURL() string               { return c.RedisURL }
func (c *Config) GetElementCacheTTL() time.Duration { return c.ElementCacheTTL }
func (c *Config) IsRedisEnabled() bool              { return c.RedisURL != "" }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string         { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool       { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string    { return c.CORSOrigins }
func (c *Config) GetRenderRateLimit() float64 { return c.RenderRateLimit }
func (c *Config) GetRenderRateBurst() int     { return c.RenderRateBurst }

// MapboxConfig implementation
func (c *Config) GetMapboxAccessToken() string { return strings.TrimSpace(c.MapboxAccessToken) }
func (c *Config) GetMapboxGLVersion() string   { return c.MapboxGLVersion }
func (c *Config) GetAssetsBaseURL() string     { return c.AssetsBaseURL }

// IsJSLoggingEnabled reports whether the client interpreter should log
// progress to the console. Logging requires dev mode as well as the setting.
func (c *Config) IsJSLoggingEnabled() bool { return c.DevMode && c.EnableJSLogging }

// TemplateConfig implementation
func (c *Config) GetTemplatesPath() string { return c.TemplatesPath }

// WebhookConfig implementation
func (c *Config) GetWebhookAPIKey() string { return strings.TrimSpace(c.WebhookAPIKey) }
func (c *Config) IsWebhookEnabled() bool   { return c.GetWebhookAPIKey() != "" }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketMapAssets() string { return c.MinioBucketMapAssets }
func (c *Config) IsMinIOEnabled() bool            { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	getEnv := func(key, fallback string) string {
		if val, ok := lookup(key); ok {
			return val
		}
		return fallback
	}

	env := getEnv("APP_ENV", "development")
	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	devDefault := "false"
	if strings.EqualFold(env, "development") {
		devDefault = "true"
	}

	cfg := &Config{
		Env:                  env,
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		RenderRateLimit:      mustFloat(getEnv("RENDER_RATE_LIMIT", "5")),
		RenderRateBurst:      mustInt(getEnv("RENDER_RATE_BURST", "20")),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		MigrateOnStart:       mustBool(getEnv("MIGRATE_ON_START", "false")),
		RedisURL:             getEnv("REDIS_URL", ""),
		ElementCacheTTL:      mustDuration(getEnv("ELEMENT_CACHE_TTL", "5m")),
		MapboxAccessToken:    getEnv("MAPBOX_ACCESSTOKEN", ""),
		MapboxGLVersion:      getEnv("MAPBOX_GL_VERSION", "v2.13.0"),
		AssetsBaseURL:        strings.TrimRight(getEnv("ASSETS_BASE_URL", "/assets/mapbox"), "/"),
		DevMode:              mustBool(getEnv("DEV_MODE", devDefault)),
		EnableJSLogging:      mustBool(getEnv("ENABLE_JS_LOGGING", "true")),
		TemplatesPath:        getEnv("TEMPLATES_PATH", "templates"),
		WebhookAPIKey:        getEnv("WEBHOOK_API_KEY", ""),
		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          mustBool(getEnv("MINIO_USE_SSL", "false")),
		MinioBucketMapAssets: getEnv("MINIO_BUCKET_MAP_ASSETS", "map-assets"),
	}

	if cfg.ElementCacheTTL <= 0 {
		return nil, fmt.Errorf("ELEMENT_CACHE_TTL must be a positive duration")
	}
	if cfg.RenderRateLimit < 0 || cfg.RenderRateBurst < 0 {
		return nil, fmt.Errorf("RENDER_RATE_LIMIT and RENDER_RATE_BURST must not be negative")
	}
	if cfg.IsMinIOEnabled() && (cfg.MinIOAccessKey == "" || cfg.MinIOSecretKey == "") {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}

	return cfg, nil
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustFloat(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return f
}

func mustInt(value string) int {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return i
}

func mustBool(value string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return b
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
