package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevSecret signs tokens when AUTH_HMAC_SECRET is unset.
const DevSecret = "supersecret-dev-key"

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogMode  string

	DBDriver string
	DBDSN    string

	BlobBasePath string // assignment uploads

	AuthSecret string
	JWTTTL     time.Duration

	CORSOrigins []string

	// Optional; certificate verification cache is disabled when empty.
	RedisAddr    string
	CertCacheTTL time.Duration

	ProgressMaxRetries int

	LockoutMaxAttempts int
	LockoutDuration    time.Duration

	// First admin, created at startup when no admin exists.
	AdminEmail    string
	AdminPassword string
}

// FromEnv reads the process environment. A .env file (or ENV_FILE) is
// loaded first when present; variables already set in the environment win.
func FromEnv() Config {
	envFile := envOr("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	defOrigins := "http://localhost:3000,http://localhost:5173"
	if mode == ModeOnline {
		defOrigins = "https://lms.mindengage.ai"
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		LogMode:            envOr("LOG_MODE", "dev"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		BlobBasePath:       envOr("BLOB_BASE_PATH", "./data"),
		AuthSecret:         envOr("AUTH_HMAC_SECRET", DevSecret),
		JWTTTL:             time.Duration(envInt("JWT_TTL_HOURS", 8)) * time.Hour,
		CORSOrigins:        csvOr("CORS_ORIGINS", defOrigins),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		CertCacheTTL:       time.Duration(envInt("CERT_CACHE_TTL_SEC", 300)) * time.Second,
		ProgressMaxRetries: envInt("PROGRESS_MAX_RETRIES", 3),
		LockoutMaxAttempts: envInt("LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutDuration:    time.Duration(envInt("LOCKOUT_DURATION_MIN", 30)) * time.Minute,
		AdminEmail:         strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Production reports whether the service runs in online mode.
func (c Config) Production() bool { return c.Mode == ModeOnline || envBool("FORCE_PRODUCTION", false) }
