package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port                      string
	LogMode                   string
	DBURL                     string
	JWTSecret                 string
	JWTTTLHours               int
	ServiceKey                string
	AdminEmails               []string
	RecommenderURL            string
	RecommenderTimeoutSecs    int
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	RecommendationCacheTTLSec int
	ReadTimeoutSecs           int
	WriteTimeoutSecs          int
	IdleTimeoutSecs           int
	DBMaxConns                int
	DBMinConns                int
	DBMaxIdleSecs             int
	DBMaxLifeSecs             int
	DBConnTimeoutSecs         int
	DBStatementCache          int
}

// Load reads configuration from environment variables, applying defaults and validation.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment take precedence over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:                      getEnv("PORT", "8080"),
		LogMode:                   getEnv("LOG_MODE", "development"),
		DBURL:                     os.Getenv("DB_URL"),
		JWTSecret:                 os.Getenv("JWT_SECRET"),
		JWTTTLHours:               getEnvInt("JWT_TTL_HOURS", 168),
		ServiceKey:                os.Getenv("INTERNAL_SERVICE_KEY"),
		AdminEmails:               getEnvList("ADMIN_EMAILS"),
		RecommenderURL:            os.Getenv("RECOMMENDER_URL"),
		RecommenderTimeoutSecs:    getEnvInt("RECOMMENDER_TIMEOUT_SECS", 5),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   getEnvInt("REDIS_DB", 0),
		RecommendationCacheTTLSec: getEnvInt("RECOMMENDATION_CACHE_TTL_SECS", 300),
		ReadTimeoutSecs:           getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:          getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:           getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:                getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:                getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:             getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:             getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs:         getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:          getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
	}

	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.JWTTTLHours <= 0 {
		return Config{}, fmt.Errorf("JWT_TTL_HOURS must be positive")
	}
	if cfg.RecommenderURL == "" {
		return Config{}, fmt.Errorf("RECOMMENDER_URL is required")
	}
	if cfg.RecommenderTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("RECOMMENDER_TIMEOUT_SECS must be positive")
	}
	if cfg.RecommendationCacheTTLSec < 0 {
		return Config{}, fmt.Errorf("RECOMMENDATION_CACHE_TTL_SECS must be non-negative")
	}
	if cfg.RedisDB < 0 {
		return Config{}, fmt.Errorf("REDIS_DB must be non-negative")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}

	return cfg, nil
}

// CacheEnabled reports whether recommendation results should be cached in Redis.
func (c Config) CacheEnabled() bool {
	return c.RedisAddr != "" && c.RecommendationCacheTTLSec > 0
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS. Accounts with
// these emails are granted the admin role.
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable into lowercased, non-empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
