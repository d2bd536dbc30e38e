package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Override modes for club-scoped promotion ladders.
const (
	OverrideReplaceAll   = "replace_all"
	OverrideMergeByLevel = "merge_by_level"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Promotions PromotionsConfig
	Tickets    TicketsConfig
	Referrals  ReferralsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PromotionsConfig tunes the promotion progress engine.
type PromotionsConfig struct {
	// OverrideMode decides how club-scoped level templates interact with
	// the global ladder: "replace_all" ignores the global set entirely
	// when any active club template exists, "merge_by_level" overlays
	// club templates onto the global ladder per level number.
	OverrideMode    string
	CacheTTL        time.Duration
	RecountInterval time.Duration
	WriteRetries    int
}

// TicketsConfig controls webhook-driven ticket issuance.
type TicketsConfig struct {
	Enabled           bool
	IssuerName        string
	WorkerConcurrency int
	WorkerRetries     int
}

// ReferralsConfig governs share-link generation and click tracking.
type ReferralsConfig struct {
	Enabled bool
	BaseURL string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	overrideMode := v.GetString("PROMOTIONS_OVERRIDE_MODE")
	if overrideMode != OverrideMergeByLevel {
		overrideMode = OverrideReplaceAll
	}
	cfg.Promotions = PromotionsConfig{
		OverrideMode:    overrideMode,
		CacheTTL:        parseDuration(v.GetString("PROMOTIONS_CACHE_TTL"), 5*time.Minute),
		RecountInterval: parseDuration(v.GetString("PROMOTIONS_RECOUNT_INTERVAL"), 15*time.Minute),
		WriteRetries:    v.GetInt("PROMOTIONS_WRITE_RETRIES"),
	}

	cfg.Tickets = TicketsConfig{
		Enabled:           v.GetBool("ENABLE_TICKETS"),
		IssuerName:        v.GetString("TICKETS_ISSUER_NAME"),
		WorkerConcurrency: v.GetInt("TICKETS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("TICKETS_WORKER_RETRIES"),
	}

	cfg.Referrals = ReferralsConfig{
		Enabled: v.GetBool("ENABLE_REFERRALS"),
		BaseURL: v.GetString("REFERRALS_BASE_URL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "clubpulse")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PROMOTIONS_OVERRIDE_MODE", OverrideReplaceAll)
	v.SetDefault("PROMOTIONS_CACHE_TTL", "5m")
	v.SetDefault("PROMOTIONS_RECOUNT_INTERVAL", "15m")
	v.SetDefault("PROMOTIONS_WRITE_RETRIES", 3)

	v.SetDefault("ENABLE_TICKETS", true)
	v.SetDefault("TICKETS_ISSUER_NAME", "ClubPulse")
	v.SetDefault("TICKETS_WORKER_CONCURRENCY", 2)
	v.SetDefault("TICKETS_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_REFERRALS", true)
	v.SetDefault("REFERRALS_BASE_URL", "http://localhost:8080/r")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
