package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	Workflow  WorkflowConfig
	Signing   SigningConfig
	RateLimit RateLimitConfig
}

// RateLimitConfig controls the optional global request limiter.
type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// WorkflowConfig holds the envelope lifecycle tunables.
type WorkflowConfig struct {
	InvitationTTL    time.Duration
	EnvelopeTTL      time.Duration
	MaxResends       int
	ReminderCooldown time.Duration
	ExpireSweepEvery time.Duration
}

// SigningConfig holds the signature production and compliance tunables.
type SigningConfig struct {
	Key                 string
	DefaultAlgorithm    string
	AllowedAlgorithms   []string
	AllowedKMSKeys      []string
	MinSecurityLevel    int
	LegalValidityWindow time.Duration
	RetentionPeriod     time.Duration
	TimestampMaxAge     time.Duration
	MaxProcessingTime   time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load("sealflow-support-services/.env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	viper.SetDefault("INVITATION_TTL_HOURS", 168)
	viper.SetDefault("ENVELOPE_TTL_HOURS", 720)
	viper.SetDefault("MAX_RESENDS", 3)
	viper.SetDefault("REMINDER_COOLDOWN_MINUTES", 60)
	viper.SetDefault("EXPIRE_SWEEP_MINUTES", 15)
	viper.SetDefault("SIGNING_DEFAULT_ALGORITHM", "SHA-256")
	viper.SetDefault("SIGNING_MIN_SECURITY_LEVEL", 1)
	viper.SetDefault("LEGAL_VALIDITY_DAYS", 0)
	viper.SetDefault("RETENTION_DAYS", 0)
	viper.SetDefault("TIMESTAMP_MAX_AGE_MINUTES", 0)
	viper.SetDefault("MAX_PROCESSING_SECONDS", 0)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      getEnvOrPanic("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Keycloak: KeycloakConfig{
			URL:          viper.GetString("KEYCLOAK_URL"),
			Realm:        viper.GetString("KEYCLOAK_REALM"),
			ClientID:     viper.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: viper.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(viper.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		Workflow: WorkflowConfig{
			InvitationTTL:    time.Duration(viper.GetInt("INVITATION_TTL_HOURS")) * time.Hour,
			EnvelopeTTL:      time.Duration(viper.GetInt("ENVELOPE_TTL_HOURS")) * time.Hour,
			MaxResends:       viper.GetInt("MAX_RESENDS"),
			ReminderCooldown: time.Duration(viper.GetInt("REMINDER_COOLDOWN_MINUTES")) * time.Minute,
			ExpireSweepEvery: time.Duration(viper.GetInt("EXPIRE_SWEEP_MINUTES")) * time.Minute,
		},
		Signing: SigningConfig{
			Key:                 os.Getenv("SIGNING_KEY"),
			DefaultAlgorithm:    viper.GetString("SIGNING_DEFAULT_ALGORITHM"),
			AllowedAlgorithms:   viper.GetStringSlice("SIGNING_ALLOWED_ALGORITHMS"),
			AllowedKMSKeys:      viper.GetStringSlice("SIGNING_ALLOWED_KEYS"),
			MinSecurityLevel:    viper.GetInt("SIGNING_MIN_SECURITY_LEVEL"),
			LegalValidityWindow: time.Duration(viper.GetInt("LEGAL_VALIDITY_DAYS")) * 24 * time.Hour,
			RetentionPeriod:     time.Duration(viper.GetInt("RETENTION_DAYS")) * 24 * time.Hour,
			TimestampMaxAge:     time.Duration(viper.GetInt("TIMESTAMP_MAX_AGE_MINUTES")) * time.Minute,
			MaxProcessingTime:   time.Duration(viper.GetInt("MAX_PROCESSING_SECONDS")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		log.Println("WARNING: JWT_SECRET is not set; set a secure value in production")
	}
	if cfg.Signing.Key == "" {
		log.Println("WARNING: SIGNING_KEY is not set; set a secure value in production")
	}

	return cfg, nil
}

func getEnvOrPanic(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("environment variable %s is required", key)
	}
	return v
}
