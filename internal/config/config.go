package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Chat      ChatConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Lifecycle LifecycleConfig
	Scheduler SchedulerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ChatConfig points at the chat-platform REST API.
type ChatConfig struct {
	BaseURL        string
	BotToken       string
	TimeoutSeconds int
	// StaffRoleIDs are the platform roles granted full channel access before claim.
	StaffRoleIDs []string
	// GuildChannelCeiling is the platform-wide channel limit per guild.
	GuildChannelCeiling int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// LifecycleConfig carries the time windows driving escalation.
type LifecycleConfig struct {
	UnacceptedCloseAfter  time.Duration
	InactivityWarnAfter   time.Duration
	InactivityDodgeAfter  time.Duration
	DeletionGrace         time.Duration
	ReminderThrottle      time.Duration
}

// SchedulerConfig carries sweep cadences.
type SchedulerConfig struct {
	FineSweepInterval       time.Duration
	EscalationSweepInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "wager-arbiter"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Chat: ChatConfig{
			BaseURL:             getEnv("CHAT_API_BASE_URL", "https://discord.com/api/v10"),
			BotToken:            os.Getenv("CHAT_BOT_TOKEN"),
			TimeoutSeconds:      getEnvAsInt("CHAT_API_TIMEOUT_SECONDS", 10),
			StaffRoleIDs:        getEnvAsList("CHAT_STAFF_ROLE_IDS"),
			GuildChannelCeiling: getEnvAsInt("CHAT_GUILD_CHANNEL_CEILING", 500),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Lifecycle: LifecycleConfig{
			UnacceptedCloseAfter: getEnvAsDuration("LIFECYCLE_UNACCEPTED_CLOSE_AFTER", 24*time.Hour),
			InactivityWarnAfter:  getEnvAsDuration("LIFECYCLE_INACTIVITY_WARN_AFTER", 48*time.Hour),
			InactivityDodgeAfter: getEnvAsDuration("LIFECYCLE_INACTIVITY_DODGE_AFTER", 72*time.Hour),
			DeletionGrace:        getEnvAsDuration("LIFECYCLE_DELETION_GRACE", 15*time.Second),
			ReminderThrottle:     getEnvAsDuration("LIFECYCLE_REMINDER_THROTTLE", 12*time.Hour),
		},
		Scheduler: SchedulerConfig{
			FineSweepInterval:       getEnvAsDuration("SCHEDULER_FINE_SWEEP_INTERVAL", 30*time.Minute),
			EscalationSweepInterval: getEnvAsDuration("SCHEDULER_ESCALATION_SWEEP_INTERVAL", time.Hour),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the chat API request timeout.
func (c ChatConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
