package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseDriver     string
	DatabaseURL        string
	RedisURL           string
	ExamsCacheTTL      time.Duration
	NATSURL            string
	NATSSubject        string
	DeepSeekAPIKey     string
	DeepSeekBaseURL    string
	DeepSeekModel      string
	DeepSeekTimeout    time.Duration
	DeepSeekMaxTokens  int
	GradingConcurrency int
	RateLimitMax       int
	RateLimitWindow    time.Duration
	JWTSecret          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EXAMS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("deepseek.api_key", "EXAMS_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind deepseek api key: %w", err)
	}

	v.SetDefault("app.name", "Exam Grader API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("exams.cache_ttl", "1m")
	v.SetDefault("nats.subject", "exams.graded")
	v.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("deepseek.model", "deepseek-chat")
	v.SetDefault("deepseek.timeout", "2m")
	v.SetDefault("deepseek.max_tokens", 0)
	v.SetDefault("grading.concurrency", 1)
	v.SetDefault("ratelimit.max", 30)
	v.SetDefault("ratelimit.window", "1m")

	cacheTTL, err := parseDuration(v, "exams.cache_ttl", time.Minute)
	if err != nil {
		return Config{}, err
	}

	timeout, err := parseDuration(v, "deepseek.timeout", 2*time.Minute)
	if err != nil {
		return Config{}, err
	}

	window, err := parseDuration(v, "ratelimit.window", time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		ExamsCacheTTL:      cacheTTL,
		NATSURL:            v.GetString("nats.url"),
		NATSSubject:        v.GetString("nats.subject"),
		DeepSeekAPIKey:     strings.TrimSpace(v.GetString("deepseek.api_key")),
		DeepSeekBaseURL:    v.GetString("deepseek.base_url"),
		DeepSeekModel:      v.GetString("deepseek.model"),
		DeepSeekTimeout:    timeout,
		DeepSeekMaxTokens:  v.GetInt("deepseek.max_tokens"),
		GradingConcurrency: v.GetInt("grading.concurrency"),
		RateLimitMax:       v.GetInt("ratelimit.max"),
		RateLimitWindow:    window,
		JWTSecret:          v.GetString("jwt.secret"),
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.GradingConcurrency <= 0 {
		cfg.GradingConcurrency = 1
	}

	if cfg.DeepSeekMaxTokens < 0 {
		cfg.DeepSeekMaxTokens = 0
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return fallback, nil
	}
	return value, nil
}
