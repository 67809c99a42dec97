package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port           string
	Storage        string
	DatabaseURL    string
	GatewayToken   string
	AllowedOrigins []string

	LogLevel  string
	LogPretty bool

	LevelThreshold int64
	XPRewardsFile  string

	RedisURL string

	NotificationWorkers   int
	NotificationQueueSize int
	NotificationTimeout   time.Duration
	NotificationRetention time.Duration

	R2 R2Config
}

// R2Config holds Cloudflare R2 credentials for cover uploads.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether uploads can be served.
func (c R2Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != ""
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Port:          getenv("PORT", "5200"),
		Storage:       strings.ToLower(getenv("STORAGE", StoragePostgres)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		GatewayToken:  os.Getenv("GATEWAY_SERVICE_TOKEN"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		XPRewardsFile: os.Getenv("XP_REWARDS_FILE"),
		RedisURL:      os.Getenv("REDIS_URL"),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
	}

	origins := getenv("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	var err error
	if cfg.LogPretty, err = parseBool("LOG_PRETTY", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.LevelThreshold, err = parseInt64("LEVEL_THRESHOLD", 500); err != nil {
		errs = append(errs, err)
	} else if cfg.LevelThreshold <= 0 {
		errs = append(errs, fmt.Errorf("LEVEL_THRESHOLD must be positive, got %d", cfg.LevelThreshold))
	}
	if cfg.NotificationWorkers, err = parseInt("NOTIFICATION_WORKERS", 4); err != nil {
		errs = append(errs, err)
	}
	if cfg.NotificationQueueSize, err = parseInt("NOTIFICATION_QUEUE_SIZE", 256); err != nil {
		errs = append(errs, err)
	}
	if cfg.NotificationTimeout, err = parseDuration("NOTIFICATION_TIMEOUT", 5*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.NotificationRetention, err = parseDuration("NOTIFICATION_RETENTION", 30*24*time.Hour); err != nil {
		errs = append(errs, err)
	}

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE %q", cfg.Storage))
	}
	if cfg.GatewayToken == "" {
		errs = append(errs, errors.New("GATEWAY_SERVICE_TOKEN environment variable not set"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parseInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseInt(key string, fallback int) (int, error) {
	n, err := parseInt64(key, int64(fallback))
	return int(n), err
}

func parseBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
