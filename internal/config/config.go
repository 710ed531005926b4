package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr string

	RedisURL    string
	DatabaseURL string

	ClockTickInterval time.Duration
	ClockResolution   time.Duration
	ClockWorkers      int
	ClockExpiryBuffer int

	InviteTTL time.Duration
	ListLimit int

	WebhookURL   string
	WebhookRetry int

	MessagesDir    string
	BoardImageSize int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		HTTPAddr:          ":8080",
		ClockTickInterval: time.Second,
		ClockResolution:   100 * time.Millisecond,
		ClockWorkers:      8,
		ClockExpiryBuffer: 64,
		InviteTTL:         7 * 24 * time.Hour,
		ListLimit:         50,
		WebhookRetry:      3,
		BoardImageSize:    480,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.WebhookURL = strings.TrimSpace(os.Getenv("WEBHOOK_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if n, ok := positiveInt("CLOCK_TICK_INTERVAL_MS"); ok {
		cfg.ClockTickInterval = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt("CLOCK_RESOLUTION_MS"); ok {
		cfg.ClockResolution = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt("CLOCK_WORKERS"); ok {
		cfg.ClockWorkers = n
	}
	if v := strings.TrimSpace(os.Getenv("CLOCK_EXPIRY_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ClockExpiryBuffer = n
		}
	}
	if n, ok := positiveInt("INVITE_TTL_HOURS"); ok {
		cfg.InviteTTL = time.Duration(n) * time.Hour
	}
	if n, ok := positiveInt("LIST_LIMIT"); ok {
		cfg.ListLimit = n
	}
	if v := strings.TrimSpace(os.Getenv("WEBHOOK_RETRY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.WebhookRetry = n
		}
	}
	if n, ok := positiveInt("BOARD_IMAGE_SIZE"); ok {
		cfg.BoardImageSize = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("HTTP_ADDR is required")
	}
	if c.ClockResolution > c.ClockTickInterval {
		return fmt.Errorf("CLOCK_RESOLUTION_MS (%s) must not exceed CLOCK_TICK_INTERVAL_MS (%s)", c.ClockResolution, c.ClockTickInterval)
	}
	if c.ClockWorkers > 256 {
		return fmt.Errorf("CLOCK_WORKERS too large: %d", c.ClockWorkers)
	}
	if c.BoardImageSize < 64 || c.BoardImageSize > 2048 {
		return fmt.Errorf("BOARD_IMAGE_SIZE out of range: %d", c.BoardImageSize)
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("REDIS_URL must use redis:// or rediss://")
	}
	return nil
}

func positiveInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
