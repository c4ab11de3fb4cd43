// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	DatabasePath     string
	LogLevel         string
	AdminUserIDs     []int64
	PollInterval     time.Duration
	PollWorkers      int
	FetchTimeout     time.Duration
	SendTimeout      time.Duration
	SendRate         float64
	WebhookURL       string
	HTTPAddr         string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	admins, err := parseIDs("ADMIN_USER_IDS")
	if err != nil {
		return nil, err
	}

	pollInterval, err := durationEnv("POLL_INTERVAL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := durationEnv("FETCH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	sendTimeout, err := durationEnv("SEND_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	workers, err := intEnv("POLL_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	sendRate := 20.0
	if raw := os.Getenv("SEND_RATE"); raw != "" {
		sendRate, err = strconv.ParseFloat(raw, 64)
		if err != nil || sendRate <= 0 {
			return nil, fmt.Errorf("invalid SEND_RATE %q", raw)
		}
	}

	return &Config{
		TelegramBotToken: token,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabasePath:     stringEnv("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         stringEnv("LOG_LEVEL", "info"),
		AdminUserIDs:     admins,
		PollInterval:     pollInterval,
		PollWorkers:      workers,
		FetchTimeout:     fetchTimeout,
		SendTimeout:      sendTimeout,
		SendRate:         sendRate,
		WebhookURL:       strings.TrimRight(os.Getenv("WEBHOOK_URL"), "/"),
		HTTPAddr:         stringEnv("HTTP_ADDR", ":10000"),
	}, nil
}

// IsAdmin checks whether a user ID is in the admin list.
// An empty list admits nobody.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminUserIDs, userID)
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

func parseIDs(key string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(os.Getenv(key), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
