package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	BotToken          string
	SheetID           string
	SheetName         string
	GoogleCredentials string
	ICalURL           string
	SubscribersFile   string
	WebhookURL        string
	WebhookPath       string
	ListenAddr        string
	Port              string
	Timezone          string
	NotifyEvery       time.Duration
	UpcomingLimit     int
	HTTPTimeout       time.Duration
	LogDir            string
	LogRotateTime     string
	LogRetentionDays  int
}

func loadConfig() (Config, error) {
	cfg := Config{
		BotToken:          strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		SheetID:           strings.TrimSpace(os.Getenv("SHEET_ID")),
		SheetName:         envOrDefault("SHEET_NAME", "Schedule"),
		GoogleCredentials: strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_JSON")),
		ICalURL:           strings.TrimSpace(os.Getenv("SCHEDULE_ICAL_URL")),
		SubscribersFile:   strings.TrimSpace(os.Getenv("SUBSCRIBERS_FILE")),
		WebhookURL:        strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
		WebhookPath:       envOrDefault("WEBHOOK_PATH", "/telegram"),
		ListenAddr:        envOrDefault("LISTEN_ADDR", "0.0.0.0"),
		Port:              envOrDefault("PORT", "8080"),
		Timezone:          envOrDefault("TZ_LOCATION", "Europe/Kyiv"),
		NotifyEvery:       durationEnvOrDefault("NOTIFY_EVERY", 60*time.Second),
		UpcomingLimit:     intEnvOrDefault("UPCOMING_LIMIT", 10),
		HTTPTimeout:       durationEnvOrDefault("HTTP_TIMEOUT", 20*time.Second),
		LogDir:            envOrDefault("LOG_DIR", "data/logs"),
		LogRotateTime:     envOrDefault("LOG_ROTATE_TIME", "00:05"),
		LogRetentionDays:  intEnvOrDefault("LOG_RETENTION_DAYS", 14),
	}
	if cfg.BotToken == "" {
		return Config{}, errors.New("BOT_TOKEN is required")
	}
	hasSheets := cfg.SheetID != "" && cfg.GoogleCredentials != ""
	if !hasSheets && cfg.ICalURL == "" {
		return Config{}, errors.New("set SHEET_ID and GOOGLE_CREDENTIALS_JSON, or SCHEDULE_ICAL_URL")
	}
	if !hasSheets && cfg.SubscribersFile == "" {
		return Config{}, errors.New("SUBSCRIBERS_FILE is required when no sheet credentials are set")
	}
	if cfg.NotifyEvery < time.Second {
		return Config{}, errors.New("NOTIFY_EVERY must be at least 1s")
	}
	if _, _, err := parseClockHHMM(cfg.LogRotateTime); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_ROTATE_TIME: %w", err)
	}
	if cfg.LogRetentionDays < 1 {
		return Config{}, errors.New("LOG_RETENTION_DAYS must be >= 1")
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func durationEnvOrDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func intEnvOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
		return def
	}
	return out
}

func parseClockHHMM(v string) (int, int, error) {
	tm, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, 0, err
	}
	return tm.Hour(), tm.Minute(), nil
}
