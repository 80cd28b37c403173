package main

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("SHEET_ID", "sheet")
	t.Setenv("GOOGLE_CREDENTIALS_JSON", "{}")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error without BOT_TOKEN")
	}
}

func TestLoadConfigRequiresSource(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("SHEET_ID", "")
	t.Setenv("GOOGLE_CREDENTIALS_JSON", "")
	t.Setenv("SCHEDULE_ICAL_URL", "")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error without a schedule source")
	}
}

func TestLoadConfigICalNeedsSubscribersFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("SHEET_ID", "")
	t.Setenv("GOOGLE_CREDENTIALS_JSON", "")
	t.Setenv("SCHEDULE_ICAL_URL", "https://calendar.example/feed.ics")
	t.Setenv("SUBSCRIBERS_FILE", "")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error: ical source without a subscribers file")
	}
	t.Setenv("SUBSCRIBERS_FILE", "data/subscribers.json")
	if _, err := loadConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("SHEET_ID", "sheet")
	t.Setenv("GOOGLE_CREDENTIALS_JSON", "{}")
	t.Setenv("SHEET_NAME", "")
	t.Setenv("WEBHOOK_PATH", "")
	t.Setenv("NOTIFY_EVERY", "")
	t.Setenv("TZ_LOCATION", "")
	t.Setenv("LOG_ROTATE_TIME", "")
	t.Setenv("LOG_RETENTION_DAYS", "")
	t.Setenv("UPCOMING_LIMIT", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SheetName != "Schedule" {
		t.Errorf("SheetName = %q, want Schedule", cfg.SheetName)
	}
	if cfg.WebhookPath != "/telegram" {
		t.Errorf("WebhookPath = %q, want /telegram", cfg.WebhookPath)
	}
	if cfg.NotifyEvery != 60*time.Second {
		t.Errorf("NotifyEvery = %v, want 60s", cfg.NotifyEvery)
	}
	if cfg.Timezone != "Europe/Kyiv" {
		t.Errorf("Timezone = %q, want Europe/Kyiv", cfg.Timezone)
	}
	if cfg.UpcomingLimit != 10 {
		t.Errorf("UpcomingLimit = %d, want 10", cfg.UpcomingLimit)
	}
}

func TestParseClockHHMM(t *testing.T) {
	h, m, err := parseClockHHMM("09:45")
	if err != nil || h != 9 || m != 45 {
		t.Errorf("parseClockHHMM(09:45) = %d:%d err=%v", h, m, err)
	}
	if _, _, err := parseClockHHMM("25:00"); err == nil {
		t.Error("expected error for 25:00")
	}
}
