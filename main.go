package main

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"google.golang.org/api/sheets/v4"
)

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	logWriter, err := newDailyLogWriter(cfg.LogDir, cfg.LogRotateTime, cfg.LogRetentionDays, loc)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logWriter.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logWriter))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sheetsSvc *sheets.Service
	if cfg.SheetID != "" && cfg.GoogleCredentials != "" {
		sheetsSvc, err = newSheetsService(ctx, cfg.GoogleCredentials)
		if err != nil {
			log.Fatalf("sheets init error: %v", err)
		}
	}

	var source rowSource
	if cfg.ICalURL != "" {
		source = newICalSource(cfg.ICalURL, &http.Client{Timeout: cfg.HTTPTimeout}, loc)
		log.Printf("schedule source: ical feed")
	} else {
		source = newSheetSource(sheetsSvc, cfg.SheetID, cfg.SheetName)
		log.Printf("schedule source: worksheet %q", cfg.SheetName)
	}

	var subs subscriberStore
	if cfg.SubscribersFile != "" {
		subs, err = newFileSubscriberStore(cfg.SubscribersFile, loc)
		if err != nil {
			log.Fatalf("subscribers store error: %v", err)
		}
		log.Printf("subscribers store: file %s", cfg.SubscribersFile)
	} else {
		subs = newSheetSubscriberStore(sheetsSvc, cfg.SheetID, loc)
		log.Printf("subscribers store: worksheet %q", subsWorksheet)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot init error: %v", err)
	}
	log.Printf("authorized as %s", bot.Self.UserName)

	engine := newReminderEngine(bot, source, subs, loc)
	go engine.run(ctx, cfg.NotifyEvery)

	app := newScheduleBot(bot, source, subs, loc, cfg.UpcomingLimit)

	var updates tgbotapi.UpdatesChannel
	if cfg.WebhookURL != "" {
		updates, err = startWebhook(bot, cfg)
		if err != nil {
			log.Fatalf("webhook init error: %v", err)
		}
	} else {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updates = bot.GetUpdatesChan(u)
		log.Printf("long polling started")
	}

	for update := range updates {
		app.handleUpdate(ctx, update)
	}
}

func startWebhook(bot *tgbotapi.BotAPI, cfg Config) (tgbotapi.UpdatesChannel, error) {
	hookURL := cfg.WebhookURL
	if !strings.HasSuffix(hookURL, cfg.WebhookPath) {
		hookURL = strings.TrimSuffix(hookURL, "/") + cfg.WebhookPath
	}
	wh, err := tgbotapi.NewWebhook(hookURL)
	if err != nil {
		return nil, err
	}
	if _, err := bot.Request(wh); err != nil {
		return nil, err
	}
	updates := bot.ListenForWebhook(cfg.WebhookPath)
	addr := net.JoinHostPort(cfg.ListenAddr, cfg.Port)
	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Fatalf("webhook server error: %v", err)
		}
	}()
	log.Printf("webhook listening on %s%s", addr, cfg.WebhookPath)
	return updates, nil
}
