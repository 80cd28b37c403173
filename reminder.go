package main

import (
	"context"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// reminderWindow is how far before its start a lesson triggers a reminder.
const reminderWindow = 10 * time.Minute

type reminderKey struct {
	Day     string
	Lesson  string
	Subject string
	Hour    int
	Minute  int
}

// sweepState carries the dedup set across ticks. Fired keys reset when the
// local calendar day changes.
type sweepState struct {
	Day   string
	Fired map[reminderKey]struct{}
}

func newSweepState() sweepState {
	return sweepState{Fired: make(map[reminderKey]struct{})}
}

type reminderNotice struct {
	Key  reminderKey
	Text string
}

// sweepReminders is one evaluation tick as a pure function: given the clock,
// the lesson set and the previous state it returns the next state and the
// reminders that fire now. A lesson fires when it starts today, within
// [0, 10min] from now inclusive, and its key has not fired today.
func sweepReminders(now time.Time, lessons []LessonRecord, state sweepState) (sweepState, []reminderNotice) {
	today := dayOf(now)
	if state.Day != today.Format("2006-01-02") || state.Fired == nil {
		state.Day = today.Format("2006-01-02")
		state.Fired = make(map[reminderKey]struct{})
	}

	var notices []reminderNotice
	for _, r := range lessons {
		if !r.HasDate() || !r.Date.Equal(today) {
			continue
		}
		hh, mm, ok := parseTimeStart(r)
		if !ok {
			continue
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		delta := start.Sub(now)
		if delta < 0 || delta > reminderWindow {
			continue
		}
		key := reminderKey{Day: state.Day, Lesson: r.Lesson, Subject: r.Subject, Hour: hh, Minute: mm}
		if _, fired := state.Fired[key]; fired {
			continue
		}
		state.Fired[key] = struct{}{}
		notices = append(notices, reminderNotice{Key: key, Text: buildReminderText(r, start)})
	}
	return state, notices
}

func buildReminderText(r LessonRecord, start time.Time) string {
	return fmt.Sprintf("🔔 Нагадування: о %s починається\n%s",
		start.Format("15:04"), formatLessonLine(r, 0))
}

// reminderEngine drives the periodic sweep. It owns the sweep state; the
// loop runs in a single goroutine so ticks never overlap.
type reminderEngine struct {
	bot    *tgbotapi.BotAPI
	source rowSource
	subs   subscriberStore
	loc    *time.Location
	state  sweepState
}

func newReminderEngine(bot *tgbotapi.BotAPI, source rowSource, subs subscriberStore, loc *time.Location) *reminderEngine {
	return &reminderEngine{bot: bot, source: source, subs: subs, loc: loc, state: newSweepState()}
}

func (e *reminderEngine) run(ctx context.Context, interval time.Duration) {
	// Short initial delay so startup finishes before the first sweep.
	first := time.NewTimer(10 * time.Second)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}
	e.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick re-fetches subscribers and rows every time; a failed tick logs and
// waits for the next interval, there are no retries here.
func (e *reminderEngine) tick(ctx context.Context) {
	now := time.Now().In(e.loc)
	subs, err := e.subs.Enabled(ctx)
	if err != nil {
		log.Printf("reminder: load subscribers failed: %v", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	rows, err := e.source.getRows(ctx)
	if err != nil {
		log.Printf("reminder: load rows failed: %v", err)
		return
	}

	var notices []reminderNotice
	e.state, notices = sweepReminders(now, normalizeRows(rows), e.state)
	for _, n := range notices {
		for chatID := range subs {
			if err := sendChunked(e.bot, chatID, n.Text); err != nil {
				log.Printf("reminder: send to %d failed: %v", chatID, err)
				continue
			}
		}
		log.Printf("reminder fired: %s %02d:%02d %q", n.Key.Day, n.Key.Hour, n.Key.Minute, n.Key.Subject)
	}
}
