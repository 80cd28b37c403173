package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	genericErrorText  = "Сталася тимчасова помилка. Спробуй ще раз."
	subjectLostText   = "Предмет не знайдено. Спробуй ще раз."
	testDelayAfterSub = 3 * time.Minute
)

type scheduleBot struct {
	bot           *tgbotapi.BotAPI
	source        rowSource
	subs          subscriberStore
	loc           *time.Location
	upcomingLimit int
}

func newScheduleBot(bot *tgbotapi.BotAPI, source rowSource, subs subscriberStore, loc *time.Location, upcomingLimit int) *scheduleBot {
	if upcomingLimit <= 0 {
		upcomingLimit = 10
	}
	return &scheduleBot{bot: bot, source: source, subs: subs, loc: loc, upcomingLimit: upcomingLimit}
}

func mainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Розклад на сьогодні", "m:today"),
			tgbotapi.NewInlineKeyboardButtonData("Розклад на завтра", "m:tomorrow"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Розклад на тиждень", "m:week"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Розклад по предмету", "m:subject"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Найближчі пари", "m:next"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Підключити сповіщення", "m:notify_on"),
			tgbotapi.NewInlineKeyboardButtonData("Відключити сповіщення", "m:notify_off"),
		),
	)
}

func (b *scheduleBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *scheduleBot) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	log.Printf("command: chat=%d cmd=%q", chatID, m.Command())
	switch m.Command() {
	case "start":
		b.sendMenu(chatID, "Обери дію:")
	case "today":
		b.respondDay(ctx, chatID, nil, 0)
	case "tomorrow":
		b.respondDay(ctx, chatID, nil, 1)
	case "week":
		b.respondWeek(ctx, chatID, nil, 0)
	case "nextweek":
		b.respondWeek(ctx, chatID, nil, 1)
	case "date":
		arg := strings.TrimSpace(m.CommandArguments())
		if arg == "" {
			b.sendPlain(chatID, "Формат: /date DD.MM.YYYY (або YYYY-MM-DD)")
			return
		}
		target := normalizeDate(arg)
		if target.IsZero() {
			b.sendPlain(chatID, "Не розпізнав дату. Приклад: /date 25.09.2025")
			return
		}
		b.respondDate(ctx, chatID, nil, target)
	case "subject":
		name := strings.TrimSpace(m.CommandArguments())
		if name == "" {
			b.respondSubjectMenu(ctx, chatID, nil, 0)
			return
		}
		b.respondSubject(ctx, chatID, nil, name)
	case "next":
		b.respondUpcoming(ctx, chatID, nil)
	case "notify_on":
		b.respondNotify(ctx, chatID, nil, true)
	case "notify_off":
		b.respondNotify(ctx, chatID, nil, false)
	case "help":
		b.sendPlain(chatID, helpText())
	case "debug":
		b.respondDebug(ctx, chatID)
	default:
		b.sendPlain(chatID, "Невідома команда. Дивись /help")
	}
}

func helpText() string {
	return strings.Join([]string{
		"/start — меню",
		"/today — розклад на сьогодні",
		"/tomorrow — розклад на завтра",
		"/week — розклад на тиждень",
		"/nextweek — розклад на наступний тиждень",
		"/date DD.MM.YYYY — розклад на дату",
		"/subject Назва — розклад по предмету (без аргументу відкриє список)",
		"/next — найближчі пари",
		"/notify_on — підключити сповіщення",
		"/notify_off — відключити сповіщення",
		"/debug — діагностика таблиці",
	}, "\n")
}

func (b *scheduleBot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack failed: %v", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	origin := cb.Message
	data := cb.Data
	log.Printf("callback: chat=%d data=%q", chatID, data)

	switch data {
	case "m:today":
		b.respondDay(ctx, chatID, origin, 0)
	case "m:tomorrow":
		b.respondDay(ctx, chatID, origin, 1)
	case "m:week":
		b.respondWeek(ctx, chatID, origin, 0)
	case "m:subject":
		b.respondSubjectMenu(ctx, chatID, origin, 0)
	case "m:next":
		b.respondUpcoming(ctx, chatID, origin)
	case "m:notify_on":
		b.respondNotify(ctx, chatID, origin, true)
	case "m:notify_off":
		b.respondNotify(ctx, chatID, origin, false)
	default:
		if strings.HasPrefix(data, "subj:") {
			b.handleSubjectCallback(ctx, chatID, origin, data)
		}
	}
}

// handleSubjectCallback resolves "subj:<page>:<token>" payloads. The page
// slice is recomputed from current rows instead of session state, so a
// button outlives any restart; a reference the current catalog no longer
// covers gets the not-found reply.
func (b *scheduleBot) handleSubjectCallback(ctx context.Context, chatID int64, origin *tgbotapi.Message, data string) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil {
		b.sendPlain(chatID, subjectLostText)
		return
	}
	if parts[2] == "__page__" {
		b.respondSubjectMenu(ctx, chatID, origin, page)
		return
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		b.sendPlain(chatID, subjectLostText)
		return
	}
	lessons, ok := b.loadLessons(ctx, chatID)
	if !ok {
		return
	}
	name, found := resolveSubject(listSubjects(lessons), page, idx)
	if !found {
		b.sendPlain(chatID, subjectLostText)
		return
	}
	b.renderSubject(chatID, origin, lessons, name)
}

// loadLessons pulls and normalizes current rows, reporting failures to the
// chat. The boolean is false when the caller should stop.
func (b *scheduleBot) loadLessons(ctx context.Context, chatID int64) ([]LessonRecord, bool) {
	rows, err := b.source.getRows(ctx)
	if err != nil {
		log.Printf("load rows failed: chat=%d err=%v", chatID, err)
		b.sendPlain(chatID, genericErrorText)
		return nil, false
	}
	return normalizeRows(rows), true
}

func (b *scheduleBot) today() time.Time {
	return dayOf(time.Now().In(b.loc))
}

func (b *scheduleBot) respondDay(ctx context.Context, chatID int64, origin *tgbotapi.Message, deltaDays int) {
	b.respondDate(ctx, chatID, origin, b.today().AddDate(0, 0, deltaDays))
}

func (b *scheduleBot) respondDate(ctx context.Context, chatID int64, origin *tgbotapi.Message, target time.Time) {
	lessons, ok := b.loadLessons(ctx, chatID)
	if !ok {
		return
	}
	day := filterLessons(lessons, LessonFilter{Date: target})
	b.sendOrEdit(chatID, origin, formatDay(target, day), mainMenu())
}

func (b *scheduleBot) respondWeek(ctx context.Context, chatID int64, origin *tgbotapi.Message, weeksAhead int) {
	lessons, ok := b.loadLessons(ctx, chatID)
	if !ok {
		return
	}
	today := b.today()
	monday := today.AddDate(0, 0, -((int(today.Weekday())+6)%7)+7*weeksAhead)
	week := filterLessons(lessons, LessonFilter{From: monday, To: monday.AddDate(0, 0, 6)})
	b.sendOrEdit(chatID, origin, formatWeek(monday, week), mainMenu())
}

func (b *scheduleBot) respondUpcoming(ctx context.Context, chatID int64, origin *tgbotapi.Message) {
	lessons, ok := b.loadLessons(ctx, chatID)
	if !ok {
		return
	}
	upcoming := filterLessons(lessons, LessonFilter{From: b.today()})
	if len(upcoming) > b.upcomingLimit {
		upcoming = upcoming[:b.upcomingLimit]
	}
	b.sendOrEdit(chatID, origin, formatGrouped(upcoming), mainMenu())
}

func (b *scheduleBot) respondSubject(ctx context.Context, chatID int64, origin *tgbotapi.Message, name string) {
	lessons, ok := b.loadLessons(ctx, chatID)
	if !ok {
		return
	}
	b.renderSubject(chatID, origin, lessons, name)
}

func (b *scheduleBot) renderSubject(chatID int64, origin *tgbotapi.Message, lessons []LessonRecord, name string) {
	res := filterLessons(lessons, LessonFilter{Subject: name, From: b.today()})
	body := nothingFound
	if len(res) > 0 {
		body = formatGrouped(res)
	}
	b.sendOrEdit(chatID, origin, fmt.Sprintf("Розклад по предмету: %s\n\n%s", name, body), mainMenu())
}

func (b *scheduleBot) respondSubjectMenu(ctx context.Context, chatID int64, origin *tgbotapi.Message, page int) {
	lessons, ok := b.loadLessons(ctx, chatID)
	if !ok {
		return
	}
	subjects := listSubjects(lessons)
	if len(subjects) == 0 {
		b.sendOrEdit(chatID, origin, "У таблиці немає предметів.", mainMenu())
		return
	}
	names, page, pages := subjectPage(subjects, page)

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, name := range names {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, fmt.Sprintf("subj:%d:%d", page, i)),
		))
	}
	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("« Назад", fmt.Sprintf("subj:%d:__page__", page-1)))
	}
	if page < pages-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Далі »", fmt.Sprintf("subj:%d:__page__", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Меню", "m:today"),
	))
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	text := fmt.Sprintf("Оберіть предмет (стор. %d/%d)", page+1, pages)

	if origin != nil {
		edit := tgbotapi.NewEditMessageText(chatID, origin.MessageID, text)
		edit.ReplyMarkup = &kb
		if _, err := b.bot.Send(edit); err == nil {
			return
		}
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.bot.Send(msg); err != nil {
		log.Printf("send subject menu failed: chat=%d err=%v", chatID, err)
	}
}

func (b *scheduleBot) respondNotify(ctx context.Context, chatID int64, origin *tgbotapi.Message, enable bool) {
	already, err := b.subs.IsEnabled(ctx, chatID)
	if err != nil {
		log.Printf("subscription check failed: chat=%d err=%v", chatID, err)
		b.sendPlain(chatID, genericErrorText)
		return
	}
	if already == enable {
		if enable {
			b.sendOrEdit(chatID, origin, "Сповіщення вже підключені ✅", mainMenu())
		} else {
			b.sendOrEdit(chatID, origin, "Сповіщення вже відключені ❎", mainMenu())
		}
		return
	}
	if err := b.subs.Upsert(ctx, chatID, enable); err != nil {
		log.Printf("subscription update failed: chat=%d enable=%t err=%v", chatID, enable, err)
		b.sendOrEdit(chatID, origin,
			"Не зміг оновити підписку. Перевір доступ Editor для сервісної пошти.", mainMenu())
		return
	}
	if !enable {
		b.sendOrEdit(chatID, origin, "Сповіщення відключені ❎", mainMenu())
		return
	}
	b.sendOrEdit(chatID, origin,
		"Сповіщення підключені ✅\nПротягом 3 хв ви отримаєте тестове повідомлення.", mainMenu())
	time.AfterFunc(testDelayAfterSub, func() {
		if err := sendChunked(b.bot, chatID, "🔔 Тестове сповіщення: все працює ✅"); err != nil {
			log.Printf("test notification failed: chat=%d err=%v", chatID, err)
		}
	})
}

func (b *scheduleBot) respondDebug(ctx context.Context, chatID int64) {
	rows, err := b.source.getRows(ctx)
	if err != nil {
		b.sendPlain(chatID, fmt.Sprintf("DEBUG ERROR: %v", err))
		return
	}
	var cols []string
	if len(rows) > 0 {
		for k := range rows[0] {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	lessons := normalizeRows(rows)
	todayRows := filterLessons(lessons, LessonFilter{Date: b.today()})
	subsCount := -1
	if subs, err := b.subs.Enabled(ctx); err == nil {
		subsCount = len(subs)
	}
	b.sendPlain(chatID, fmt.Sprintf(
		"Колонок: %d\nНазви колонок: %s\nРядків у таблиці: %d\nСьогодні: %d рядків\nПідписників: %d",
		len(cols), strings.Join(cols, ", "), len(rows), len(todayRows), subsCount))
}

func (b *scheduleBot) sendMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenu()
	if _, err := b.bot.Send(msg); err != nil {
		log.Printf("send menu failed: chat=%d err=%v", chatID, err)
	}
}

func (b *scheduleBot) sendPlain(chatID int64, text string) {
	if err := sendChunked(b.bot, chatID, text); err != nil {
		log.Printf("send failed: chat=%d err=%v", chatID, err)
	}
}

// sendOrEdit answers a button press by editing the originating message with
// the first chunk, falling back to a plain send when the edit is rejected
// (too old, identical text). The keyboard rides on the last chunk only.
func (b *scheduleBot) sendOrEdit(chatID int64, origin *tgbotapi.Message, text string, kb tgbotapi.InlineKeyboardMarkup) {
	chunks := splitText(text, maxChunkRunes)
	first := 0
	if origin != nil {
		edit := tgbotapi.NewEditMessageText(chatID, origin.MessageID, chunks[0])
		if len(chunks) == 1 {
			edit.ReplyMarkup = &kb
		}
		if _, err := b.bot.Send(edit); err != nil {
			log.Printf("edit failed, fallback to send: chat=%d err=%v", chatID, err)
		} else {
			first = 1
		}
	}
	for i := first; i < len(chunks); i++ {
		msg := tgbotapi.NewMessage(chatID, chunks[i])
		if i == len(chunks)-1 {
			msg.ReplyMarkup = kb
		}
		if _, err := b.bot.Send(msg); err != nil {
			log.Printf("send failed: chat=%d err=%v", chatID, err)
			return
		}
	}
}

// sendChunked splits long text across messages. Telegram rejects invalid
// UTF-8, so the text is scrubbed first.
func sendChunked(bot *tgbotapi.BotAPI, chatID int64, text string) error {
	text = strings.ToValidUTF8(text, " ")
	for _, part := range splitText(text, maxChunkRunes) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if _, err := bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return err
		}
	}
	return nil
}
