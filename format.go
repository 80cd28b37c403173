package main

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Telegram caps messages at 4096 chars; 3500 leaves headroom for entities.
const maxChunkRunes = 3500

const nothingFound = "Нічого не знайдено."

func timeSpan(r LessonRecord) string {
	switch {
	case r.TimeStart != "" && r.TimeEnd != "":
		return r.TimeStart + "–" + r.TimeEnd
	case r.TimeStart != "":
		return r.TimeStart
	default:
		return r.TimeEnd
	}
}

// formatLessonLine renders one lesson as "label (span) — subject (type), teacher".
// Either side may be empty; no separator is emitted for an empty side.
// fallbackIdx substitutes a bare positional number when the label is absent.
func formatLessonLine(r LessonRecord, fallbackIdx int) string {
	lesson := r.Lesson
	if lesson == "" && fallbackIdx > 0 {
		lesson = strconv.Itoa(fallbackIdx)
	}
	left := lesson
	if span := timeSpan(r); span != "" {
		if lesson != "" {
			left = lesson + " (" + span + ")"
		} else {
			left = "(" + span + ")"
		}
	}

	subjTyp := ""
	switch {
	case r.Subject != "" && r.Type != "":
		subjTyp = r.Subject + " (" + r.Type + ")"
	case r.Subject != "":
		subjTyp = r.Subject
	case r.Type != "":
		subjTyp = "(" + r.Type + ")"
	}
	var rightParts []string
	for _, p := range []string{subjTyp, r.Teacher} {
		if p != "" {
			rightParts = append(rightParts, p)
		}
	}
	right := strings.Join(rightParts, ", ")

	if left != "" && right != "" {
		return left + " — " + right
	}
	if left != "" {
		return left
	}
	return right
}

func dayHeader(d time.Time) string {
	return deriveWeekday(d) + ", " + d.Format("02.01.2006")
}

// formatDay renders a single day's lessons under its header.
func formatDay(target time.Time, records []LessonRecord) string {
	if len(records) == 0 {
		return dayHeader(target) + "\n" + nothingFound
	}
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, dayHeader(target))
	for i, r := range records {
		lines = append(lines, formatLessonLine(r, i+1))
	}
	return strings.Join(lines, "\n")
}

// formatWeek renders Monday through Saturday as blank-line separated blocks.
// Empty days get a dash body instead of the full placeholder.
func formatWeek(monday time.Time, records []LessonRecord) string {
	byDate := make(map[time.Time][]LessonRecord)
	for _, r := range records {
		if r.HasDate() {
			byDate[r.Date] = append(byDate[r.Date], r)
		}
	}
	blocks := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		day := monday.AddDate(0, 0, i)
		rows := byDate[day]
		sort.SliceStable(rows, func(a, b int) bool {
			ka := rows[a].Lesson + "\x00" + rows[a].TimeStart
			kb := rows[b].Lesson + "\x00" + rows[b].TimeStart
			return ka < kb
		})
		if len(rows) == 0 {
			blocks = append(blocks, dayHeader(day)+"\n—")
			continue
		}
		lines := []string{dayHeader(day)}
		for j, r := range rows {
			lines = append(lines, formatLessonLine(r, j+1))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// formatGrouped renders date-sorted records as one block per calendar day.
func formatGrouped(records []LessonRecord) string {
	dated := make([]LessonRecord, 0, len(records))
	for _, r := range records {
		if r.HasDate() {
			dated = append(dated, r)
		}
	}
	if len(dated) == 0 {
		return nothingFound
	}
	sort.SliceStable(dated, func(i, j int) bool {
		if !dated[i].Date.Equal(dated[j].Date) {
			return dated[i].Date.Before(dated[j].Date)
		}
		return dated[i].TimeStart < dated[j].TimeStart
	})

	var blocks []string
	var lines []string
	var current time.Time
	idx := 0
	for _, r := range dated {
		if len(lines) == 0 || !r.Date.Equal(current) {
			if len(lines) > 0 {
				blocks = append(blocks, strings.Join(lines, "\n"))
			}
			current = r.Date
			lines = []string{dayHeader(current)}
			idx = 0
		}
		idx++
		lines = append(lines, formatLessonLine(r, idx))
	}
	blocks = append(blocks, strings.Join(lines, "\n"))
	return strings.Join(blocks, "\n\n")
}

// splitText chunks long output for the transport. It cuts at the last
// newline at or before the limit and falls back to a hard cut when a single
// line exceeds it. At most one newline is consumed per cut, so blank lines
// at a chunk boundary survive and rejoining with "\n" restores the text.
func splitText(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = maxChunkRunes
	}
	r := []rune(text)
	var parts []string
	for len(r) > maxRunes {
		cut := -1
		for i := maxRunes - 1; i >= 0; i-- {
			if r[i] == '\n' {
				cut = i
				break
			}
		}
		if cut == -1 {
			cut = maxRunes
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
		if len(r) > 0 && r[0] == '\n' {
			r = r[1:]
		}
	}
	return append(parts, string(r))
}
