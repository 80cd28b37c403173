package main

import (
	"strings"
	"testing"
	"time"
)

func lessonAt(d time.Time, hhmm, subject string) LessonRecord {
	return LessonRecord{Date: d, TimeStart: hhmm, Subject: subject, Lesson: "1"}
}

func TestSweepWindowBoundaries(t *testing.T) {
	now := time.Date(2025, time.September, 1, 8, 50, 0, 0, time.UTC)
	today := dayOf(now)

	cases := []struct {
		name  string
		start string // lesson start clock time
		tick  time.Time
		fires bool
	}{
		{"exactly 600s before", "09:00", now, true},
		{"601s before", "09:00", now.Add(-time.Second), false},
		{"inside the window", "09:00", now.Add(5 * time.Minute), true},
		{"at start", "09:00", now.Add(10 * time.Minute), true},
		{"already started", "09:00", now.Add(10*time.Minute + time.Second), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			state, notices := sweepReminders(c.tick, []LessonRecord{lessonAt(today, c.start, "Math")}, newSweepState())
			if (len(notices) == 1) != c.fires {
				t.Errorf("fired=%t, want %t", len(notices) == 1, c.fires)
			}
			if c.fires && len(state.Fired) != 1 {
				t.Errorf("fired key not recorded")
			}
		})
	}
}

func TestSweepDedupAcrossTicks(t *testing.T) {
	d := dayOf(time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC))
	lessons := []LessonRecord{lessonAt(d, "09:00", "Math")}

	first := time.Date(2025, time.September, 1, 8, 55, 0, 0, time.UTC)
	state, notices := sweepReminders(first, lessons, newSweepState())
	if len(notices) != 1 {
		t.Fatalf("first tick fired %d notices, want 1", len(notices))
	}
	state, notices = sweepReminders(first.Add(time.Minute), lessons, state)
	if len(notices) != 0 {
		t.Fatalf("second tick fired %d notices, want 0", len(notices))
	}
	if len(state.Fired) != 1 {
		t.Fatalf("dedup set has %d keys, want 1", len(state.Fired))
	}
}

func TestSweepRolloverResetsDedup(t *testing.T) {
	d1 := dayOf(time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC))
	tick1 := time.Date(2025, time.September, 1, 8, 55, 0, 0, time.UTC)
	state, notices := sweepReminders(tick1, []LessonRecord{lessonAt(d1, "09:00", "Math")}, newSweepState())
	if len(notices) != 1 {
		t.Fatalf("day one fired %d, want 1", len(notices))
	}

	// Same clock time next day: the key must fire again after rollover.
	d2 := d1.AddDate(0, 0, 1)
	tick2 := tick1.AddDate(0, 0, 1)
	state, notices = sweepReminders(tick2, []LessonRecord{lessonAt(d2, "09:00", "Math")}, state)
	if len(notices) != 1 {
		t.Fatalf("day two fired %d, want 1", len(notices))
	}
	if state.Day != "2025-09-02" {
		t.Errorf("state day = %q, want 2025-09-02", state.Day)
	}
	if len(state.Fired) != 1 {
		t.Errorf("dedup set not reset on rollover: %d keys", len(state.Fired))
	}
}

func TestSweepIgnoresOtherDaysAndMissingTimes(t *testing.T) {
	now := time.Date(2025, time.September, 1, 8, 55, 0, 0, time.UTC)
	today := dayOf(now)
	lessons := []LessonRecord{
		lessonAt(today.AddDate(0, 0, 1), "09:00", "Tomorrow"),
		{Date: today, Subject: "NoTime", Lesson: "2"},
		{TimeStart: "09:00", Subject: "NoDate"},
	}
	_, notices := sweepReminders(now, lessons, newSweepState())
	if len(notices) != 0 {
		t.Fatalf("fired %d notices, want 0", len(notices))
	}
}

func TestSweepNoticeText(t *testing.T) {
	now := time.Date(2025, time.September, 1, 8, 55, 0, 0, time.UTC)
	rec := LessonRecord{
		Date: dayOf(now), Lesson: "1", TimeStart: "09:00", TimeEnd: "10:20",
		Subject: "Алгебра", Type: "лекція", Teacher: "Іваненко",
	}
	_, notices := sweepReminders(now, []LessonRecord{rec}, newSweepState())
	if len(notices) != 1 {
		t.Fatalf("fired %d notices, want 1", len(notices))
	}
	text := notices[0].Text
	if !strings.HasPrefix(text, "🔔 Нагадування: о 09:00 починається\n") {
		t.Errorf("notice header wrong: %q", text)
	}
	if !strings.Contains(text, "1 (09:00–10:20) — Алгебра (лекція), Іваненко") {
		t.Errorf("notice body wrong: %q", text)
	}
}

func TestSweepDistinctLessonsBothFire(t *testing.T) {
	now := time.Date(2025, time.September, 1, 8, 55, 0, 0, time.UTC)
	today := dayOf(now)
	lessons := []LessonRecord{
		{Date: today, Lesson: "1", TimeStart: "09:00", Subject: "Math"},
		{Date: today, Lesson: "2", TimeStart: "09:04", Subject: "Physics"},
	}
	_, notices := sweepReminders(now, lessons, newSweepState())
	if len(notices) != 2 {
		t.Fatalf("fired %d notices, want 2", len(notices))
	}
}
