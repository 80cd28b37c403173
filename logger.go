package main

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// dailyLogWriter appends to current.log and once a day archives it as a
// gzipped sched-YYYY-MM-DD.log, dropping archives past retention.
type dailyLogWriter struct {
	mu         sync.Mutex
	dir        string
	file       *os.File
	currentDay string
	loc        *time.Location
	retention  int
	hour       int
	minute     int
	stopCh     chan struct{}
}

func newDailyLogWriter(dir, rotateHHMM string, retentionDays int, loc *time.Location) (*dailyLogWriter, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("log dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	h, m, err := parseClockHHMM(rotateHHMM)
	if err != nil {
		return nil, err
	}
	w := &dailyLogWriter{
		dir:        dir,
		loc:        loc,
		retention:  retentionDays,
		hour:       h,
		minute:     m,
		stopCh:     make(chan struct{}),
		currentDay: time.Now().In(loc).Format("2006-01-02"),
	}
	if err := w.openCurrentLocked(); err != nil {
		return nil, err
	}
	if err := w.cleanupOldArchives(); err != nil {
		log.Printf("log cleanup warning: %v", err)
	}
	go w.rotateLoop()
	return w, nil
}

func (w *dailyLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		if err := w.openCurrentLocked(); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *dailyLogWriter) Close() error {
	close(w.stopCh)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *dailyLogWriter) rotateLoop() {
	for {
		now := time.Now().In(w.loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), w.hour, w.minute, 0, 0, w.loc)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-w.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if err := w.rotate(); err != nil {
				log.Printf("log rotate error: %v", err)
			}
		}
	}
}

func (w *dailyLogWriter) rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.openCurrentLocked(); err != nil {
			return err
		}
	}
	archive := filepath.Join(w.dir, fmt.Sprintf("sched-%s.log", w.currentDay))
	current := filepath.Join(w.dir, "current.log")

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	w.file = nil
	if err := os.Rename(current, archive); err != nil {
		return fmt.Errorf("archive current log: %w", err)
	}
	if err := gzipFile(archive); err != nil {
		return fmt.Errorf("gzip archive: %w", err)
	}
	w.currentDay = time.Now().In(w.loc).Format("2006-01-02")
	if err := w.openCurrentLocked(); err != nil {
		return err
	}
	return w.cleanupOldArchives()
}

func (w *dailyLogWriter) openCurrentLocked() error {
	f, err := os.OpenFile(filepath.Join(w.dir, "current.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open current log: %w", err)
	}
	w.file = f
	return nil
}

func (w *dailyLogWriter) cleanupOldArchives() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().In(w.loc).AddDate(0, 0, -w.retention)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "sched-") || !strings.HasSuffix(name, ".log.gz") {
			continue
		}
		datePart := strings.TrimSuffix(strings.TrimPrefix(name, "sched-"), ".log.gz")
		d, err := time.ParseInLocation("2006-01-02", datePart, w.loc)
		if err != nil {
			continue
		}
		if d.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, name))
		}
	}
	return nil
}

func gzipFile(srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(srcPath+".gz", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(srcPath)
}
