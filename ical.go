package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// icalSource serves a published calendar feed through the same row contract
// as the spreadsheet. Each VEVENT occurrence becomes one raw schedule row,
// so normalization and querying downstream stay identical.
type icalSource struct {
	url    string
	client *http.Client
	loc    *time.Location
}

func newICalSource(url string, client *http.Client, loc *time.Location) *icalSource {
	return &icalSource{url: url, client: client, loc: loc}
}

func (s *icalSource) getRows(ctx context.Context) ([]map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %s", res.Status)
	}

	cal, err := ical.ParseCalendar(res.Body)
	if err != nil {
		return nil, err
	}

	now := time.Now().In(s.loc)
	windowFrom := now.Add(-24 * time.Hour)
	windowTo := now.AddDate(0, 0, 90)

	var rows []map[string]string
	for _, e := range cal.Events() {
		dtStart, ok := parseCalProperty(e.GetProperty(ical.ComponentPropertyDtStart), s.loc)
		if !ok {
			continue
		}
		dtEnd, ok := parseCalProperty(e.GetProperty(ical.ComponentPropertyDtEnd), s.loc)
		if !ok {
			dtEnd = dtStart.Add(80 * time.Minute)
		}
		duration := dtEnd.Sub(dtStart)
		if duration <= 0 {
			duration = 80 * time.Minute
		}

		subject := ""
		if p := e.GetProperty(ical.ComponentPropertySummary); p != nil {
			subject = strings.TrimSpace(p.Value)
		}
		lessonType := ""
		if p := e.GetProperty(ical.ComponentPropertyDescription); p != nil {
			lessonType = firstLine(p.Value)
		}
		teacher := organizerName(e.GetProperty(ical.ComponentPropertyOrganizer))

		starts := []time.Time{dtStart}
		if p := e.GetProperty(ical.ComponentPropertyRrule); p != nil && strings.TrimSpace(p.Value) != "" {
			starts = expandRecurrence(p.Value, dtStart, windowFrom, windowTo)
			excluded := calDateSet(e.GetProperties(ical.ComponentPropertyExdate), s.loc)
			kept := starts[:0]
			for _, occ := range starts {
				if _, skip := excluded[occ.Unix()]; !skip {
					kept = append(kept, occ)
				}
			}
			starts = kept
		}
		for _, occ := range starts {
			if occ.Before(windowFrom) || !occ.Before(windowTo) {
				continue
			}
			rows = append(rows, map[string]string{
				"date":       occ.In(s.loc).Format("02.01.2006"),
				"time_start": occ.In(s.loc).Format("15:04"),
				"time_end":   occ.Add(duration).In(s.loc).Format("15:04"),
				"subject":    subject,
				"type":       lessonType,
				"teacher":    teacher,
			})
		}
	}
	return rows, nil
}

func expandRecurrence(ruleText string, dtStart, from, to time.Time) []time.Time {
	opts, err := rrule.StrToROption(strings.TrimSpace(ruleText))
	if err != nil {
		return []time.Time{dtStart}
	}
	opts.Dtstart = dtStart
	r, err := rrule.NewRRule(*opts)
	if err != nil {
		return []time.Time{dtStart}
	}
	return r.Between(from, to, true)
}

func calDateSet(props []*ical.IANAProperty, loc *time.Location) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, p := range props {
		if p == nil {
			continue
		}
		for _, part := range strings.Split(p.Value, ",") {
			tmp := &ical.IANAProperty{BaseProperty: ical.BaseProperty{
				Value:          strings.TrimSpace(part),
				ICalParameters: p.ICalParameters,
			}}
			if t, ok := parseCalProperty(tmp, loc); ok {
				out[t.Unix()] = struct{}{}
			}
		}
	}
	return out
}

func organizerName(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}
	if cn, ok := p.ICalParameters["CN"]; ok && len(cn) > 0 {
		return strings.TrimSpace(cn[0])
	}
	raw := strings.TrimSpace(p.Value)
	return strings.TrimPrefix(strings.TrimPrefix(raw, "MAILTO:"), "mailto:")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func parseCalProperty(prop *ical.IANAProperty, defaultLoc *time.Location) (time.Time, bool) {
	if prop == nil {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(prop.Value)
	if raw == "" {
		return time.Time{}, false
	}
	loc := defaultLoc
	if tzVals, ok := prop.ICalParameters["TZID"]; ok && len(tzVals) > 0 {
		if l, err := time.LoadLocation(tzVals[0]); err == nil {
			loc = l
		}
	}
	if t, err := time.Parse("20060102T150405Z", raw); err == nil {
		return t.In(defaultLoc), true
	}
	for _, layout := range []string{"20060102T150405", "20060102"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.In(defaultLoc), true
		}
	}
	return time.Time{}, false
}
