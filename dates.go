// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD and MM-DD-YYYY with "-" or "/"
// separators, optionally followed by a time of day, which is
// ignored. Dates containing "X" (masked digits) are rejected.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.Replace(s, "/", "-", -1))
	if i := strings.IndexAny(s, " T"); i >= 0 {
		s = s[:i]
	}
	if s == "" || strings.Contains(s, "X") {
		return time.Time{}, false
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		nums[i] = n
	}
	var y, m, d int
	switch {
	case len(parts[0]) == 4:
		y, m, d = nums[0], nums[1], nums[2]
	case len(parts[2]) == 4:
		m, d, y = nums[0], nums[1], nums[2]
	default:
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		// e.g. 2021-02-30
		return time.Time{}, false
	}
	return t, true
}

// truncateDay returns midnight UTC on t's calendar date.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start, End time.Time
}

// Days returns every day in the range as YYYY-MM-DD.
func (r DateRange) Days() []string {
	if r.Start.IsZero() || r.End.Before(r.Start) {
		return nil
	}
	var days []string
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dateLayout))
	}
	return days
}

// TimeWindow restricts a table to rows whose Column holds a complete
// date within [Start, End].
type TimeWindow struct {
	Column string
	// Start and End are optional dates in any format parseDate
	// accepts. If Start is empty the earliest date in the data is
	// used. If End is empty Reference is used.
	Start, End string
	// Reference stands in for "today".
	Reference time.Time
}

// Apply drops rows whose date is incomplete, masked, or outside the
// window, and rewrites the remaining dates as YYYY-MM-DD. It returns
// the filtered table and the effective range.
func (w TimeWindow) Apply(t *Table) (*Table, DateRange, error) {
	col, err := t.ColumnIndex(w.Column)
	if err != nil {
		return nil, DateRange{}, err
	}
	var rng DateRange
	if w.Start != "" {
		d, ok := parseDate(w.Start)
		if !ok {
			return nil, DateRange{}, &FormatError{What: "start date", Value: w.Start}
		}
		rng.Start = d
	}
	if w.End != "" {
		d, ok := parseDate(w.End)
		if !ok {
			return nil, DateRange{}, &FormatError{What: "end date", Value: w.End}
		}
		rng.End = d
	} else {
		rng.End = truncateDay(w.Reference)
	}

	dates := make([]time.Time, len(t.Rows))
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	dropped := 0
	for r, row := range t.Rows {
		d, ok := parseDate(row[col])
		if !ok {
			dropped++
			continue
		}
		dates[r] = d
		if w.Start == "" && (rng.Start.IsZero() || d.Before(rng.Start)) {
			rng.Start = d
		}
	}
	for r, row := range t.Rows {
		d := dates[r]
		if d.IsZero() || d.Before(rng.Start) || d.After(rng.End) {
			continue
		}
		newrow := append([]string(nil), row...)
		newrow[col] = d.Format(dateLayout)
		out.Rows = append(out.Rows, newrow)
	}
	if dropped > 0 {
		log.Infof("%s: dropped %d rows with incomplete or unparseable dates", w.Column, dropped)
	}
	return out, rng, nil
}
