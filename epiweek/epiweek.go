// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package epiweek converts dates to CDC (MMWR) epidemiological weeks.
//
// Epi weeks start on Sunday. Week 1 of a year is the first week that
// has at least four days in that year, i.e., the week containing
// January 4. Dates in late December can belong to week 1 of the next
// year, and dates in early January to the last week of the previous
// year.
package epiweek

import (
	"fmt"
	"time"
)

type Week struct {
	Year int
	Week int
}

// yearStart returns the Sunday that begins week 1 of year.
func yearStart(year int) time.Time {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	wd := int(jan1.Weekday())
	if wd <= int(time.Wednesday) {
		return jan1.AddDate(0, 0, -wd)
	}
	return jan1.AddDate(0, 0, 7-wd)
}

// FromDate returns the epi week containing t's calendar date.
func FromDate(t time.Time) Week {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	year := y
	if day.Before(yearStart(year)) {
		year--
	} else if !day.Before(yearStart(year + 1)) {
		year++
	}
	days := int(day.Sub(yearStart(year)).Hours()+12) / 24
	return Week{Year: year, Week: days/7 + 1}
}

// StartDate returns the Sunday that begins the week.
func (w Week) StartDate() time.Time {
	return yearStart(w.Year).AddDate(0, 0, (w.Week-1)*7)
}

// EndDate returns the Saturday that ends the week.
func (w Week) EndDate() time.Time {
	return w.StartDate().AddDate(0, 0, 6)
}

// String returns "YYYYWW", e.g. "202152".
func (w Week) String() string {
	return fmt.Sprintf("%04d%02d", w.Year, w.Week)
}

// Label returns "YYYY_EWnn", e.g. "2021_EW52".
func (w Week) Label() string {
	return fmt.Sprintf("%04d_EW%02d", w.Year, w.Week)
}
