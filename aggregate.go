// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// NumberFormat is the numeric type target values are coerced to.
type NumberFormat int

const (
	FormatFloat NumberFormat = iota
	FormatInteger
)

func ParseNumberFormat(s string) (NumberFormat, error) {
	switch s {
	case "float", "":
		return FormatFloat, nil
	case "integer", "int":
		return FormatInteger, nil
	default:
		return 0, &FormatError{What: "number format", Value: s, Reason: "expected integer or float"}
	}
}

var errNotFinite = errors.New("not a finite number")

// Coerce parses s as a number of the given format.
func (nf NumberFormat) Coerce(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if nf == FormatInteger {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

// Format renders an aggregated value: integers without a decimal
// point, floats rounded to 2 decimal places.
func (nf NumberFormat) Format(v float64) string {
	if nf == FormatInteger {
		return strconv.FormatInt(int64(math.Round(v)), 10)
	}
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AggregateMode says what goes into a (key, bucket) cell.
type AggregateMode int

const (
	// ModeCount counts rows.
	ModeCount AggregateMode = iota
	// ModeSum sums the coerced target column.
	ModeSum
	// ModePassThrough stores the coerced target value; the last
	// row for a cell wins.
	ModePassThrough
)

type AggregateOptions struct {
	XColumn       string
	KeyColumns    []string
	DisplayColumn string
	// Target is the column holding values to sum or pass
	// through. Empty means count rows.
	Target    string
	SumTarget bool
	Format    NumberFormat
	// If Window is non-nil, rows are restricted to its date range.
	Window *TimeWindow
	// If XIsTime is true, the bucket axis is every day in the
	// window's range instead of the distinct x values.
	XIsTime bool
}

func (opts AggregateOptions) Mode() AggregateMode {
	switch {
	case opts.Target == "":
		return ModeCount
	case opts.SumTarget:
		return ModeSum
	default:
		return ModePassThrough
	}
}

type cellKey struct {
	key, bucket string
}

// Aggregates holds per-(key, bucket) values along with the rows and
// bucket axis they were computed from.
type Aggregates struct {
	Buckets []string
	// Source is the input table after time windowing, and Keys
	// are its row keys.
	Source *Table
	Keys   []RowKey
	// Failures collects target values that could not be coerced.
	Failures []*CoercionError

	cells map[cellKey]float64
}

func newAggregates(source *Table, keys []RowKey, buckets []string) *Aggregates {
	return &Aggregates{
		Buckets: buckets,
		Source:  source,
		Keys:    keys,
		cells:   map[cellKey]float64{},
	}
}

func (a *Aggregates) add(key, bucket string, v float64) {
	a.cells[cellKey{key, bucket}] += v
}

func (a *Aggregates) set(key, bucket string, v float64) {
	a.cells[cellKey{key, bucket}] = v
}

// Value returns the aggregate for a composite key ID and bucket.
func (a *Aggregates) Value(key, bucket string) (float64, bool) {
	v, ok := a.cells[cellKey{key, bucket}]
	return v, ok
}

// Aggregate counts rows, sums target values, or passes target values
// through, per (composite key, x bucket).
func Aggregate(t *Table, opts AggregateOptions) (*Aggregates, error) {
	var rng DateRange
	if opts.Window != nil {
		var err error
		t, rng, err = opts.Window.Apply(t)
		if err != nil {
			return nil, err
		}
	} else if opts.XIsTime {
		return nil, errors.New("time buckets require a time window")
	}
	xcol, err := t.ColumnIndex(opts.XColumn)
	if err != nil {
		return nil, err
	}
	var buckets []string
	if opts.XIsTime {
		buckets = rng.Days()
	} else {
		buckets = t.Distinct(xcol)
	}
	tcol := -1
	if opts.Target != "" {
		tcol, err = t.ColumnIndex(opts.Target)
		if err != nil {
			return nil, err
		}
	}
	keys, err := BuildKeys(t, opts.KeyColumns, opts.DisplayColumn)
	if err != nil {
		return nil, err
	}
	agg := newAggregates(t, keys, buckets)
	mode := opts.Mode()
	for r, row := range t.Rows {
		key, bucket := keys[r].ID, row[xcol]
		if mode == ModeCount {
			agg.add(key, bucket, 1)
			continue
		}
		v, err := opts.Format.Coerce(row[tcol])
		if err != nil {
			agg.Failures = append(agg.Failures, &CoercionError{Row: r, Column: opts.Target, Value: row[tcol], Err: err})
			continue
		}
		if mode == ModeSum {
			agg.add(key, bucket, v)
		} else {
			agg.set(key, bucket, v)
		}
	}
	return agg, nil
}
