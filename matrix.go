// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

type AssembleOptions struct {
	KeyColumns    []string
	DisplayColumn string
	// KeyValues lists the values to combine for each key
	// column. If nil, the sorted distinct values found in
	// Aggregates.Source are used.
	KeyValues    [][]string
	ExtraColumns []string
	Aggregates   *Aggregates
	Format       NumberFormat
	// ClampNegative replaces negative cell values with 0.
	ClampNegative bool
	// SortBy defaults to DisplayColumn.
	SortBy []string
}

// Assemble builds a dense matrix with one row per combination of key
// values and one column per bucket. Cells without an aggregate are
// "0".
func Assemble(opts AssembleOptions) (*Table, error) {
	agg := opts.Aggregates
	if agg == nil {
		return nil, errors.New("no aggregates")
	}
	if !containsString(opts.KeyColumns, opts.DisplayColumn) {
		return nil, &FormatError{What: "unique-id column", Value: opts.DisplayColumn, Reason: "must be one of the key columns"}
	}
	keyValues := opts.KeyValues
	if keyValues == nil {
		var err error
		keyValues, err = distinctValues(agg.Source, opts.KeyColumns)
		if err != nil {
			return nil, err
		}
	}
	extras, err := newExtraLookup(agg.Source, agg.Keys, opts.ExtraColumns)
	if err != nil {
		return nil, err
	}

	out := NewTable(opts.KeyColumns...)
	out.Columns = append(out.Columns, extras.columns...)
	out.Columns = append(out.Columns, agg.Buckets...)
	dpos, _ := out.ColumnIndex(opts.DisplayColumn)
	nkeys := len(opts.KeyColumns)

	cartesian(keyValues, func(vals []string) {
		row := make([]string, 0, len(out.Columns))
		row = append(row, vals...)
		row = append(row, extras.values(vals[dpos])...)
		key := compositeKey(vals...)
		for _, bucket := range agg.Buckets {
			v, ok := agg.Value(key, bucket)
			if !ok {
				row = append(row, "0")
				continue
			}
			if opts.ClampNegative && v < 0 {
				v = 0
			}
			row = append(row, opts.Format.Format(v))
		}
		out.Rows = append(out.Rows, row)
	})
	log.Debugf("assembled %d rows x %d buckets (%d key columns)", len(out.Rows), len(agg.Buckets), nkeys)

	sortby := opts.SortBy
	if len(sortby) == 0 {
		sortby = []string{opts.DisplayColumn}
	}
	if err := out.SortBy(sortby); err != nil {
		return nil, err
	}
	return out, nil
}

// cartesian calls fn with every combination of values, varying the
// last list fastest. The slice passed to fn is reused.
func cartesian(values [][]string, fn func([]string)) {
	for _, vals := range values {
		if len(vals) == 0 {
			return
		}
	}
	idx := make([]int, len(values))
	combo := make([]string, len(values))
	for {
		for i, j := range idx {
			combo[i] = values[i][j]
		}
		fn(combo)
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(values[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// extraLookup maps a display identifier to the extra column values
// of the first source row with that identifier.
type extraLookup struct {
	columns []string
	first   map[string][]string
}

func newExtraLookup(source *Table, keys []RowKey, columns []string) (*extraLookup, error) {
	lookup := &extraLookup{first: map[string][]string{}}
	var idx []int
	for _, name := range columns {
		col, err := source.ColumnIndex(name)
		if err != nil {
			log.Warnf("extra column %q not found, skipping", name)
			continue
		}
		lookup.columns = append(lookup.columns, name)
		idx = append(idx, col)
	}
	if len(idx) == 0 {
		return lookup, nil
	}
	warned := map[[2]string]bool{}
	for r, row := range source.Rows {
		id := keys[r].Display
		vals := make([]string, len(idx))
		for i, col := range idx {
			vals[i] = row[col]
		}
		prev, ok := lookup.first[id]
		if !ok {
			lookup.first[id] = vals
			continue
		}
		for i, v := range vals {
			if v != prev[i] && !warned[[2]string{lookup.columns[i], id}] {
				warned[[2]string{lookup.columns[i], id}] = true
				log.Warnf("extra column %q has conflicting values for %q (%q, %q), using %q", lookup.columns[i], id, prev[i], v, prev[i])
			}
		}
	}
	return lookup, nil
}

func (lookup *extraLookup) values(id string) []string {
	if vals, ok := lookup.first[id]; ok {
		return vals
	}
	return make([]string, len(lookup.columns))
}
