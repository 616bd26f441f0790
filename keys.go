// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"strings"
)

const keySep = "\x1f"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySep, `\`+keySep)

// compositeKey joins values with a unit separator, escaping
// backslashes and separators inside values, so distinct value tuples
// always give distinct keys.
func compositeKey(values ...string) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteString(keySep)
		}
		keyEscaper.WriteString(&sb, v)
	}
	return sb.String()
}

// RowKey identifies a row for aggregation (ID, the composite of all
// key columns) and for display (the value of the display column).
type RowKey struct {
	ID      string
	Display string
}

// BuildKeys computes a RowKey for every row of t. The display column
// must be one of the key columns.
func BuildKeys(t *Table, keyColumns []string, displayColumn string) ([]RowKey, error) {
	if !containsString(keyColumns, displayColumn) {
		return nil, &FormatError{What: "unique-id column", Value: displayColumn, Reason: "must be one of the key columns"}
	}
	idx, err := t.ColumnIndexes(keyColumns)
	if err != nil {
		return nil, err
	}
	dcol, err := t.ColumnIndex(displayColumn)
	if err != nil {
		return nil, err
	}
	keys := make([]RowKey, len(t.Rows))
	vals := make([]string, len(idx))
	for r, row := range t.Rows {
		for i, col := range idx {
			vals[i] = row[col]
		}
		keys[r] = RowKey{ID: compositeKey(vals...), Display: row[dcol]}
	}
	return keys, nil
}

// distinctValues returns the sorted distinct values of each named
// column.
func distinctValues(t *Table, columns []string) ([][]string, error) {
	idx, err := t.ColumnIndexes(columns)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(idx))
	for i, col := range idx {
		out[i] = t.Distinct(col)
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
