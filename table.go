// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"sort"
	"strings"
)

// Table is an in-memory tabular dataset. Every cell is a string and
// every row has exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// ColumnIndex returns the position of the named column, or a
// *MissingColumnError.
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, c := range t.Columns {
		if c == name {
			return i, nil
		}
	}
	return -1, &MissingColumnError{Column: name, Have: t.Columns}
}

func (t *Table) HasColumn(name string) bool {
	_, err := t.ColumnIndex(name)
	return err == nil
}

// ColumnIndexes looks up several columns at once.
func (t *Table) ColumnIndexes(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		col, err := t.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		idx[i] = col
	}
	return idx, nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: make([][]string, len(t.Rows))}
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// AppendRow adds a row, padding or truncating it to the table width.
func (t *Table) AppendRow(row []string) {
	t.Rows = append(t.Rows, fitRow(row, len(t.Columns)))
}

func fitRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// InsertColumn inserts a column at position pos (clamped to the
// table width) with every cell set to value. If the column already
// exists, its cells are overwritten in place instead.
func (t *Table) InsertColumn(pos int, name, value string) {
	if col, err := t.ColumnIndex(name); err == nil {
		for _, row := range t.Rows {
			row[col] = value
		}
		return
	}
	if pos < 0 || pos > len(t.Columns) {
		pos = len(t.Columns)
	}
	t.Columns = append(t.Columns[:pos], append([]string{name}, t.Columns[pos:]...)...)
	for i, row := range t.Rows {
		newrow := make([]string, 0, len(row)+1)
		newrow = append(newrow, row[:pos]...)
		newrow = append(newrow, value)
		t.Rows[i] = append(newrow, row[pos:]...)
	}
}

// EnsureColumn returns the index of the named column, appending an
// empty column first if needed.
func (t *Table) EnsureColumn(name string) int {
	if col, err := t.ColumnIndex(name); err == nil {
		return col
	}
	t.InsertColumn(len(t.Columns), name, "")
	return len(t.Columns) - 1
}

// DropColumns removes the named columns. Missing columns are an
// error.
func (t *Table) DropColumns(names ...string) error {
	drop := map[int]bool{}
	for _, name := range names {
		col, err := t.ColumnIndex(name)
		if err != nil {
			return err
		}
		drop[col] = true
	}
	keep := make([]int, 0, len(t.Columns))
	for i := range t.Columns {
		if !drop[i] {
			keep = append(keep, i)
		}
	}
	t.project(keep)
	return nil
}

// Select returns a new table with only the named columns, in the
// given order.
func (t *Table) Select(names []string) (*Table, error) {
	idx, err := t.ColumnIndexes(names)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	out.project(idx)
	return out, nil
}

func (t *Table) project(idx []int) {
	cols := make([]string, len(idx))
	for i, col := range idx {
		cols[i] = t.Columns[col]
	}
	t.Columns = cols
	for r, row := range t.Rows {
		newrow := make([]string, len(idx))
		for i, col := range idx {
			newrow[i] = row[col]
		}
		t.Rows[r] = newrow
	}
}

// RenameColumns renames columns according to the given map. Names not
// present in the table are ignored.
func (t *Table) RenameColumns(rename map[string]string) {
	for i, c := range t.Columns {
		if newname, ok := rename[c]; ok && newname != "" {
			t.Columns[i] = newname
		}
	}
}

// SortBy stably sorts rows by the named columns, comparing cells as
// strings.
func (t *Table) SortBy(names []string) error {
	if len(names) == 0 {
		return nil
	}
	idx, err := t.ColumnIndexes(names)
	if err != nil {
		return err
	}
	sort.SliceStable(t.Rows, func(i, j int) bool {
		for _, col := range idx {
			if c := strings.Compare(t.Rows[i][col], t.Rows[j][col]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return nil
}

// FilterRows returns a new table with the rows for which keep
// returns true. Rows are shared with t, not copied.
func (t *Table) FilterRows(keep func(row []string) bool) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Distinct returns the sorted distinct values of a column.
func (t *Table) Distinct(col int) []string {
	seen := map[string]bool{}
	var vals []string
	for _, row := range t.Rows {
		if !seen[row[col]] {
			seen[row[col]] = true
			vals = append(vals, row[col])
		}
	}
	sort.Strings(vals)
	return vals
}

// Concat appends tables into one, taking the union of their columns
// in order of first appearance. Cells for columns a source table
// lacks are set to fill.
func Concat(fill string, tables ...*Table) *Table {
	out := &Table{}
	for _, t := range tables {
		for _, c := range t.Columns {
			if !out.HasColumn(c) {
				out.Columns = append(out.Columns, c)
			}
		}
	}
	for _, t := range tables {
		pos := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			pos[i], _ = out.ColumnIndex(c)
		}
		for _, row := range t.Rows {
			newrow := make([]string, len(out.Columns))
			for i := range newrow {
				newrow[i] = fill
			}
			for i, v := range row {
				newrow[pos[i]] = v
			}
			out.Rows = append(out.Rows, newrow)
		}
	}
	return out
}

// splitList parses a comma-separated flag value into trimmed,
// non-empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseNamedValues parses "name:value,name2:value2" lists, as used by
// -new-columns.
func parseNamedValues(s string) ([][2]string, error) {
	var out [][2]string
	for _, item := range splitList(s) {
		i := strings.Index(item, ":")
		if i < 0 {
			return nil, &FormatError{What: "column spec", Value: item, Reason: "expected name:value"}
		}
		out = append(out, [2]string{strings.TrimSpace(item[:i]), strings.TrimSpace(item[i+1:])})
	}
	return out, nil
}

// prependColumns inserts constant columns at the left edge, in the
// order given.
func prependColumns(t *Table, cols [][2]string) {
	for i, nv := range cols {
		t.InsertColumn(i, nv[0], nv[1])
	}
}
