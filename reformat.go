// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldKey returns s without diacritics, lower-cased, for
// accent-insensitive lookups ("São Paulo" and "SAO PAULO" match).
func foldKey(s string) string {
	tr := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(tr, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// reformatLog records which values were applied and which lookups
// failed, per column, in order of first occurrence.
type reformatLog struct {
	cols     []string
	found    map[string][]string
	notFound map[string][]string
}

func newReformatLog() *reformatLog {
	return &reformatLog{found: map[string][]string{}, notFound: map[string][]string{}}
}

func (rl *reformatLog) note(m map[string][]string, col, val string) {
	if _, ok := rl.found[col]; !ok {
		if _, ok := rl.notFound[col]; !ok {
			rl.cols = append(rl.cols, col)
		}
	}
	if !containsString(m[col], val) {
		m[col] = append(m[col], val)
	}
}

func (rl *reformatLog) Found(col, val string)    { rl.note(rl.found, col, val) }
func (rl *reformatLog) NotFound(col, val string) { rl.note(rl.notFound, col, val) }

func (rl *reformatLog) report() {
	for _, col := range rl.cols {
		if vals := rl.found[col]; len(vals) > 0 {
			log.Infof("%s: set %d distinct values: %q", col, len(vals), vals)
		}
	}
	for _, col := range rl.cols {
		if vals := rl.notFound[col]; len(vals) > 0 {
			log.Warnf("%s: %d values not found in reference table: %q", col, len(vals), vals)
		}
	}
}

// AddColumns copies target columns from ref into t, matching t's
// index column against ref's index column without regard to case or
// accents. Rows without a match get empty values.
func AddColumns(t, ref *Table, index string, targets []string, rl *reformatLog) (*Table, error) {
	out := t.Clone()
	if err := out.SortBy([]string{index}); err != nil {
		return nil, err
	}
	icol, _ := out.ColumnIndex(index)
	refidx, err := ref.ColumnIndex(index)
	if err != nil {
		return nil, err
	}
	srccols, err := ref.ColumnIndexes(targets)
	if err != nil {
		return nil, err
	}
	lookup := map[string][]string{}
	for _, row := range ref.Rows {
		key := foldKey(row[refidx])
		if _, ok := lookup[key]; !ok {
			lookup[key] = row
		}
	}
	dstcols := make([]int, len(targets))
	for i, target := range targets {
		dstcols[i] = out.EnsureColumn(target)
	}
	for _, row := range out.Rows {
		query := row[icol]
		if query == "" {
			continue
		}
		refrow, ok := lookup[foldKey(query)]
		for i, target := range targets {
			if !ok {
				row[dstcols[i]] = ""
				rl.NotFound(target, query)
				continue
			}
			row[dstcols[i]] = refrow[srccols[i]]
		}
	}
	return out, nil
}

// ModifyRows applies a table of edits with columns anchor_col,
// anchor_val, target_col and new_val: in every row where anchor_col
// equals anchor_val, target_col is set to new_val.
func ModifyRows(t, edits *Table, rl *reformatLog) (*Table, error) {
	eidx, err := edits.ColumnIndexes([]string{"anchor_col", "anchor_val", "target_col", "new_val"})
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, edit := range edits.Rows {
		anchorCol, anchorVal, targetCol, newVal := edit[eidx[0]], edit[eidx[1]], edit[eidx[2]], edit[eidx[3]]
		acol, err := out.ColumnIndex(anchorCol)
		if err != nil {
			return nil, err
		}
		tcol := out.EnsureColumn(targetCol)
		matched := false
		for _, row := range out.Rows {
			if row[acol] == anchorVal {
				row[tcol] = newVal
				matched = true
			}
		}
		if matched {
			rl.Found(targetCol, newVal)
		} else {
			rl.NotFound(anchorCol, anchorVal)
		}
	}
	return out, nil
}

// ReorderColumns moves the named columns to the front, in the given
// order, followed by the remaining columns in their original order.
func ReorderColumns(t *Table, first []string) (*Table, error) {
	order := append([]string(nil), first...)
	for _, c := range t.Columns {
		if !containsString(first, c) {
			order = append(order, c)
		}
	}
	return t.Select(order)
}

// parseColumnDate splits a "column:date" flag value.
func parseColumnDate(s string) (col, date string, err error) {
	i := strings.Index(s, ":")
	if i < 0 {
		return "", "", &FormatError{What: "date filter", Value: s, Reason: "expected column:YYYY-MM-DD"}
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), nil
}

type reformatter struct {
	filter rowFilter
}

func (cmd *reformatter) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err == errUsage {
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *reformatter) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	input1 := flags.String("input1", "", "input `file`")
	input2 := flags.String("input2", "", "reference `file` (add: source of new columns; modify: table of edits)")
	index := flags.String("index", "", "`column` matched between input1 and input2 (add)")
	action := flags.String("action", "", "`action`: add, modify or reorder")
	mode := flags.String("mode", "", "elements to process: columns or rows")
	targetsSpec := flags.String("targets", "", "comma-separated `columns`, or a file with one per line")
	startDate := flags.String("start-date", "", "keep rows with `column:date` on or after date")
	endDate := flags.String("end-date", "", "keep rows with `column:date` on or before date")
	refDate := flags.String("reference-date", "", "`date` to use as today (default: current UTC date)")
	sortBy := flags.String("sortby", "", "comma-separated `columns` to sort by")
	outputFilename := flags.String("output", "-", "output `file`")
	cmd.filter.Flags(flags)
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return errUsage
	} else if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "errant command line arguments after parsed flags: %v\n", flags.Args())
		return errUsage
	}
	if *input1 == "" {
		return errors.New("must provide -input1")
	}
	var targets []string
	if *targetsSpec != "" {
		if targets, err = readList(*targetsSpec); err != nil {
			return err
		}
	}

	t, err := loadTable(*input1, stdin)
	if err != nil {
		return err
	}
	rl := newReformatLog()
	switch *action + "/" + *mode {
	case "/", "/columns", "/rows":
	case "add/columns":
		if *input2 == "" || *index == "" || len(targets) == 0 {
			return errors.New("-action add requires -input2, -index and -targets")
		}
		ref, err := LoadTable(*input2)
		if err != nil {
			return err
		}
		log.Infof("adding columns %q", targets)
		if t, err = AddColumns(t, ref, *index, targets, rl); err != nil {
			return err
		}
	case "modify/rows":
		if *input2 == "" {
			return errors.New("-action modify requires -input2 with columns anchor_col, anchor_val, target_col, new_val")
		}
		edits, err := LoadTable(*input2)
		if err != nil {
			return err
		}
		if t, err = ModifyRows(t, edits, rl); err != nil {
			return err
		}
	case "reorder/columns":
		if t, err = ReorderColumns(t, targets); err != nil {
			return err
		}
	default:
		return &FormatError{What: "action/mode", Value: *action + "/" + *mode, Reason: "expected add/columns, modify/rows or reorder/columns"}
	}

	t, err = cmd.filter.Apply(t)
	if err != nil {
		return err
	}
	if *startDate != "" || *endDate != "" {
		w := TimeWindow{}
		if *startDate != "" {
			if w.Column, w.Start, err = parseColumnDate(*startDate); err != nil {
				return err
			}
		}
		if *endDate != "" {
			var col string
			if col, w.End, err = parseColumnDate(*endDate); err != nil {
				return err
			}
			if w.Column == "" {
				w.Column = col
			}
		}
		if w.Reference, err = referenceDate(*refDate); err != nil {
			return err
		}
		log.Infof("filtering by date: %s > %s", w.Start, w.End)
		if t, _, err = w.Apply(t); err != nil {
			return err
		}
	}
	rl.report()
	if err = t.SortBy(splitList(*sortBy)); err != nil {
		return err
	}
	log.Infof("writing %d rows to %s", len(t.Rows), *outputFilename)
	return WriteTable(*outputFilename, stdout, t)
}
