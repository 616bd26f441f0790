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

	log "github.com/sirupsen/logrus"
)

type StackOptions struct {
	Index        string
	XVar, YVar   string
	ExtraColumns []string
}

// Stack pairs the date-column cells of one or two matrices into long
// rows: id ("<row id>.<date column>"), group_id (the date column),
// the row id, extra columns, then the value from x and (if y is not
// nil) the value from y. Only cells that are positive numbers in
// every matrix, without masked "X" digits, are emitted.
func Stack(x, y *Table, opts StackOptions) (*Table, []*CoercionError, error) {
	xidx, err := x.ColumnIndex(opts.Index)
	if err != nil {
		return nil, nil, err
	}
	yrows := map[string][]string{}
	var ycols map[string]int
	if y != nil {
		yidx, err := y.ColumnIndex(opts.Index)
		if err != nil {
			return nil, nil, err
		}
		for _, row := range y.Rows {
			if _, ok := yrows[row[yidx]]; !ok {
				yrows[row[yidx]] = row
			}
		}
		ycols = map[string]int{}
		for i, c := range y.Columns {
			ycols[c] = i
		}
	}
	var datecols []int
	for i, c := range x.Columns {
		if !isDateColumn(c) {
			continue
		}
		if _, ok := ycols[c]; y != nil && !ok {
			continue
		}
		datecols = append(datecols, i)
	}

	out := NewTable("id", "group_id", opts.Index)
	out.Columns = append(out.Columns, opts.ExtraColumns...)
	out.Columns = append(out.Columns, opts.XVar)
	if y != nil {
		out.Columns = append(out.Columns, opts.YVar)
	}
	var failures []*CoercionError
	positive := func(r int, col, s string) (float64, bool) {
		if strings.TrimSpace(s) == "" || strings.Contains(s, "X") {
			return 0, false
		}
		v, err := FormatFloat.Coerce(s)
		if err != nil {
			failures = append(failures, &CoercionError{Row: r, Column: col, Value: s, Err: err})
			return 0, false
		}
		return v, v > 0
	}
	for r, row := range x.Rows {
		id := row[xidx]
		var yrow []string
		if y != nil {
			var ok bool
			if yrow, ok = yrows[id]; !ok {
				continue
			}
		}
		for _, col := range datecols {
			name := x.Columns[col]
			xv, ok := positive(r, name, row[col])
			if !ok {
				continue
			}
			var yv float64
			if y != nil {
				if yv, ok = positive(r, name, yrow[ycols[name]]); !ok {
					continue
				}
			}
			outrow := []string{id + "." + name, name, id}
			for _, extra := range opts.ExtraColumns {
				v := ""
				if c, err := x.ColumnIndex(extra); err == nil {
					v = row[c]
				} else if c, ok := ycols[extra]; ok {
					v = yrow[c]
				}
				outrow = append(outrow, v)
			}
			outrow = append(outrow, FormatFloat.Format(xv))
			if y != nil {
				outrow = append(outrow, FormatFloat.Format(yv))
			}
			out.Rows = append(out.Rows, outrow)
		}
	}
	return out, failures, nil
}

type stacker struct{}

func (cmd *stacker) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err == errUsage {
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *stacker) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	input1 := flags.String("input1", "", "matrix `file` with x values")
	input2 := flags.String("input2", "", "matrix `file` with y values")
	index := flags.String("index", "", "row identifier `column` common to both matrices")
	xvar := flags.String("xvar", "", "output `name` of the x variable")
	yvar := flags.String("yvar", "", "output `name` of the y variable")
	extraColumns := flags.String("extra-columns", "", "comma-separated `columns` to copy, or a file with one per line")
	outputFilename := flags.String("output", "-", "output `file`")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return errUsage
	} else if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "errant command line arguments after parsed flags: %v\n", flags.Args())
		return errUsage
	}
	if *input1 == "" || *index == "" || *xvar == "" {
		return errors.New("must provide -input1, -index and -xvar")
	}
	if *input2 != "" && *yvar == "" {
		return errors.New("-input2 requires -yvar")
	}
	opts := StackOptions{Index: *index, XVar: *xvar, YVar: *yvar}
	if *extraColumns != "" {
		if opts.ExtraColumns, err = readList(*extraColumns); err != nil {
			return err
		}
	}
	x, err := loadTable(*input1, stdin)
	if err != nil {
		return err
	}
	var y *Table
	if *input2 != "" {
		if y, err = LoadTable(*input2); err != nil {
			return err
		}
	}
	out, failures, err := Stack(x, y, opts)
	if err != nil {
		return err
	}
	warnCoercionFailures(failures)
	log.Infof("writing %d rows to %s", len(out.Rows), *outputFilename)
	return WriteTable(*outputFilename, stdout, out)
}
