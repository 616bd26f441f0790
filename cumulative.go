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
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// isDateColumn reports whether a column name looks like a date
// bucket ("2021-03-01", "2021_EW09"): its last character is a digit.
func isDateColumn(name string) bool {
	r, _ := utf8.DecodeLastRuneInString(name)
	return unicode.IsDigit(r)
}

// Cumulate replaces the values in every date column with the running
// total across date columns, row by row. Empty cells count as 0. The
// index column is never summed.
func Cumulate(t *Table, index string) (*Table, []*CoercionError) {
	var datecols []int
	for i, c := range t.Columns {
		if c != index && isDateColumn(c) {
			datecols = append(datecols, i)
		}
	}
	out := t.Clone()
	var failures []*CoercionError
	vals := make([]float64, len(datecols))
	for r, row := range out.Rows {
		for i, col := range datecols {
			vals[i] = 0
			s := strings.TrimSpace(row[col])
			if s == "" {
				continue
			}
			v, err := FormatFloat.Coerce(s)
			if err != nil {
				failures = append(failures, &CoercionError{Row: r, Column: t.Columns[col], Value: s, Err: err})
				continue
			}
			vals[i] = v
		}
		floats.CumSum(vals, vals)
		for i, col := range datecols {
			row[col] = FormatFloat.Format(vals[i])
		}
	}
	return out, failures
}

type cumulative struct {
	filter rowFilter
}

func (cmd *cumulative) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err == errUsage {
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *cumulative) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("input", "", "input matrix `file`")
	index := flags.String("index", "", "row identifier `column`")
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
	if *inputFilename == "" || *index == "" {
		return errors.New("must provide -input and -index")
	}

	t, err := loadTable(*inputFilename, stdin)
	if err != nil {
		return err
	}
	if _, err = t.ColumnIndex(*index); err != nil {
		return err
	}
	t, err = cmd.filter.Apply(t)
	if err != nil {
		return err
	}
	out, failures := Cumulate(t, *index)
	warnCoercionFailures(failures)
	log.Infof("writing %d rows to %s", len(out.Rows), *outputFilename)
	return WriteTable(*outputFilename, stdout, out)
}
