// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

type NormalizeOptions struct {
	// Numerator row key columns.
	Index1 []string
	// Denominator row key columns. Each must also exist in the
	// numerator table. Defaults to Index1.
	Index2 []string
	// NormVar is a single denominator column used for every date
	// column. If empty, each date column is divided by the same
	// date column of the denominator table.
	NormVar        string
	Rate           float64
	MinDenominator float64
	// RollingAverage, if > 1, replaces each numerator value with
	// the mean of it and the preceding RollingAverage-1 values.
	RollingAverage int
}

// startsWithDigit identifies date columns in normalize input
// ("2021-03-01", "2021_EW09").
func startsWithDigit(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsDigit(r)
}

// Normalize divides each date column value of num by a denominator
// from den, times Rate. If den is nil every denominator is 1. Cells
// whose denominator is not greater than MinDenominator, or is
// missing, are left empty.
func Normalize(num, den *Table, opts NormalizeOptions) (*Table, []*CoercionError, error) {
	if len(opts.Index2) == 0 {
		opts.Index2 = opts.Index1
	}
	if opts.Rate == 0 {
		opts.Rate = 1
	}
	if den == nil {
		var err error
		den, err = num.Select(opts.Index1)
		if err != nil {
			return nil, nil, err
		}
		den.InsertColumn(len(den.Columns), "norm_variable", "1")
		opts.NormVar = "norm_variable"
		opts.Index2 = opts.Index1
	}
	id2num, err := num.ColumnIndexes(opts.Index2)
	if err != nil {
		return nil, nil, err
	}
	id2den, err := den.ColumnIndexes(opts.Index2)
	if err != nil {
		return nil, nil, err
	}
	normcol := -1
	if opts.NormVar != "" {
		if normcol, err = den.ColumnIndex(opts.NormVar); err != nil {
			return nil, nil, err
		}
	}

	var datecols, dencols, othercols []int
	for i, c := range num.Columns {
		if !startsWithDigit(c) {
			othercols = append(othercols, i)
			continue
		}
		if normcol >= 0 {
			datecols = append(datecols, i)
			dencols = append(dencols, normcol)
		} else if dc, err := den.ColumnIndex(c); err == nil {
			datecols = append(datecols, i)
			dencols = append(dencols, dc)
		} else {
			// no denominator column, pass through unchanged
			othercols = append(othercols, i)
		}
	}

	denrow := map[string][]string{}
	for _, row := range den.Rows {
		key := compositeKey(pick(row, id2den)...)
		if _, dup := denrow[key]; dup {
			log.Warnf("denominator key %q appears more than once, using the first row", strings.Join(pick(row, id2den), " "))
			continue
		}
		denrow[key] = row
	}

	out := NewTable()
	for _, col := range othercols {
		out.Columns = append(out.Columns, num.Columns[col])
	}
	for _, col := range datecols {
		out.Columns = append(out.Columns, num.Columns[col])
	}
	var failures []*CoercionError
	numerators := make([]float64, len(datecols))
	missing := map[string]bool{}
	for r, row := range num.Rows {
		outrow := pick(row, othercols)
		for i, col := range datecols {
			v, err := FormatFloat.Coerce(row[col])
			if err != nil {
				if strings.TrimSpace(row[col]) != "" {
					failures = append(failures, &CoercionError{Row: r, Column: num.Columns[col], Value: row[col], Err: err})
				}
				v = math.NaN()
			}
			numerators[i] = v
		}
		if opts.RollingAverage > 1 {
			numerators = rollingMean(numerators, opts.RollingAverage)
		}
		drow, ok := denrow[compositeKey(pick(row, id2num)...)]
		if !ok {
			id := strings.Join(pick(row, id2num), " ")
			if !missing[id] {
				missing[id] = true
				log.Warnf("no denominator for %q", id)
			}
		}
		for i, numerator := range numerators {
			cell := ""
			if ok && !math.IsNaN(numerator) {
				denominator, err := FormatFloat.Coerce(drow[dencols[i]])
				if err == nil && denominator > opts.MinDenominator {
					cell = fmt.Sprintf("%.5f", numerator*opts.Rate/denominator)
				}
			}
			outrow = append(outrow, cell)
		}
		out.Rows = append(out.Rows, outrow)
	}
	return out, failures, nil
}

// rollingMean returns the trailing mean over windows of n values.
// The first n-1 positions, and windows containing NaN, are NaN.
func rollingMean(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	for i := range vals {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(vals[i-n+1:i+1], nil)
	}
	return out
}

// pick returns the values of row at the given positions.
func pick(row []string, idx []int) []string {
	vals := make([]string, len(idx))
	for i, col := range idx {
		vals[i] = row[col]
	}
	return vals
}

type normalizer struct {
	filter rowFilter
}

func (cmd *normalizer) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	input1 := flags.String("input1", "", "numerator matrix `file`")
	input2 := flags.String("input2", "", "denominator matrix `file` (default: all denominators are 1)")
	index1 := flags.String("index1", "", "comma-separated row key `columns` of the numerator")
	index2 := flags.String("index2", "", "comma-separated row key `columns` of the denominator (default: index1)")
	rolling := flags.Int("rolling-average", 0, "replace numerators with a trailing mean over `N` date columns")
	normVar := flags.String("norm-var", "", "single denominator `column` for all date columns (e.g. population)")
	rate := flags.Float64("rate", 1, "multiply ratios by `factor` (e.g. 100000)")
	minDenominator := flags.Float64("min-denominator", 0, "leave cells empty unless the denominator is greater than `N`")
	outputFilename := flags.String("output", "-", "output `file`")
	cmd.filter.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	}
	if *input1 == "" || *index1 == "" {
		err = errors.New("must provide -input1 and -index1")
		return 2
	}
	opts := NormalizeOptions{
		Index1:         splitList(*index1),
		Index2:         splitList(*index2),
		NormVar:        *normVar,
		Rate:           *rate,
		MinDenominator: *minDenominator,
		RollingAverage: *rolling,
	}

	num, err := loadTable(*input1, stdin)
	if err != nil {
		return 1
	}
	idx, err := num.ColumnIndexes(opts.Index1)
	if err != nil {
		return 1
	}
	num = num.FilterRows(func(row []string) bool {
		for _, col := range idx {
			if row[col] == "" {
				return false
			}
		}
		return true
	})
	num, err = cmd.filter.Apply(num)
	if err != nil {
		return 1
	}
	var den *Table
	if *input2 != "" {
		den, err = LoadTable(*input2)
		if err != nil {
			return 1
		}
	}
	out, failures, err := Normalize(num, den, opts)
	if err != nil {
		return 1
	}
	warnCoercionFailures(failures)
	log.Infof("writing %d rows to %s", len(out.Rows), *outputFilename)
	err = WriteTable(*outputFilename, stdout, out)
	if err != nil {
		return 1
	}
	return 0
}
