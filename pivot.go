// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"time"

	log "github.com/sirupsen/logrus"
)

type PivotOptions struct {
	XColumn string
	XIsTime bool
	// TimeColumn defaults to XColumn when XIsTime is set.
	TimeColumn string
	Start, End string
	Reference  time.Time

	Target    string
	SumTarget bool
	Format    NumberFormat

	KeyColumns    []string
	DisplayColumn string
	ExtraColumns  []string
	// NewColumns are constant columns prepended to the output.
	NewColumns [][2]string
	Filter     Filter
	SortBy     []string
}

type PivotResult struct {
	Matrix   *Table
	Buckets  []string
	Failures []*CoercionError
}

// Pivot turns long-format rows into a wide matrix: one row per
// combination of key values, one column per x bucket.
func Pivot(t *Table, opts PivotOptions) (*PivotResult, error) {
	idx, err := t.ColumnIndexes(opts.KeyColumns)
	if err != nil {
		return nil, err
	}
	t = t.FilterRows(func(row []string) bool {
		for _, col := range idx {
			if row[col] == "" {
				return false
			}
		}
		return true
	})
	t, err = opts.Filter.Apply(t)
	if err != nil {
		return nil, err
	}

	aggopts := AggregateOptions{
		XColumn:       opts.XColumn,
		XIsTime:       opts.XIsTime,
		KeyColumns:    opts.KeyColumns,
		DisplayColumn: opts.DisplayColumn,
		Target:        opts.Target,
		SumTarget:     opts.SumTarget,
		Format:        opts.Format,
	}
	timecol := opts.TimeColumn
	if timecol == "" && opts.XIsTime {
		timecol = opts.XColumn
	}
	if timecol != "" {
		aggopts.Window = &TimeWindow{
			Column:    timecol,
			Start:     opts.Start,
			End:       opts.End,
			Reference: opts.Reference,
		}
	}
	agg, err := Aggregate(t, aggopts)
	if err != nil {
		return nil, err
	}
	matrix, err := Assemble(AssembleOptions{
		KeyColumns:    opts.KeyColumns,
		DisplayColumn: opts.DisplayColumn,
		ExtraColumns:  opts.ExtraColumns,
		Aggregates:    agg,
		Format:        opts.Format,
		ClampNegative: true,
		SortBy:        opts.SortBy,
	})
	if err != nil {
		return nil, err
	}
	prependColumns(matrix, opts.NewColumns)
	return &PivotResult{Matrix: matrix, Buckets: agg.Buckets, Failures: agg.Failures}, nil
}

type rows2matrix struct {
	filter rowFilter
}

func (cmd *rows2matrix) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputFilename := flags.String("input", "", "input `file` (tsv, csv, xlsx; - for tsv on stdin)")
	xvar := flags.String("xvar", "", "`column` whose values become matrix columns")
	xtype := flags.String("xtype", "", "`type` of x values: time or empty")
	target := flags.String("target", "", "`column` with values to sum (default: count rows)")
	sumTarget := flags.String("sum-target", "no", "sum target values (yes) or write each row's value as-is (no)")
	format := flags.String("format", "float", "numeric `format` of target values: integer or float")
	yvar := flags.String("yvar", "", "comma-separated key `columns`")
	uniqueID := flags.String("unique-id", "", "key `column` used as the row identifier")
	extraColumns := flags.String("extra-columns", "", "comma-separated `columns` copied from the first matching row")
	newColumns := flags.String("new-columns", "", "constant columns to add, `name:value,...`")
	timeVar := flags.String("time-var", "", "date `column` used for the time window (default: xvar if xtype=time)")
	startDate := flags.String("start-date", "", "first `date` to include (default: earliest in data)")
	endDate := flags.String("end-date", "", "last `date` to include (default: reference date)")
	refDate := flags.String("reference-date", "", "`date` to use as today (default: current UTC date)")
	sortBy := flags.String("sortby", "", "comma-separated `columns` to sort by (default: unique-id)")
	outputFilename := flags.String("output", "-", "output `file`")
	numpyFilename := flags.String("output-numpy", "", "also write the bucket columns as a float64 numpy array to `file.npy`")
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
	if *inputFilename == "" || *xvar == "" || *yvar == "" {
		err = errors.New("must provide -input, -xvar and -yvar")
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	opts := PivotOptions{
		XColumn:       *xvar,
		XIsTime:       *xtype == "time",
		TimeColumn:    *timeVar,
		Start:         *startDate,
		End:           *endDate,
		Target:        *target,
		SumTarget:     *sumTarget == "yes",
		KeyColumns:    splitList(*yvar),
		DisplayColumn: *uniqueID,
		ExtraColumns:  splitList(*extraColumns),
		SortBy:        splitList(*sortBy),
	}
	if len(opts.KeyColumns) == 0 {
		err = errors.New("-yvar must name at least one column")
		return 2
	}
	if opts.DisplayColumn == "" {
		opts.DisplayColumn = opts.KeyColumns[0]
	}
	opts.Reference, err = referenceDate(*refDate)
	if err != nil {
		return 1
	}
	opts.Format, err = ParseNumberFormat(*format)
	if err != nil {
		return 1
	}
	opts.NewColumns, err = parseNamedValues(*newColumns)
	if err != nil {
		return 1
	}
	opts.Filter, err = ParseFilter(cmd.filter.Expr)
	if err != nil {
		return 1
	}

	log.Infof("loading %s", *inputFilename)
	t, err := loadTable(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	result, err := Pivot(t, opts)
	if err != nil {
		return 1
	}
	warnCoercionFailures(result.Failures)
	log.Infof("writing %d rows x %d buckets to %s", len(result.Matrix.Rows), len(result.Buckets), *outputFilename)
	err = WriteTable(*outputFilename, stdout, result.Matrix)
	if err != nil {
		return 1
	}
	if *numpyFilename != "" {
		log.Infof("writing %s", *numpyFilename)
		err = writeNumpyMatrix(*numpyFilename, result.Matrix, result.Buckets)
		if err != nil {
			return 1
		}
	}
	return 0
}

// referenceDate parses a -reference-date flag, defaulting to the
// current UTC date.
func referenceDate(s string) (time.Time, error) {
	if s == "" {
		return truncateDay(time.Now().UTC()), nil
	}
	d, ok := parseDate(s)
	if !ok {
		return time.Time{}, &FormatError{What: "reference date", Value: s}
	}
	return d, nil
}
