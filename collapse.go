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

type CollapseOptions struct {
	KeyColumns    []string
	DisplayColumn string
	ExtraColumns  []string
	NewColumns    [][2]string
	Ignore        []string
	Format        NumberFormat
	Filter        Filter
	SortBy        []string
}

// Collapse sums the numeric data columns of a matrix over rows that
// share the same key column values. Every column that is not a key,
// extra, ignored or new column is a data column.
func Collapse(t *Table, opts CollapseOptions) (*Table, []*CoercionError, error) {
	t = t.Clone()
	prependColumns(t, opts.NewColumns)
	t, err := opts.Filter.Apply(t)
	if err != nil {
		return nil, nil, err
	}
	if err = t.DropColumns(opts.Ignore...); err != nil {
		return nil, nil, err
	}
	extras := append([]string(nil), opts.ExtraColumns...)
	for _, nv := range opts.NewColumns {
		extras = append(extras, nv[0])
	}
	notData := map[string]bool{opts.DisplayColumn: true}
	for _, c := range append(extras, opts.KeyColumns...) {
		notData[c] = true
	}
	var datacols []string
	var dataidx []int
	for i, c := range t.Columns {
		if !notData[c] {
			datacols = append(datacols, c)
			dataidx = append(dataidx, i)
		}
	}

	keys, err := BuildKeys(t, opts.KeyColumns, opts.DisplayColumn)
	if err != nil {
		return nil, nil, err
	}
	agg := newAggregates(t, keys, datacols)
	for r, row := range t.Rows {
		for i, col := range dataidx {
			s := strings.TrimSpace(row[col])
			if s == "" {
				continue
			}
			v, err := FormatFloat.Coerce(s)
			if err != nil {
				agg.Failures = append(agg.Failures, &CoercionError{Row: r, Column: datacols[i], Value: s, Err: err})
				continue
			}
			agg.add(keys[r].ID, datacols[i], v)
		}
	}
	out, err := Assemble(AssembleOptions{
		KeyColumns:    opts.KeyColumns,
		DisplayColumn: opts.DisplayColumn,
		ExtraColumns:  extras,
		Aggregates:    agg,
		Format:        opts.Format,
		SortBy:        opts.SortBy,
	})
	if err != nil {
		return nil, nil, err
	}
	return out, agg.Failures, nil
}

type collapser struct {
	filter rowFilter
}

func (cmd *collapser) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err == errUsage {
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *collapser) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("input", "", "input matrix `file`")
	index := flags.String("index", "", "comma-separated key `columns` to collapse on")
	uniqueID := flags.String("unique-id", "", "key `column` used as the row identifier")
	extraColumns := flags.String("extra-columns", "", "comma-separated `columns` copied from the first matching row")
	newColumns := flags.String("new-columns", "", "constant columns to add, `name:value,...`")
	ignore := flags.String("ignore", "", "comma-separated `columns` to drop")
	format := flags.String("format", "float", "numeric `format` of output values: integer or float")
	sortBy := flags.String("sortby", "", "comma-separated `columns` to sort by (default: unique-id)")
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
	if *inputFilename == "" || *index == "" || *uniqueID == "" {
		return errors.New("must provide -input, -index and -unique-id")
	}

	opts := CollapseOptions{
		KeyColumns:    splitList(*index),
		DisplayColumn: *uniqueID,
		ExtraColumns:  splitList(*extraColumns),
		Ignore:        splitList(*ignore),
		SortBy:        splitList(*sortBy),
	}
	if len(opts.KeyColumns) == 0 {
		fmt.Fprintln(stderr, "-index must name at least one column")
		return errUsage
	}
	if opts.Format, err = ParseNumberFormat(*format); err != nil {
		return err
	}
	if opts.NewColumns, err = parseNamedValues(*newColumns); err != nil {
		return err
	}
	if opts.Filter, err = ParseFilter(cmd.filter.Expr); err != nil {
		return err
	}

	log.Infof("loading %s", *inputFilename)
	t, err := loadTable(*inputFilename, stdin)
	if err != nil {
		return err
	}
	out, failures, err := Collapse(t, opts)
	if err != nil {
		return err
	}
	warnCoercionFailures(failures)
	log.Infof("writing %d rows to %s", len(out.Rows), *outputFilename)
	return WriteTable(*outputFilename, stdout, out)
}
