// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// SelectColumns keeps and drops columns according to a
// "a,b,~c" list: plain names are kept (in the given order, dropping
// all others), "~" names are dropped.
func SelectColumns(t *Table, spec string) (*Table, error) {
	var keep, drop []string
	for _, name := range splitList(spec) {
		if strings.HasPrefix(name, "~") {
			drop = append(drop, name[1:])
		} else {
			keep = append(keep, name)
		}
	}
	out := t
	if len(keep) > 0 {
		var err error
		if out, err = t.Select(keep); err != nil {
			return nil, err
		}
	} else {
		out = t.Clone()
	}
	if err := out.DropColumns(drop...); err != nil {
		return nil, err
	}
	return out, nil
}

// Transpose turns columns into rows. The first output column,
// "column", holds the input column names. If header is not empty,
// that input column's values become the output column names and the
// column itself is omitted from the body; otherwise columns are
// numbered from 0.
func Transpose(t *Table, header string) (*Table, error) {
	hcol := -1
	if header != "" {
		var err error
		if hcol, err = t.ColumnIndex(header); err != nil {
			return nil, err
		}
	}
	out := NewTable("column")
	for r, row := range t.Rows {
		if hcol >= 0 {
			out.Columns = append(out.Columns, row[hcol])
		} else {
			out.Columns = append(out.Columns, strconv.Itoa(r))
		}
	}
	for c, name := range t.Columns {
		if c == hcol {
			continue
		}
		outrow := make([]string, 0, len(t.Rows)+1)
		outrow = append(outrow, name)
		for _, row := range t.Rows {
			outrow = append(outrow, row[c])
		}
		out.Rows = append(out.Rows, outrow)
	}
	return out, nil
}

type flipper struct {
	filter rowFilter
}

func (cmd *flipper) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("input", "", "input `file`")
	columns := flags.String("columns", "", "columns to keep (`a,b`) or drop (`~c`) before transposing")
	header := flags.String("index", "", "use this `column`'s values as the output header")
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
	if *inputFilename == "" {
		err = errors.New("must provide -input")
		return 2
	}
	t, err := loadTable(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	t, err = cmd.filter.Apply(t)
	if err != nil {
		return 1
	}
	t, err = SelectColumns(t, *columns)
	if err != nil {
		return 1
	}
	out, err := Transpose(t, *header)
	if err != nil {
		return 1
	}
	log.Infof("writing %d rows x %d columns to %s", len(out.Rows), len(out.Columns), *outputFilename)
	err = WriteTable(*outputFilename, stdout, out)
	if err != nil {
		return 1
	}
	return 0
}
