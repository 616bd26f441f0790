// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Binning assigns range labels to numeric values. Edges are upper
// bounds: a value v is in bin "start-end" if start < v <= end.
type Binning struct {
	edges   []float64
	highest float64
	capped  bool
}

// NewBinning builds the bin edges: lowest (default 0), then the
// given upper limits, then highest if it is greater than the last
// limit. The bin ending at highest is labeled "N+".
func NewBinning(limits []string, lowest, highest string) (*Binning, error) {
	b := &Binning{}
	origin := 0.0
	if lowest != "" && endsWithDigit(lowest) {
		v, err := strconv.ParseFloat(strings.TrimSpace(lowest), 64)
		if err != nil {
			return nil, &FormatError{What: "lowest value", Value: lowest}
		}
		origin = v
	}
	b.edges = append(b.edges, origin)
	for _, s := range limits {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, &FormatError{What: "bin limit", Value: s}
		}
		b.edges = append(b.edges, v)
	}
	if highest != "" && endsWithDigit(highest) {
		v, err := strconv.ParseFloat(strings.TrimSpace(highest), 64)
		if err != nil {
			return nil, &FormatError{What: "highest value", Value: highest}
		}
		b.highest, b.capped = v, true
		if b.edges[len(b.edges)-1] < v {
			b.edges = append(b.edges, v)
		}
	}
	return b, nil
}

func endsWithDigit(s string) bool {
	return s != "" && s[len(s)-1] >= '0' && s[len(s)-1] <= '9'
}

// Label returns the bin label for s, or "NA" if s is empty,
// non-numeric, or outside every bin.
func (b *Binning) Label(s string) string {
	s = strings.TrimSpace(s)
	if !endsWithDigit(s) {
		return "NA"
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "NA"
	}
	label := "NA"
	for i := 0; i+1 < len(b.edges); i++ {
		start, end := math.Trunc(b.edges[i]), math.Trunc(b.edges[i+1])
		if start < v && v <= end {
			label = fmt.Sprintf("%d-%d", int(start), int(end))
			if b.capped && end == b.highest {
				label = fmt.Sprintf("%d+", int(b.edges[len(b.edges)-2])+1)
			}
		}
	}
	// An origin of -1 exists only to make 0 fall in the first bin.
	return strings.Replace(label, "-1-4", "0-4", -1)
}

// readList reads one item per line from a file if spec names
// one, otherwise splits spec on commas.
func readList(spec string) ([]string, error) {
	if fi, err := os.Stat(spec); err != nil || fi.IsDir() {
		return splitList(spec), nil
	}
	f, err := os.Open(spec)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var items []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			items = append(items, line)
		}
	}
	return items, scanner.Err()
}

type binner struct {
	filter rowFilter
}

func (cmd *binner) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("input", "", "input `file`")
	column := flags.String("column", "", "numeric `column` to bin")
	bins := flags.String("bins", "", "comma-separated upper `limits`, or a file with one limit per line")
	group := flags.String("group", "", "name of the new label `column`")
	lowest := flags.String("lowest", "", "lowest `value` (default 0)")
	highest := flags.String("highest", "", "highest `value`; the last bin is labeled N+")
	sortBy := flags.String("sortby", "", "comma-separated `columns` to sort by")
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
	if *inputFilename == "" || *column == "" || *bins == "" || *group == "" {
		err = errors.New("must provide -input, -column, -bins and -group")
		return 2
	}
	limits, err := readList(*bins)
	if err != nil {
		return 1
	}
	binning, err := NewBinning(limits, *lowest, *highest)
	if err != nil {
		return 1
	}
	t, err := loadTable(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	t, err = cmd.filter.Apply(t)
	if err != nil {
		return 1
	}
	col, err := t.ColumnIndex(*column)
	if err != nil {
		return 1
	}
	t = t.Clone()
	gcol := t.EnsureColumn(*group)
	for _, row := range t.Rows {
		row[gcol] = binning.Label(row[col])
	}
	err = t.SortBy(splitList(*sortBy))
	if err != nil {
		return 1
	}
	log.Infof("writing %d rows to %s", len(t.Rows), *outputFilename)
	err = WriteTable(*outputFilename, stdout, t)
	if err != nil {
		return 1
	}
	return 0
}
