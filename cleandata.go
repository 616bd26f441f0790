// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	log "github.com/sirupsen/logrus"
)

var dmp = diffmatchpatch.New()

// similarity returns 2*M/T, where M is the number of characters the
// two strings have in common (per a character diff) and T is their
// combined length. Two empty strings are identical.
func similarity(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	matched := 0
	for _, d := range dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}
	return 2 * float64(matched) / float64(total)
}

// standardPattern says that values resembling Pattern (or Standard
// itself) in Column should be replaced with Standard.
type standardPattern struct {
	Column   string
	Pattern  string
	Standard string
}

func loadPatterns(t *Table) ([]standardPattern, error) {
	idx, err := t.ColumnIndexes([]string{"column", "pattern", "standard"})
	if err != nil {
		return nil, err
	}
	patterns := make([]standardPattern, len(t.Rows))
	for r, row := range t.Rows {
		patterns[r] = standardPattern{Column: row[idx[0]], Pattern: row[idx[1]], Standard: row[idx[2]]}
	}
	return patterns, nil
}

// replacementLog records, per column, the standard chosen for each
// distinct value, and the values that matched nothing.
type replacementLog struct {
	columns  []string
	found    map[string]map[string]string
	order    map[string][]string
	notFound map[string][]string
}

func newReplacementLog() *replacementLog {
	return &replacementLog{
		found:    map[string]map[string]string{},
		order:    map[string][]string{},
		notFound: map[string][]string{},
	}
}

// Table lists (column, old value, standard) for every replacement,
// then (column, value, "NotFound") for every unmatched value.
func (rl *replacementLog) Table() *Table {
	t := NewTable("column", "pattern", "standard")
	for _, col := range rl.columns {
		for _, old := range rl.order[col] {
			t.Rows = append(t.Rows, []string{col, old, rl.found[col][old]})
		}
	}
	for _, col := range rl.columns {
		for _, old := range rl.notFound[col] {
			t.Rows = append(t.Rows, []string{col, old, "NotFound"})
		}
	}
	return t
}

// Standardize replaces the values of every column named in patterns
// with the standard of the first pattern whose pattern or standard
// text is more similar than threshold. Results go in a new
// "<column>_fixed" column, or replace the original if purge is set.
// Unmatched values become empty.
func Standardize(t *Table, patterns []standardPattern, threshold float64, purge bool) (*Table, *replacementLog, error) {
	bycol := map[string][]standardPattern{}
	for _, p := range patterns {
		bycol[p.Column] = append(bycol[p.Column], p)
	}
	rl := newReplacementLog()
	for col := range bycol {
		rl.columns = append(rl.columns, col)
	}
	sort.Strings(rl.columns)

	out := t.Clone()
	for _, column := range rl.columns {
		src, err := out.ColumnIndex(column)
		if err != nil {
			return nil, nil, err
		}
		dst := src
		if !purge {
			dst = out.EnsureColumn(column + "_fixed")
		}
		rl.found[column] = map[string]string{}
		missed := map[string]bool{}
		for _, row := range out.Rows {
			value := row[src]
			std, ok := rl.found[column][value]
			if !ok && !missed[value] {
				for _, p := range bycol[column] {
					if similarity(value, p.Pattern) > threshold || similarity(value, p.Standard) > threshold {
						std, ok = p.Standard, true
						rl.found[column][value] = std
						rl.order[column] = append(rl.order[column], value)
						log.Debugf("%s: %q -> %q", column, value, std)
						break
					}
				}
				if !ok {
					missed[value] = true
					rl.notFound[column] = append(rl.notFound[column], value)
				}
			}
			row[dst] = std
		}
	}
	return out, rl, nil
}

type cleanData struct{}

func (cmd *cleanData) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("input", "", "input `file`")
	patternsFilename := flags.String("patterns", "", "patterns `file` with columns: column, pattern, standard")
	purge := flags.Bool("purge", false, "replace original columns instead of adding <column>_fixed columns")
	replacements := flags.Bool("replacements", true, "write replacements.tsv next to -output")
	threshold := flags.Float64("similarity", 0, "accept matches with similarity greater than `ratio` (0-1)")
	outputFilename := flags.String("output", "-", "output `file`")
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
	if *inputFilename == "" || *patternsFilename == "" {
		err = errors.New("must provide -input and -patterns")
		return 2
	}
	t, err := loadTable(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	pt, err := LoadTable(*patternsFilename)
	if err != nil {
		return 1
	}
	patterns, err := loadPatterns(pt)
	if err != nil {
		return 1
	}
	out, rl, err := Standardize(t, patterns, *threshold, *purge)
	if err != nil {
		return 1
	}
	for _, col := range rl.columns {
		for _, v := range rl.notFound[col] {
			log.Warnf("%s: %q did not match any pattern", col, v)
		}
	}
	err = WriteTable(*outputFilename, stdout, out)
	if err != nil {
		return 1
	}
	if *replacements {
		fnm := siblingPath(*outputFilename, "replacements.tsv")
		log.Infof("writing %s", fnm)
		err = WriteTable(fnm, nil, rl.Table())
		if err != nil {
			return 1
		}
	}
	return 0
}
