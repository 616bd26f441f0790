// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"crypto/sha1"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/respat/epitools/epiweek"
	log "github.com/sirupsen/logrus"
)

// labTable is one file's worth of rows from one lab.
type labTable struct {
	Lab   string
	Path  string
	Table *Table
}

// findLabFiles lists the data files under datadir/<lab>/, skipping
// lab directories that start with "_" and files that start with "~"
// or "_" (spreadsheet lock files, notes). Results are sorted by lab
// and file name.
func findLabFiles(datadir string) ([]labTable, error) {
	labs, err := os.ReadDir(datadir)
	if err != nil {
		return nil, err
	}
	var found []labTable
	for _, lab := range labs {
		if !lab.IsDir() || strings.HasPrefix(lab.Name(), "_") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(datadir, lab.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, "~") || strings.HasPrefix(name, "_") {
				continue
			}
			switch tableFormat(name) {
			case "tsv", "csv", "xlsx":
				found = append(found, labTable{Lab: lab.Name(), Path: filepath.Join(datadir, lab.Name(), name)})
			case "xls":
				log.Warnf("skipping %s: legacy .xls workbooks are not supported, save as .xlsx", filepath.Join(lab.Name(), name))
			}
		}
	}
	return found, nil
}

// loadRenames reads a table with columns lab_id, column_name and
// new_name.
func loadRenames(t *Table) (map[string]map[string]string, error) {
	idx, err := t.ColumnIndexes([]string{"lab_id", "column_name", "new_name"})
	if err != nil {
		return nil, err
	}
	renames := map[string]map[string]string{}
	for _, row := range t.Rows {
		lab := row[idx[0]]
		if renames[lab] == nil {
			renames[lab] = map[string]string{}
		}
		renames[lab][row[idx[1]]] = row[idx[2]]
	}
	return renames, nil
}

// corrections maps lab -> column -> old value -> new value. The lab
// "any" applies to every lab and the column "any" to every column.
type corrections map[string]map[string]map[string]string

// loadCorrections reads a table with columns lab_id, column_name,
// old_data and new_data. Rows where both values are empty are
// ignored.
func loadCorrections(t *Table) (corrections, error) {
	idx, err := t.ColumnIndexes([]string{"lab_id", "column_name", "old_data", "new_data"})
	if err != nil {
		return nil, err
	}
	corr := corrections{}
	for _, row := range t.Rows {
		lab, col, oldv, newv := row[idx[0]], row[idx[1]], row[idx[2]], row[idx[3]]
		if oldv == "" && newv == "" {
			continue
		}
		if corr[lab] == nil {
			corr[lab] = map[string]map[string]string{}
		}
		if corr[lab][col] == nil {
			corr[lab][col] = map[string]string{}
		}
		corr[lab][col][oldv] = newv
	}
	return corr, nil
}

// fix returns the corrected value of a cell. Lab-specific entries win
// over "any" entries.
func (corr corrections) fix(lab, col, value string) string {
	for _, l := range []string{lab, "any"} {
		for _, c := range []string{col, "any"} {
			if v, ok := corr[l][c][value]; ok {
				return v
			}
		}
	}
	return value
}

// Apply corrects t's cells in place. All of t's rows are from lab.
func (corr corrections) Apply(t *Table, lab string) {
	if len(corr[lab]) == 0 && len(corr["any"]) == 0 {
		return
	}
	for _, row := range t.Rows {
		for c, name := range t.Columns {
			row[c] = corr.fix(lab, name, row[c])
		}
	}
}

type ReshapeOptions struct {
	Profile     *reshapeProfile
	Renames     map[string]map[string]string
	Corrections corrections
}

// Reshape brings every lab's tables into the profile's schema: lab
// strategy, lab_id column, renames, corrections, then derived columns
// (epiweek, age, sex, detection calls, sample_id) and projection onto
// the profile's columns. Data-quality warnings are returned, prefixed
// with the source file.
func Reshape(inputs []labTable, opts ReshapeOptions) (*Table, []string, error) {
	prof := opts.Profile
	var tables []*Table
	var warnings []string
	for _, in := range inputs {
		t, warn, err := prof.normalize(in.Lab, in.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", in.Path, err)
		}
		for _, w := range warn {
			warnings = append(warnings, in.Path+": "+w)
		}
		t = t.Clone()
		t.InsertColumn(0, "lab_id", in.Lab)
		t.RenameColumns(opts.Renames[in.Lab])
		opts.Corrections.Apply(t, in.Lab)
		for _, pathogen := range prof.Pathogens {
			if name := pathogen + "_test_result"; !t.HasColumn(name) {
				t.InsertColumn(len(t.Columns), name, resultNotTested)
			}
		}
		tables = append(tables, t)
	}
	all := Concat("", tables...)
	for _, name := range []string{"date_testing", "birthdate", "age", "sex", "epiweek"} {
		all.EnsureColumn(name)
	}
	idx, _ := all.ColumnIndexes([]string{"date_testing", "birthdate", "age", "sex", "epiweek"})
	dateCol, birthCol, ageCol, sexCol, weekCol := idx[0], idx[1], idx[2], idx[3], idx[4]
	for _, row := range all.Rows {
		tested, ok := parseDate(row[dateCol])
		if !ok {
			row[dateCol] = "XXXXX"
			row[weekCol] = ""
		} else {
			row[dateCol] = tested.Format(dateLayout)
			week := epiweek.FromDate(tested)
			if prof.Epiweek == "label" {
				row[weekCol] = week.Label()
			} else {
				row[weekCol] = week.EndDate().Format(dateLayout)
			}
			if born, ok := parseDate(row[birthCol]); ok {
				years := tested.Sub(born).Hours() / 24 / 365.2425
				row[ageCol] = strconv.FormatFloat(years, 'f', 1, 64)
			}
		}
		if sex := strings.TrimSpace(row[sexCol]); sex != "" {
			r, _ := utf8.DecodeRuneInString(sex)
			row[sexCol] = string(r)
		}
	}
	if prof.Detection {
		addDetectionColumns(all)
	}
	if prof.BinaryResult {
		col := all.EnsureColumn("test_result")
		for _, row := range all.Rows {
			if row[col] != "Positive" && row[col] != "Negative" {
				row[col] = "Negative"
			}
		}
	}
	if all.HasColumn("sample_id") {
		all.DropColumns("sample_id")
	}
	all.InsertColumn(1, "sample_id", "")
	for _, name := range prof.Columns {
		all.EnsureColumn(name)
	}
	// sample_id depends only on the profile's output columns, so
	// it does not change when other labs contribute new columns.
	var idcols []string
	for _, name := range prof.Columns {
		if name != "sample_id" {
			idcols = append(idcols, name)
		}
	}
	idx, err := all.ColumnIndexes(idcols)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range all.Rows {
		row[1] = hashKey(sha1.New, pick(row, idx))
	}
	out, err := all.Select(prof.Columns)
	if err != nil {
		return nil, nil, err
	}
	return out, warnings, nil
}

// addDetectionColumns adds <target>_detection for every Ct_<target>
// column: "Detected" if the Ct is a positive number, else "Not
// detected".
func addDetectionColumns(t *Table) {
	var src []int
	var dst []string
	for c, name := range t.Columns {
		if !strings.HasPrefix(name, "Ct_") {
			continue
		}
		target := strings.SplitN(name, "_", 3)[1]
		src = append(src, c)
		dst = append(dst, target+"_detection")
	}
	dcols := make([]int, len(dst))
	for i, name := range dst {
		dcols[i] = t.EnsureColumn(name)
	}
	for _, row := range t.Rows {
		for i, c := range src {
			row[dcols[i]] = "Not detected"
			v := strings.TrimSpace(row[c])
			if v == "" || v[0] < '0' || v[0] > '9' {
				continue
			}
			if ct, err := strconv.ParseFloat(v, 64); err == nil && ct > 0 {
				row[dcols[i]] = "Detected"
			}
		}
	}
}

// dropCached removes rows whose sample_id appears in cache.
func dropCached(t, cache *Table) (*Table, error) {
	ccol, err := cache.ColumnIndex("sample_id")
	if err != nil {
		return nil, err
	}
	tcol, err := t.ColumnIndex("sample_id")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, row := range cache.Rows {
		seen[row[ccol]] = true
	}
	return t.FilterRows(func(row []string) bool { return !seen[row[tcol]] }), nil
}

type reshaper struct{}

func (cmd *reshaper) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err == errUsage {
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *reshaper) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	datadir := flags.String("datadir", "", "`directory` containing one sub-directory per lab")
	renameFilename := flags.String("rename", "", "`file` with columns lab_id, column_name, new_name")
	correctionFilename := flags.String("correction", "", "`file` with columns lab_id, column_name, old_data, new_data")
	profileName := flags.String("profile", "respvir", "output `profile`: respvir or sc2")
	panelsFilename := flags.String("panels", "", "lab panel `file` (default: built-in panels)")
	cacheFilename := flags.String("cache", "", "previous output `file`; its rows are kept and their samples skipped")
	threads := flags.Int("threads", 0, "load at most `n` files at a time (default GOMAXPROCS)")
	outputFilename := flags.String("output", "", "output `file`")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return errUsage
	} else if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "errant command line arguments after parsed flags: %v\n", flags.Args())
		return errUsage
	}
	if *datadir == "" || *outputFilename == "" {
		return errors.New("must provide -datadir and -output")
	}
	cfg, err := loadPanels(*panelsFilename)
	if err != nil {
		return err
	}
	prof, ok := cfg.Profiles[*profileName]
	if !ok {
		return &FormatError{What: "profile", Value: *profileName, Reason: fmt.Sprintf("expected one of %q", sortedKeys(cfg.Profiles))}
	}
	opts := ReshapeOptions{Profile: prof, Corrections: corrections{}}
	if *renameFilename != "" {
		t, err := LoadTable(*renameFilename)
		if err != nil {
			return err
		}
		if opts.Renames, err = loadRenames(t); err != nil {
			return err
		}
	}
	if *correctionFilename != "" {
		t, err := LoadTable(*correctionFilename)
		if err != nil {
			return err
		}
		if opts.Corrections, err = loadCorrections(t); err != nil {
			return err
		}
	}

	inputs, err := findLabFiles(*datadir)
	if err != nil {
		return err
	}
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}
	tables, err := loadTables(paths, *threads)
	if err != nil {
		return err
	}
	for i := range inputs {
		inputs[i].Table = tables[i]
	}
	out, warnings, err := Reshape(inputs, opts)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	var cache *Table
	if *cacheFilename != "" {
		if cache, err = LoadTable(*cacheFilename); err != nil {
			return err
		}
		before := len(out.Rows)
		if out, err = dropCached(out, cache); err != nil {
			return err
		}
		log.Infof("skipped %d rows already in %s", before-len(out.Rows), *cacheFilename)
	}

	dups, kept := splitDuplicates(out, func(row []string) string { return compositeKey(row...) })
	if n := len(out.Rows) - len(kept.Rows); n > 0 {
		fnm := filepath.Join(*datadir, "duplicates.tsv")
		if err = WriteTable(fnm, nil, dups); err != nil {
			return err
		}
		log.Warnf("%d duplicate entries found, saved in %s", n, fnm)
	}
	out = kept
	if err = out.SortBy([]string{"date_testing"}); err != nil {
		return err
	}
	if cache != nil {
		out = Concat("", cache, out)
	}
	log.Infof("writing %d rows to %s", len(out.Rows), *outputFilename)
	return WriteTable(*outputFilename, stdout, out)
}
