// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
)

// findFiles returns the sorted paths of regular files under root
// (recursively) whose base name matches pattern.
func findFiles(root, pattern string, skip func(path string) bool) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, &FormatError{What: "file pattern", Value: pattern, Reason: err.Error()}
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || (skip != nil && skip(path)) {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

// MergeTables filters each table, concatenates the results with the
// union of their columns, and replaces every empty cell with fill.
func MergeTables(tables []*Table, filter Filter, fill string) (*Table, error) {
	filtered := make([]*Table, len(tables))
	for i, t := range tables {
		var err error
		filtered[i], err = filter.Apply(t)
		if err != nil {
			return nil, err
		}
	}
	merged := Concat("", filtered...)
	if fill != "" {
		for _, row := range merged.Rows {
			for i, v := range row {
				if v == "" {
					row[i] = fill
				}
			}
		}
	}
	return merged, nil
}

type multiMerger struct {
	filter rowFilter
}

func (cmd *multiMerger) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	path := flags.String("path", ".", "search for input files under `dir`")
	pattern := flags.String("pattern", "*.*", "merge files whose names match `glob`")
	flags.StringVar(pattern, "regex", "*.*", "alias for -pattern")
	fillna := flags.String("fillna", "''", "replace empty cells with `value` ('' means leave empty)")
	threads := flags.Int("threads", 4, "load up to `N` files concurrently")
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
	filter, err := ParseFilter(cmd.filter.Expr)
	if err != nil {
		return 1
	}
	outAbs, _ := filepath.Abs(*outputFilename)
	paths, err := findFiles(*path, *pattern, func(p string) bool {
		abs, _ := filepath.Abs(p)
		return abs == outAbs
	})
	if err != nil {
		return 1
	}
	if len(paths) == 0 {
		err = fmt.Errorf("no files matching %q found in %s", *pattern, *path)
		return 1
	}
	tables, err := loadTables(paths, *threads)
	if err != nil {
		return 1
	}
	fill := *fillna
	if fill == "''" {
		fill = ""
	}
	merged, err := MergeTables(tables, filter, fill)
	if err != nil {
		return 1
	}
	log.Infof("merged %d files, writing %d rows to %s", len(paths), len(merged.Rows), *outputFilename)
	err = WriteTable(*outputFilename, stdout, merged)
	if err != nil {
		return 1
	}
	return 0
}
