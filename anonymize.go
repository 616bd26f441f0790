// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"hash"
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// newHasher returns a constructor for the named hash function.
func newHasher(name string) (func() hash.Hash, error) {
	switch name {
	case "sha1", "":
		return sha1.New, nil
	case "blake2b":
		return func() hash.Hash {
			h, _ := blake2b.New256(nil)
			return h
		}, nil
	default:
		return nil, &FormatError{What: "hash", Value: name, Reason: "expected sha1 or blake2b"}
	}
}

// hashKey returns the hex digest of the composite key of values.
func hashKey(newHash func() hash.Hash, values []string) string {
	h := newHash()
	io.WriteString(h, compositeKey(values...))
	return hex.EncodeToString(h.Sum(nil))
}

// Anonymize inserts an "identifier" column at position 0 holding a
// hash of the given columns. It returns the new table and the number
// of rows whose identifier repeats an earlier row's.
func Anonymize(t *Table, columns []string, newHash func() hash.Hash) (*Table, int, error) {
	idx, err := t.ColumnIndexes(columns)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]string, len(t.Rows))
	seen := map[string]bool{}
	dups := 0
	for r, row := range t.Rows {
		ids[r] = hashKey(newHash, pick(row, idx))
		if seen[ids[r]] {
			dups++
		}
		seen[ids[r]] = true
	}
	out := t.Clone()
	out.InsertColumn(0, "identifier", "")
	col, _ := out.ColumnIndex("identifier")
	for r, row := range out.Rows {
		row[col] = ids[r]
	}
	return out, dups, nil
}

// splitDuplicates separates rows whose key occurs more than once. It
// returns every row involved in a duplication (in input order) and
// the table with only the last row for each key.
func splitDuplicates(t *Table, key func(row []string) string) (dups, kept *Table) {
	keys := make([]string, len(t.Rows))
	count := map[string]int{}
	last := map[string]int{}
	for r, row := range t.Rows {
		keys[r] = key(row)
		count[keys[r]]++
		last[keys[r]] = r
	}
	dups = NewTable(t.Columns...)
	kept = NewTable(t.Columns...)
	for r, row := range t.Rows {
		if count[keys[r]] > 1 {
			dups.Rows = append(dups.Rows, row)
		}
		if last[keys[r]] == r {
			kept.Rows = append(kept.Rows, row)
		}
	}
	return dups, kept
}

type anonymizer struct{}

func (cmd *anonymizer) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err == errUsage {
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *anonymizer) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("input", "", "input `file`")
	columns := flags.String("columns", "", "comma-separated `columns` to hash into the identifier")
	remove := flags.Bool("remove", false, "drop rows with duplicate identifiers, keeping the last one")
	hashName := flags.String("hash", "sha1", "hash `function`: sha1 or blake2b")
	duplicatesFilename := flags.String("duplicates", "", "write duplicated rows to `file` (default: duplicates.tsv next to -output)")
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
	if *inputFilename == "" || *columns == "" {
		return errors.New("must provide -input and -columns")
	}
	if *duplicatesFilename == "-" {
		fmt.Fprintln(stderr, "-duplicates must name a file, not stdout")
		return errUsage
	}
	newHash, err := newHasher(*hashName)
	if err != nil {
		return err
	}
	t, err := loadTable(*inputFilename, stdin)
	if err != nil {
		return err
	}
	out, ndups, err := Anonymize(t, splitList(*columns), newHash)
	if err != nil {
		return err
	}
	if ndups > 0 && *remove {
		dups, kept := splitDuplicates(out, func(row []string) string { return row[0] })
		fnm := *duplicatesFilename
		if fnm == "" {
			fnm = siblingPath(*outputFilename, "duplicates.tsv")
		}
		if err = WriteTable(fnm, nil, dups); err != nil {
			return err
		}
		log.Warnf("%d duplicate entries found, saved in %s", ndups, fnm)
		out = kept
	} else if ndups > 0 {
		log.Warnf("%d duplicate entries found", ndups)
	}
	log.Infof("writing %d rows to %s", len(out.Rows), *outputFilename)
	return WriteTable(*outputFilename, stdout, out)
}

// siblingPath returns name in the same directory as fnm (the current
// directory if fnm is stdout).
func siblingPath(fnm, name string) string {
	if fnm == "" || fnm == "-" {
		return name
	}
	return filepath.Join(filepath.Dir(fnm), name)
}
