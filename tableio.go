// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// tableFormat returns the lower-case format extension of a file name
// ("tsv", "csv", "xlsx"), ignoring a trailing ".gz".
func tableFormat(fnm string) string {
	fnm = strings.TrimSuffix(fnm, ".gz")
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fnm), "."))
}

// LoadTable reads a table from a local file or Keep path. The format
// is chosen by extension: tsv, csv or xlsx, optionally
// gzip-compressed. "-" means TSV on standard input.
func LoadTable(fnm string) (*Table, error) {
	return loadTable(fnm, os.Stdin)
}

func loadTable(fnm string, stdin io.Reader) (*Table, error) {
	if fnm == "-" {
		t, err := ReadTable(stdin, '\t')
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return t, nil
	}
	format := tableFormat(fnm)
	switch format {
	case "tsv", "csv", "xlsx":
	case "xls":
		return nil, &FormatError{What: "file", Value: fnm, Reason: "legacy .xls workbooks are not supported, save as .xlsx"}
	default:
		return nil, &FormatError{What: "file", Value: fnm, Reason: "unsupported extension, expected .tsv, .csv or .xlsx"}
	}
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var t *Table
	switch format {
	case "tsv":
		t, err = ReadTable(f, '\t')
	case "csv":
		t, err = ReadTable(f, ',')
	default:
		t, err = readSpreadsheet(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	log.Debugf("loaded %s: %d rows, %d columns", fnm, len(t.Rows), len(t.Columns))
	return t, nil
}

// ReadTable reads delimited text with a header row.
func ReadTable(r io.Reader, comma rune) (*Table, error) {
	rdr := csv.NewReader(bufio.NewReader(r))
	rdr.Comma = comma
	rdr.LazyQuotes = true
	rdr.FieldsPerRecord = -1
	header, err := rdr.Read()
	if err == io.EOF {
		return &Table{}, nil
	} else if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := NewTable(header...)
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		t.AppendRow(rec)
	}
	return t, nil
}

// readSpreadsheet reads the first sheet of a workbook. The first row
// is the header; rows are padded to the header width.
func readSpreadsheet(r io.Reader) (*Table, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}
	t := NewTable(rows[0]...)
	for _, row := range rows[1:] {
		if len(row) > len(t.Columns) {
			// cells beyond the header have no column name
			row = row[:len(t.Columns)]
		}
		t.AppendRow(row)
	}
	return t, nil
}

// nopCloser lets a writer be handed to code that closes what it is
// given, without closing the underlying writer.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// writeOutput creates fnm (or uses stdout if fnm is "-" or empty),
// calls write with a buffered writer, and flushes and closes
// everything. A ".gz" suffix enables compression.
func writeOutput(fnm string, stdout io.Writer, write func(io.Writer) error) error {
	var w io.WriteCloser
	if fnm == "" || fnm == "-" {
		w = nopCloser{stdout}
	} else {
		f, err := os.OpenFile(fnm, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	var zw *pgzip.Writer
	bufw := bufio.NewWriterSize(w, 4*1024*1024)
	target := io.Writer(bufw)
	if strings.HasSuffix(fnm, ".gz") {
		zw = pgzip.NewWriter(bufw)
		target = zw
	}
	err := write(target)
	if err != nil {
		return err
	}
	if zw != nil {
		err = zw.Close()
		if err != nil {
			return err
		}
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return w.Close()
}

// WriteTable writes t to fnm as TSV, CSV or XLSX according to its
// extension. "-" means TSV on stdout.
func WriteTable(fnm string, stdout io.Writer, t *Table) error {
	switch tableFormat(fnm) {
	case "xlsx":
		return writeSpreadsheet(fnm, t)
	case "csv":
		return writeOutput(fnm, stdout, func(w io.Writer) error { return t.writeDelimited(w, ',') })
	default:
		return writeOutput(fnm, stdout, func(w io.Writer) error { return t.writeDelimited(w, '\t') })
	}
}

// WriteTSV writes the header and rows as tab-separated text.
func (t *Table) WriteTSV(w io.Writer) error {
	return t.writeDelimited(w, '\t')
}

func (t *Table) writeDelimited(w io.Writer, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func writeSpreadsheet(fnm string, t *Table) error {
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)
	sw, err := wb.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	for r, row := range append([][]string{t.Columns}, t.Rows...) {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err = sw.SetRow(cell, cells); err != nil {
			return err
		}
	}
	if err = sw.Flush(); err != nil {
		return err
	}
	return wb.SaveAs(fnm)
}
