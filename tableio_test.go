// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"bytes"
	"errors"
	"io/ioutil"
	"os"

	"github.com/klauspost/pgzip"
	"github.com/xuri/excelize/v2"
	"gopkg.in/check.v1"
)

type tableioSuite struct{}

var _ = check.Suite(&tableioSuite{})

func (s *tableioSuite) TestFormats(c *check.C) {
	for _, trial := range []struct {
		fnm    string
		format string
	}{
		{"a.tsv", "tsv"},
		{"a.TSV.gz", "tsv"},
		{"dir.v2/a.csv", "csv"},
		{"a.xlsx", "xlsx"},
		{"a.xls", "xls"},
		{"a.json", "json"},
		{"noext", ""},
	} {
		c.Check(tableFormat(trial.fnm), check.Equals, trial.format, check.Commentf("%s", trial.fnm))
	}
}

func (s *tableioSuite) TestLoadDelimited(c *check.C) {
	tmpdir := c.MkDir()
	writeFile(c, tmpdir+"/a.csv", "\ufeffstate,city,n\nSP,\"São Paulo, capital\",1\nRJ,Rio\n")
	t, err := LoadTable(tmpdir + "/a.csv")
	c.Assert(err, check.IsNil)
	c.Check(t.Columns, check.DeepEquals, []string{"state", "city", "n"})
	c.Check(t.Rows, check.DeepEquals, [][]string{{"SP", "São Paulo, capital", "1"}, {"RJ", "Rio", ""}})

	_, err = LoadTable(tmpdir + "/a.json")
	var ferr *FormatError
	c.Check(errors.As(err, &ferr), check.Equals, true)

	_, err = LoadTable(tmpdir + "/missing.tsv")
	c.Check(err, check.NotNil)
}

func (s *tableioSuite) TestLoadStdin(c *check.C) {
	t, err := loadTable("-", bytes.NewBufferString("state\tn\nSP\t1\n"))
	c.Assert(err, check.IsNil)
	c.Check(t.Columns, check.DeepEquals, []string{"state", "n"})
	c.Check(t.Rows, check.DeepEquals, [][]string{{"SP", "1"}})
}

func (s *tableioSuite) TestLegacyXLS(c *check.C) {
	tmpdir := c.MkDir()
	writeFile(c, tmpdir+"/a.xls", "not a workbook\n")
	_, err := LoadTable(tmpdir + "/a.xls")
	var ferr *FormatError
	c.Assert(errors.As(err, &ferr), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*save as \.xlsx`)
}

func (s *tableioSuite) TestGzipRoundTrip(c *check.C) {
	tmpdir := c.MkDir()
	t := readTSV(c, "state\tn\nSP\t1\nRJ\t2\n")
	c.Assert(WriteTable(tmpdir+"/out.tsv.gz", nil, t), check.IsNil)

	f, err := os.Open(tmpdir + "/out.tsv.gz")
	c.Assert(err, check.IsNil)
	defer f.Close()
	zr, err := pgzip.NewReader(f)
	c.Assert(err, check.IsNil)
	buf, err := ioutil.ReadAll(zr)
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "state\tn\nSP\t1\nRJ\t2\n")

	t2, err := LoadTable(tmpdir + "/out.tsv.gz")
	c.Assert(err, check.IsNil)
	c.Check(t2, check.DeepEquals, t)
}

func (s *tableioSuite) TestStdout(c *check.C) {
	var buf bytes.Buffer
	t := readTSV(c, "a\tb\n1\t2\n")
	c.Assert(WriteTable("-", &buf, t), check.IsNil)
	c.Check(buf.String(), check.Equals, "a\tb\n1\t2\n")
	buf.Reset()
	c.Assert(WriteTable("", &buf, t), check.IsNil)
	c.Check(buf.String(), check.Equals, "a\tb\n1\t2\n")
}

func (s *tableioSuite) TestSpreadsheet(c *check.C) {
	tmpdir := c.MkDir()
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	for cell, v := range map[string]interface{}{
		"A1": "lab_id", "B1": "date_testing", "C1": "Ct_N",
		"A2": "HLAGyn", "B2": "2021-03-01", "C2": 25.5,
		"A3": "HLAGyn", "C3": "",
		"A4": "DASA", "B4": "2021-03-02", "D4": "stray",
	} {
		c.Assert(wb.SetCellValue(sheet, cell, v), check.IsNil)
	}
	c.Assert(wb.SaveAs(tmpdir+"/in.xlsx"), check.IsNil)
	c.Assert(wb.Close(), check.IsNil)

	t, err := LoadTable(tmpdir + "/in.xlsx")
	c.Assert(err, check.IsNil)
	c.Check(tsv(c, t), check.Equals, "lab_id\tdate_testing\tCt_N\n"+
		"HLAGyn\t2021-03-01\t25.5\n"+
		"HLAGyn\t\t\n"+
		"DASA\t2021-03-02\t\n")

	c.Assert(WriteTable(tmpdir+"/out.xlsx", nil, t), check.IsNil)
	t2, err := LoadTable(tmpdir + "/out.xlsx")
	c.Assert(err, check.IsNil)
	c.Check(t2, check.DeepEquals, t)
}
