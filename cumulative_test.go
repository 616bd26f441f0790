// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"bytes"
	"strconv"

	"gopkg.in/check.v1"
)

type cumulativeSuite struct{}

var _ = check.Suite(&cumulativeSuite{})

func (s *cumulativeSuite) TestCumulate(c *check.C) {
	t := readTSV(c, "id\tname\t2021-03-01\t2021-03-02\t2021-03-03\n"+
		"A\tx\t1\t2\t3\n"+
		"B\ty\t\t4\t0.5\n"+
		"C\tz\t1\tX\t1\n")
	out, failures := Cumulate(t, "id")
	c.Check(tsv(c, out), check.Equals, "id\tname\t2021-03-01\t2021-03-02\t2021-03-03\n"+
		"A\tx\t1\t3\t6\n"+
		"B\ty\t0\t4\t4.5\n"+
		"C\tz\t1\t1\t2\n")
	c.Check(failures, check.HasLen, 1)
	// input is unchanged
	c.Check(t.Rows[0][3], check.Equals, "2")
}

// The last date column of the output is the sum of the row's date
// columns.
func (s *cumulativeSuite) TestLastColumnIsRowSum(c *check.C) {
	t := readTSV(c, "id\tEW01\tEW02\tEW03\tEW04\n"+
		"a\t1.5\t2.25\t0\t7\n"+
		"b\t10\t20\t30\t40\n")
	out, failures := Cumulate(t, "id")
	c.Assert(failures, check.HasLen, 0)
	for r, row := range t.Rows {
		sum := 0.0
		for _, cell := range row[1:] {
			v, err := strconv.ParseFloat(cell, 64)
			c.Assert(err, check.IsNil)
			sum += v
		}
		c.Check(out.Rows[r][len(row)-1], check.Equals, FormatFloat.Format(sum))
	}
}

func (s *cumulativeSuite) TestIndexNotSummed(c *check.C) {
	t := readTSV(c, "id2\t2021-03-01\t2021-03-02\n7\t1\t2\n")
	out, failures := Cumulate(t, "id2")
	c.Check(failures, check.HasLen, 0)
	c.Check(tsv(c, out), check.Equals, "id2\t2021-03-01\t2021-03-02\n7\t1\t3\n")
}

func (s *cumulativeSuite) TestCommand(c *check.C) {
	tmpdir := c.MkDir()
	input := writeFile(c, tmpdir+"/in.tsv", "state\t2021-03-01\t2021-03-02\nSP\t1\t2\nRJ\t3\t4\n")
	var stdout, stderr bytes.Buffer
	exited := (&cumulative{}).RunCommand("cumulative", []string{"-input", input, "-index", "state", "-filter", "state:RJ"}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	c.Check(stdout.String(), check.Equals, "state\t2021-03-01\t2021-03-02\nRJ\t3\t7\n")

	stdout.Reset()
	stdin := bytes.NewBufferString("state\t2021-03-01\t2021-03-02\nSP\t1\t2\n")
	exited = (&cumulative{}).RunCommand("cumulative", []string{"-input", "-", "-index", "state"}, stdin, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	c.Check(stdout.String(), check.Equals, "state\t2021-03-01\t2021-03-02\nSP\t1\t3\n")

	exited = (&cumulative{}).RunCommand("cumulative", []string{"-input", input, "-index", "state", "extra"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
}
