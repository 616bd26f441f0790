// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"bytes"

	"gopkg.in/check.v1"
)

type stackSuite struct{}

var _ = check.Suite(&stackSuite{})

const (
	stackX = "region\tpop\t2021-01-01\t2021-01-02\t2021-01-03\n" +
		"A\t10\t1\t0\t2.5\n" +
		"B\t20\t2X\t3\t\n" +
		"C\t30\t4\t4\t4\n"
	stackY = "region\t2021-01-01\t2021-01-02\n" +
		"A\t5\t6\n" +
		"B\t7\t8\n"
)

func (s *stackSuite) TestStackPair(c *check.C) {
	x, y := readTSV(c, stackX), readTSV(c, stackY)
	out, failures, err := Stack(x, y, StackOptions{Index: "region", XVar: "cases", YVar: "tests", ExtraColumns: []string{"pop"}})
	c.Assert(err, check.IsNil)
	c.Check(failures, check.HasLen, 0)
	// 2021-01-03 is not in y; C is not in y; zero and masked cells
	// are skipped.
	c.Check(tsv(c, out), check.Equals, "id\tgroup_id\tregion\tpop\tcases\ttests\n"+
		"A.2021-01-01\t2021-01-01\tA\t10\t1\t5\n"+
		"B.2021-01-02\t2021-01-02\tB\t20\t3\t8\n")
}

func (s *stackSuite) TestStackSingle(c *check.C) {
	x := readTSV(c, stackX)
	out, _, err := Stack(x, nil, StackOptions{Index: "region", XVar: "cases"})
	c.Assert(err, check.IsNil)
	c.Check(tsv(c, out), check.Equals, "id\tgroup_id\tregion\tcases\n"+
		"A.2021-01-01\t2021-01-01\tA\t1\n"+
		"A.2021-01-03\t2021-01-03\tA\t2.5\n"+
		"B.2021-01-02\t2021-01-02\tB\t3\n"+
		"C.2021-01-01\t2021-01-01\tC\t4\n"+
		"C.2021-01-02\t2021-01-02\tC\t4\n"+
		"C.2021-01-03\t2021-01-03\tC\t4\n")

	bad := readTSV(c, "region\t2021-01-01\nA\tmany\n")
	out, failures, err := Stack(bad, nil, StackOptions{Index: "region", XVar: "cases"})
	c.Assert(err, check.IsNil)
	c.Check(out.Rows, check.HasLen, 0)
	c.Check(failures, check.HasLen, 1)

	_, _, err = Stack(x, nil, StackOptions{Index: "state", XVar: "cases"})
	c.Check(err, check.FitsTypeOf, &MissingColumnError{})
}

func (s *stackSuite) TestCommand(c *check.C) {
	tmpdir := c.MkDir()
	input1 := writeFile(c, tmpdir+"/x.tsv", stackX)
	input2 := writeFile(c, tmpdir+"/y.tsv", stackY)
	var stdout, stderr bytes.Buffer
	exited := (&stacker{}).RunCommand("stack", []string{
		"-input1", input1, "-input2", input2, "-index", "region", "-xvar", "cases", "-yvar", "tests",
	}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	c.Check(readTSV(c, stdout.String()).Rows, check.HasLen, 2)

	for _, args := range [][]string{
		{"-input1", input1, "-index", "region"},
		{"-input1", input1, "-input2", input2, "-index", "region", "-xvar", "cases"},
	} {
		exited = (&stacker{}).RunCommand("stack", args, nil, &stdout, &stderr)
		c.Check(exited, check.Equals, 1)
	}
	exited = (&stacker{}).RunCommand("stack", []string{"-bogus"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
	exited = (&stacker{}).RunCommand("stack", []string{"-input1", input1, "extra"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
}
