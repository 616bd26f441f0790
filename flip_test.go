// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"bytes"

	"gopkg.in/check.v1"
)

type flipSuite struct{}

var _ = check.Suite(&flipSuite{})

const flipInput = "id\ta\tb\nr1\t1\t2\nr2\t3\t4\n"

func (s *flipSuite) TestSelectColumns(c *check.C) {
	t := readTSV(c, flipInput)
	for _, trial := range []struct {
		spec   string
		expect []string
	}{
		{"", []string{"id", "a", "b"}},
		{"~b", []string{"id", "a"}},
		{"b,id", []string{"b", "id"}},
		{"b,id,~id", []string{"b"}},
	} {
		out, err := SelectColumns(t, trial.spec)
		c.Assert(err, check.IsNil)
		c.Check(out.Columns, check.DeepEquals, trial.expect, check.Commentf("%q", trial.spec))
	}
	c.Check(t.Columns, check.HasLen, 3)
	_, err := SelectColumns(t, "~zzz")
	c.Check(err, check.FitsTypeOf, &MissingColumnError{})
}

func (s *flipSuite) TestTranspose(c *check.C) {
	t := readTSV(c, flipInput)
	out, err := Transpose(t, "id")
	c.Assert(err, check.IsNil)
	c.Check(tsv(c, out), check.Equals, "column\tr1\tr2\na\t1\t3\nb\t2\t4\n")

	out, err = Transpose(t, "")
	c.Assert(err, check.IsNil)
	c.Check(tsv(c, out), check.Equals, "column\t0\t1\nid\tr1\tr2\na\t1\t3\nb\t2\t4\n")

	// transposing twice with the header restores the values
	back, err := Transpose(out, "column")
	c.Assert(err, check.IsNil)
	c.Check(back.Columns, check.DeepEquals, []string{"column", "id", "a", "b"})
	c.Check(back.Rows, check.DeepEquals, [][]string{{"0", "r1", "1", "2"}, {"1", "r2", "3", "4"}})
}

func (s *flipSuite) TestCommand(c *check.C) {
	tmpdir := c.MkDir()
	input := writeFile(c, tmpdir+"/in.tsv", flipInput)
	var stdout, stderr bytes.Buffer
	exited := (&flipper{}).RunCommand("flip", []string{"-input", input, "-index", "id", "-columns", "id,b", "-filter", "id:r2"}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	c.Check(stdout.String(), check.Equals, "column\tr2\nb\t4\n")

	exited = (&flipper{}).RunCommand("flip", []string{}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
	exited = (&flipper{}).RunCommand("flip", []string{"-input", input, "-index", "nope"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 1)
}
