// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"

	"gopkg.in/check.v1"
)

type filterSuite struct{}

var _ = check.Suite(&filterSuite{})

const filterInput = "state\tsex\tage\n" +
	"SP\tF\t30\n" +
	"SP\tM\t41\n" +
	"RJ\tF\t\n" +
	"MG\tM\t12\n" +
	"RJ\tM\t7\n"

func (s *filterSuite) TestParse(c *check.C) {
	f, err := ParseFilter("state:SP, state:RJ,~sex:M,age:''")
	c.Assert(err, check.IsNil)
	c.Check(f.Include, check.DeepEquals, []filterClause{
		{Column: "state", Values: []string{"SP", "RJ"}},
		{Column: "age", Values: []string{""}},
	})
	c.Check(f.Exclude, check.DeepEquals, []filterClause{
		{Column: "sex", Values: []string{"M"}},
	})

	f, err = ParseFilter("")
	c.Check(err, check.IsNil)
	c.Check(f.Empty(), check.Equals, true)

	f, err = ParseFilter("url:http://example")
	c.Check(err, check.IsNil)
	c.Check(f.Include[0].Values, check.DeepEquals, []string{"http://example"})

	_, err = ParseFilter("state:SP,bogus")
	var ferr *FormatError
	c.Check(errors.As(err, &ferr), check.Equals, true)
}

func (s *filterSuite) TestApply(c *check.C) {
	t := readTSV(c, filterInput)
	for _, trial := range []struct {
		expr   string
		expect string
	}{
		{"", filterInput},
		{"state:SP", "state\tsex\tage\nSP\tF\t30\nSP\tM\t41\n"},
		{"state:SP,state:RJ,sex:F", "state\tsex\tage\nSP\tF\t30\nRJ\tF\t\n"},
		{"~state:SP,~state:RJ", "state\tsex\tage\nMG\tM\t12\n"},
		{"state:RJ,~age:''", "state\tsex\tage\nRJ\tM\t7\n"},
		{"state:XX", "state\tsex\tage\n"},
	} {
		f, err := ParseFilter(trial.expr)
		c.Assert(err, check.IsNil)
		out, err := f.Apply(t)
		c.Assert(err, check.IsNil)
		c.Check(tsv(c, out), check.Equals, trial.expect, check.Commentf("expr %q", trial.expr))
	}
}

// Every kept row satisfies every inclusion column and no exclusion.
func (s *filterSuite) TestSubset(c *check.C) {
	t := readTSV(c, filterInput)
	f, err := ParseFilter("sex:M,state:SP,state:MG,~age:12")
	c.Assert(err, check.IsNil)
	out, err := f.Apply(t)
	c.Assert(err, check.IsNil)
	c.Check(out.Rows, check.HasLen, 1)
	for _, row := range out.Rows {
		c.Check(row[1], check.Equals, "M")
		c.Check(row[0] == "SP" || row[0] == "MG", check.Equals, true)
		c.Check(row[2], check.Not(check.Equals), "12")
	}
}

func (s *filterSuite) TestMissingColumn(c *check.C) {
	t := readTSV(c, filterInput)
	f, err := ParseFilter("city:Manaus")
	c.Assert(err, check.IsNil)
	_, err = f.Apply(t)
	var merr *MissingColumnError
	c.Check(errors.As(err, &merr), check.Equals, true)
	c.Check(merr.Column, check.Equals, "city")
}
