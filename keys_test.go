// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"errors"

	"gopkg.in/check.v1"
)

type keysSuite struct{}

var _ = check.Suite(&keysSuite{})

func (s *keysSuite) TestCompositeKeyCollisions(c *check.C) {
	for _, pair := range [][2][]string{
		{{"A", "1"}, {"A1", ""}},
		{{"A", ""}, {"", "A"}},
		{{`a\`, "b"}, {"a", `\b`}},
		{{"a" + keySep, "b"}, {"a", keySep + "b"}},
		{{"a", "b", ""}, {"a", "b"}},
	} {
		c.Check(compositeKey(pair[0]...), check.Not(check.Equals), compositeKey(pair[1]...), check.Commentf("%q vs %q", pair[0], pair[1]))
	}
	c.Check(compositeKey("SP", "F"), check.Equals, compositeKey("SP", "F"))
}

func (s *keysSuite) TestBuildKeys(c *check.C) {
	t := readTSV(c, "state\tcity\tn\nSP\tCampinas\t1\nSP\tSantos\t2\nSP\tCampinas\t3\n")
	keys, err := BuildKeys(t, []string{"state", "city"}, "city")
	c.Assert(err, check.IsNil)
	c.Assert(keys, check.HasLen, 3)
	c.Check(keys[0].Display, check.Equals, "Campinas")
	c.Check(keys[0].ID, check.Equals, keys[2].ID)
	c.Check(keys[0].ID, check.Not(check.Equals), keys[1].ID)

	_, err = BuildKeys(t, []string{"state"}, "city")
	var ferr *FormatError
	c.Check(errors.As(err, &ferr), check.Equals, true)

	_, err = BuildKeys(t, []string{"state", "country"}, "state")
	var merr *MissingColumnError
	c.Check(errors.As(err, &merr), check.Equals, true)
}
