// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FormatError reports input that cannot be interpreted at all: an
// unsupported file extension, a malformed filter token, a bad
// "name:value" list. It is always fatal.
type FormatError struct {
	What   string // e.g., "file", "filter token"
	Value  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s %q", e.What, e.Value)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.What, e.Value, e.Reason)
}

// MissingColumnError reports a reference to a column that is not in
// the loaded table.
type MissingColumnError struct {
	Column string
	Have   []string
}

func (e *MissingColumnError) Error() string {
	if len(e.Have) == 0 {
		return fmt.Sprintf("no column named %q", e.Column)
	}
	return fmt.Sprintf("no column named %q (have %s)", e.Column, strings.Join(e.Have, ", "))
}

// CoercionError reports a cell that should be numeric but is not.
// Callers collect these and skip the offending value instead of
// aborting.
type CoercionError struct {
	Row    int // 0-based data row in the table being processed
	Column string
	Value  string
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("row %d column %q: cannot convert %q to a number: %s", e.Row+1, e.Column, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// warnCoercionFailures logs a short summary of coercion failures: the
// first few in full, then a count.
func warnCoercionFailures(failures []*CoercionError) {
	const maxDetail = 5
	for i, f := range failures {
		if i == maxDetail {
			log.Warnf("... %d more values could not be converted to numbers", len(failures)-maxDetail)
			break
		}
		log.Warn(f.Error())
	}
}
