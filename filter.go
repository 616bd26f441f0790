package epitools

import (
	"flag"
	"strings"

	log "github.com/sirupsen/logrus"
)

// A filterClause selects rows whose Column value is one of Values.
type filterClause struct {
	Column string
	Values []string
}

// Filter is a parsed row-filter expression.
//
// An expression is a comma-separated list of "column:value" tokens.
// A token prefixed with "~" excludes matching rows; any other token
// includes them. Rows must satisfy every inclusion column (values
// for the same column are alternatives) and no exclusion token.
type Filter struct {
	Include []filterClause
	Exclude []filterClause
}

// ParseFilter parses a filter expression. An empty expression yields
// a Filter that keeps every row.
func ParseFilter(expr string) (Filter, error) {
	var f Filter
	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		exclude := strings.HasPrefix(token, "~")
		body := strings.TrimPrefix(token, "~")
		i := strings.Index(body, ":")
		if i < 0 {
			return Filter{}, &FormatError{What: "filter token", Value: token, Reason: "expected column:value"}
		}
		col, val := body[:i], body[i+1:]
		if val == "''" {
			val = ""
		}
		if exclude {
			f.Exclude = addClause(f.Exclude, col, val)
		} else {
			f.Include = addClause(f.Include, col, val)
		}
	}
	return f, nil
}

func addClause(clauses []filterClause, col, val string) []filterClause {
	for i := range clauses {
		if clauses[i].Column == col {
			clauses[i].Values = append(clauses[i].Values, val)
			return clauses
		}
	}
	return append(clauses, filterClause{Column: col, Values: []string{val}})
}

// Empty reports whether the filter keeps every row.
func (f Filter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

type compiledClause struct {
	col    int
	values map[string]bool
}

func compileClauses(t *Table, clauses []filterClause) ([]compiledClause, error) {
	out := make([]compiledClause, len(clauses))
	for i, cl := range clauses {
		col, err := t.ColumnIndex(cl.Column)
		if err != nil {
			return nil, err
		}
		out[i] = compiledClause{col: col, values: map[string]bool{}}
		for _, v := range cl.Values {
			out[i].values[v] = true
		}
	}
	return out, nil
}

// Apply returns the rows of t that pass the filter, in their
// original order. Rows are shared with t.
func (f Filter) Apply(t *Table) (*Table, error) {
	if f.Empty() {
		return t, nil
	}
	include, err := compileClauses(t, f.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileClauses(t, f.Exclude)
	if err != nil {
		return nil, err
	}
	return t.FilterRows(func(row []string) bool {
		for _, cl := range include {
			if !cl.values[row[cl.col]] {
				return false
			}
		}
		for _, cl := range exclude {
			if cl.values[row[cl.col]] {
				return false
			}
		}
		return true
	}), nil
}

// rowFilter is the -filter command line option shared by most
// subcommands.
type rowFilter struct {
	Expr string
}

func (f *rowFilter) Flags(flags *flag.FlagSet) {
	flags.StringVar(&f.Expr, "filter", "", "keep only rows matching `col:val,~col:val,...` (~ excludes)")
	flags.StringVar(&f.Expr, "filters", "", "alias for -filter")
}

func (f *rowFilter) Apply(t *Table) (*Table, error) {
	parsed, err := ParseFilter(f.Expr)
	if err != nil {
		return nil, err
	}
	for _, cl := range parsed.Include {
		log.Infof("including only rows with %s in %q", cl.Column, cl.Values)
	}
	for _, cl := range parsed.Exclude {
		log.Infof("excluding all rows with %s in %q", cl.Column, cl.Values)
	}
	out, err := parsed.Apply(t)
	if err != nil {
		return nil, err
	}
	if !parsed.Empty() {
		log.Infof("filter kept %d of %d rows", len(out.Rows), len(t.Rows))
	}
	return out, nil
}
