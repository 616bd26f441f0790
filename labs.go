// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	_ "embed"
	"fmt"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

//go:embed panels.yaml
var defaultPanels []byte

const (
	resultDetected    = "DETECTADO"
	resultNotDetected = "NÃO DETECTADO"
	resultNotTested   = "Not tested"
)

// labPanel describes one lab's export layout. Which fields matter
// depends on Strategy.
type labPanel struct {
	Strategy string `yaml:"strategy"`

	// grouped-panel, ct-per-target
	Group        string              `yaml:"group"`
	TargetColumn string              `yaml:"target_column"`
	ValueColumn  string              `yaml:"value_column"`
	LISCt        bool                `yaml:"lis_ct"`
	Cutoff       float64             `yaml:"cutoff"`
	DetectedFlag string              `yaml:"detected_flag"`
	Controls     []string            `yaml:"controls"`
	Control      string              `yaml:"control"`
	Aliases      map[string]string   `yaml:"aliases"`
	Pathogens    map[string][]string `yaml:"pathogens"`

	// ct-summary
	SummaryColumn  string            `yaml:"summary_column"`
	SummaryTargets map[string]string `yaml:"summary_targets"`

	// passthrough
	BlankColumns []string `yaml:"blank_columns"`
	BlankValues  []string `yaml:"blank_values"`

	// genotype
	GenotypeColumn string   `yaml:"genotype_column"`
	Ignore         []string `yaml:"ignore"`
	Dropout        []string `yaml:"dropout"`
	DropoutTarget  string   `yaml:"dropout_target"`
	MockCt         string   `yaml:"mock_ct"`
	FirstToken     []string `yaml:"first_token"`

	// Constant columns set after the strategy runs.
	Constants map[string]string `yaml:"constants"`
}

type reshapeProfile struct {
	// "enddate" writes the last day of the epi week, "label" writes
	// YYYY_EWnn.
	Epiweek      string               `yaml:"epiweek"`
	Detection    bool                 `yaml:"detection"`
	BinaryResult bool                 `yaml:"binary_result"`
	Pathogens    []string             `yaml:"pathogens"`
	Columns      []string             `yaml:"columns"`
	Labs         map[string]*labPanel `yaml:"labs"`
}

type panelConfig struct {
	Profiles map[string]*reshapeProfile `yaml:"profiles"`
}

// labNormalizer turns one lab's raw export into one row per test. It
// returns data-quality warnings rather than logging them.
type labNormalizer func(t *Table, p *labPanel) (*Table, []string, error)

var labStrategies = map[string]labNormalizer{
	"grouped-panel": groupedPanel,
	"ct-per-target": ctPerTarget,
	"ct-summary":    ctSummary,
	"passthrough":   passthrough,
	"wide-panel":    widePanel,
	"genotype":      genotype,
}

// loadPanels parses a panel config file, or the built-in one if fnm
// is empty.
func loadPanels(fnm string) (*panelConfig, error) {
	buf := defaultPanels
	if fnm != "" {
		f, err := zopen(fnm)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf, err = ioutil.ReadAll(f)
		if err != nil {
			return nil, err
		}
	}
	var cfg panelConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing panels: %w", err)
	}
	for pname, prof := range cfg.Profiles {
		if prof.Epiweek != "enddate" && prof.Epiweek != "label" {
			return nil, &FormatError{What: "profile " + pname + " epiweek", Value: prof.Epiweek, Reason: "expected enddate or label"}
		}
		for lab, p := range prof.Labs {
			if _, ok := labStrategies[p.Strategy]; !ok {
				return nil, &FormatError{What: "strategy for " + lab, Value: p.Strategy}
			}
		}
	}
	return &cfg, nil
}

// normalize applies the lab's strategy and constants. Labs without a
// panel are returned unchanged.
func (prof *reshapeProfile) normalize(lab string, t *Table) (*Table, []string, error) {
	p, ok := prof.Labs[lab]
	if !ok {
		return t, nil, nil
	}
	out, warnings, err := labStrategies[p.Strategy](t, p)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", lab, err)
	}
	for _, name := range sortedKeys(p.Constants) {
		out.InsertColumn(len(out.Columns), name, p.Constants[name])
	}
	return out, warnings, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fixCt repairs Ct values as exported by LIS systems, which drop the
// decimal point or shift it: "2531" is 2.53, "312.5" is 31.25.
func fixCt(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ".") {
		s = strings.Replace(s, ".", "", -1)
		if len(s) < 5 {
			s += strings.Repeat("0", 5-len(s))
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	v /= 1000
	if v > 50 {
		v /= 10
	}
	return round2(v), nil
}

// formatCt writes v with at least one decimal ("40.0", "31.25").
func formatCt(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func (p *labPanel) ct(s string) (float64, error) {
	if p.LISCt {
		return fixCt(s)
	}
	v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", -1), 64)
	return round2(v), err
}

func (p *labPanel) detected(ct float64) bool {
	if p.Cutoff > 0 {
		return ct < p.Cutoff
	}
	return ct > 0
}

func (p *labPanel) alias(target string) string {
	target = strings.TrimSpace(target)
	if a, ok := p.Aliases[target]; ok {
		return a
	}
	return target
}

// targetPathogens maps each assay target to its pathogen.
func (p *labPanel) targetPathogens() map[string]string {
	m := map[string]string{}
	for pathogen, targets := range p.Pathogens {
		for _, target := range targets {
			m[target] = pathogen
		}
	}
	return m
}

type rowGroup struct {
	key  string
	rows [][]string
}

// groupRows groups rows by the value of col, sorted by value.
func groupRows(rows [][]string, col int) []rowGroup {
	idx := map[string]int{}
	var groups []rowGroup
	for _, row := range rows {
		i, ok := idx[row[col]]
		if !ok {
			i = len(groups)
			idx[row[col]] = i
			groups = append(groups, rowGroup{key: row[col]})
		}
		groups[i].rows = append(groups[i].rows, row)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups
}

// recordSet collects output rows as column/value maps. Columns are
// laid out in order of first use.
type recordSet struct {
	columns []string
	seen    map[string]bool
	records []map[string]string
}

func newRecordSet() *recordSet {
	return &recordSet{seen: map[string]bool{}}
}

func (rs *recordSet) set(rec map[string]string, col, val string) {
	if !rs.seen[col] {
		rs.seen[col] = true
		rs.columns = append(rs.columns, col)
	}
	rec[col] = val
}

func (rs *recordSet) Table() *Table {
	t := NewTable(rs.columns...)
	for _, rec := range rs.records {
		row := make([]string, len(rs.columns))
		for i, c := range rs.columns {
			row[i] = rec[c]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (p *labPanel) panelColumns(t *Table) (gcol, tcol, vcol int, err error) {
	idx, err := t.ColumnIndexes([]string{p.Group, p.TargetColumn, p.ValueColumn})
	if err != nil {
		return 0, 0, 0, err
	}
	return idx[0], idx[1], idx[2], nil
}

// groupedPanel handles exports with one row per (request, target).
// Each request becomes one row carrying the first row's values, one
// column per target with its Ct (or flag) value, and a
// <pathogen>_test_result column: DETECTADO if any of the pathogen's
// targets is detected, NÃO DETECTADO if some target was reported, Not
// tested otherwise.
func groupedPanel(t *Table, p *labPanel) (*Table, []string, error) {
	gcol, tcol, vcol, err := p.panelColumns(t)
	if err != nil {
		return nil, nil, err
	}
	rows := t.FilterRows(func(row []string) bool {
		return !containsString(p.Controls, strings.TrimSpace(row[tcol]))
	}).Rows
	pathogenOf := p.targetPathogens()
	pathogens := sortedKeys(p.Pathogens)
	var warnings []string
	rs := newRecordSet()
	for _, g := range groupRows(rows, gcol) {
		rec := map[string]string{}
		for c, name := range t.Columns {
			rs.set(rec, name, g.rows[0][c])
		}
		for _, pathogen := range pathogens {
			rs.set(rec, pathogen+"_test_result", resultNotTested)
		}
		seen := map[string]bool{}
		for _, src := range g.rows {
			target := p.alias(src[tcol])
			pathogen, ok := pathogenOf[target]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("%s %s: unknown target %q", p.Group, g.key, target))
				continue
			}
			if seen[target] {
				continue
			}
			seen[target] = true
			value := strings.TrimSpace(src[vcol])
			rs.set(rec, target, "")
			detected := false
			switch {
			case value == "":
			case p.DetectedFlag != "":
				rs.set(rec, target, value)
				detected = value == p.DetectedFlag
			default:
				ct, err := p.ct(value)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("%s %s: invalid Ct %q for %s", p.Group, g.key, value, target))
					continue
				}
				rs.set(rec, target, formatCt(ct))
				detected = p.detected(ct)
			}
			result := pathogen + "_test_result"
			if detected {
				rec[result] = resultDetected
			} else if rec[result] != resultDetected {
				rec[result] = resultNotDetected
			}
		}
		rs.records = append(rs.records, rec)
	}
	return rs.Table(), warnings, nil
}

// ctPerTarget handles exports with one row per (request, target)
// where only Ct values are wanted: one row per request with the
// columns whose value is the same throughout the request, plus one
// column per known target holding its Ct.
func ctPerTarget(t *Table, p *labPanel) (*Table, []string, error) {
	gcol, tcol, vcol, err := p.panelColumns(t)
	if err != nil {
		return nil, nil, err
	}
	var targets []string
	for _, pathogen := range sortedKeys(p.Pathogens) {
		targets = append(targets, p.Pathogens[pathogen]...)
	}
	if p.Control != "" {
		targets = append(targets, p.Control)
	}
	var warnings []string
	rs := newRecordSet()
	for _, g := range groupRows(t.Rows, gcol) {
		rec := map[string]string{}
		for c, name := range t.Columns {
			if sameInGroup(g.rows, c) {
				rs.set(rec, name, g.rows[0][c])
			}
		}
		found := map[string]bool{}
		for _, src := range g.rows {
			target := p.alias(src[tcol])
			if !containsString(targets, target) {
				warnings = append(warnings, fmt.Sprintf("%s %s: unknown target %q", p.Group, g.key, target))
				continue
			}
			found[target] = true
			value := strings.TrimSpace(src[vcol])
			if value == "" {
				continue
			}
			ct, err := p.ct(value)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s %s: invalid Ct %q for %s", p.Group, g.key, value, target))
				continue
			}
			rs.set(rec, target, formatCt(ct))
		}
		if p.Control != "" && !found[p.Control] {
			warnings = append(warnings, fmt.Sprintf("%s %s has no internal control", p.Group, g.key))
		}
		rs.records = append(rs.records, rec)
	}
	return rs.Table(), warnings, nil
}

func sameInGroup(rows [][]string, col int) bool {
	for _, row := range rows[1:] {
		if row[col] != rows[0][col] {
			return false
		}
	}
	return true
}

// ctSummary splits a per-row summary such as "N: 25,3 / ORF: 27,1 /
// S: negativo" into one Ct column per target. Negative targets get
// Ct 0.
func ctSummary(t *Table, p *labPanel) (*Table, []string, error) {
	scol, err := t.ColumnIndex(p.SummaryColumn)
	if err != nil {
		return nil, nil, err
	}
	out := t.Clone()
	dst := map[string]int{}
	for _, gene := range sortedKeys(p.SummaryTargets) {
		dst[gene] = out.EnsureColumn(p.SummaryTargets[gene])
	}
	var warnings []string
	for r, row := range out.Rows {
		for _, entry := range strings.Split(row[scol], "/") {
			if strings.TrimSpace(entry) == "" {
				continue
			}
			i := strings.Index(entry, ":")
			if i < 0 {
				warnings = append(warnings, fmt.Sprintf("row %d: cannot parse %q", r+1, entry))
				continue
			}
			gene, ct := strings.TrimSpace(entry[:i]), strings.TrimSpace(entry[i+1:])
			if strings.Contains(strings.ToLower(ct), "negativo") {
				ct = "0"
			}
			col, ok := dst[gene]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(strings.Replace(ct, ",", ".", -1), 64)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("row %d: invalid Ct %q for %s", r+1, ct, gene))
				continue
			}
			row[col] = formatCt(round2(v))
		}
	}
	return out, warnings, nil
}

// passthrough keeps the export's layout, blanking placeholder values
// such as "SEM CIDADE" in the listed columns.
func passthrough(t *Table, p *labPanel) (*Table, []string, error) {
	out := t.Clone()
	var warnings []string
	for _, name := range p.BlankColumns {
		col, err := out.ColumnIndex(name)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		for _, row := range out.Rows {
			if containsString(p.BlankValues, strings.TrimSpace(row[col])) {
				row[col] = ""
			}
		}
	}
	return out, warnings, nil
}

// widePanel handles exports with one row per request and one column
// per target holding "Detectado" or "Não Detectado".
func widePanel(t *Table, p *labPanel) (*Table, []string, error) {
	out := t.Clone()
	for _, pathogen := range sortedKeys(p.Pathogens) {
		rcol := out.EnsureColumn(pathogen + "_test_result")
		var tcols []int
		for _, target := range p.Pathogens[pathogen] {
			if col, err := out.ColumnIndex(target); err == nil {
				tcols = append(tcols, col)
			}
		}
		for _, row := range out.Rows {
			result := resultNotTested
			for _, col := range tcols {
				switch strings.TrimSpace(row[col]) {
				case "Detectado":
					result = "Detectado"
				case "Não Detectado":
					if result == resultNotTested {
						result = "Não Detectado"
					}
				}
			}
			row[rcol] = result
		}
	}
	return out, nil, nil
}

// genotype handles genotyping reports: rows without a usable result
// are dropped, and the S-gene dropout call becomes a mock Ct (empty
// for dropout, MockCt otherwise).
func genotype(t *Table, p *labPanel) (*Table, []string, error) {
	gcol, err := t.ColumnIndex(p.GenotypeColumn)
	if err != nil {
		return nil, nil, err
	}
	out := t.FilterRows(func(row []string) bool {
		return !containsString(p.Ignore, strings.TrimSpace(row[gcol]))
	}).Clone()
	var warnings []string
	if dropped := len(t.Rows) - len(out.Rows); dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("dropped %d rows without a genotype", dropped))
	}
	for _, name := range p.FirstToken {
		col, err := out.ColumnIndex(name)
		if err != nil {
			continue
		}
		for _, row := range out.Rows {
			row[col] = strings.Split(strings.TrimSpace(row[col]), " ")[0]
		}
	}
	if p.DropoutTarget != "" {
		dcol := out.EnsureColumn(p.DropoutTarget)
		for _, row := range out.Rows {
			if containsString(p.Dropout, strings.TrimSpace(row[gcol])) {
				row[dcol] = ""
			} else {
				row[dcol] = p.MockCt
			}
		}
	}
	return out, warnings, nil
}
