// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epitools

import (
	"gopkg.in/check.v1"
)

type labsSuite struct {
	cfg *panelConfig
}

var _ = check.Suite(&labsSuite{})

func (s *labsSuite) SetUpSuite(c *check.C) {
	var err error
	s.cfg, err = loadPanels("")
	c.Assert(err, check.IsNil)
}

// cell returns the named column's value in row r.
func cell(c *check.C, t *Table, r int, name string) string {
	col, err := t.ColumnIndex(name)
	c.Assert(err, check.IsNil)
	return t.Rows[r][col]
}

func (s *labsSuite) panel(c *check.C, profile, lab string) *labPanel {
	prof, ok := s.cfg.Profiles[profile]
	c.Assert(ok, check.Equals, true)
	p, ok := prof.Labs[lab]
	c.Assert(ok, check.Equals, true, check.Commentf("%s/%s", profile, lab))
	return p
}

func (s *labsSuite) TestFixCt(c *check.C) {
	for _, trial := range []struct {
		in     string
		expect float64
	}{
		{"25.3", 25.3},
		{"2531", 2.53},
		{"312.5", 31.25},
		{"61.2", 6.12},
		{" 40.0 ", 40},
	} {
		v, err := fixCt(trial.in)
		c.Check(err, check.IsNil)
		c.Check(v, check.Equals, trial.expect, check.Commentf("%q", trial.in))
	}
	_, err := fixCt("n/a")
	c.Check(err, check.NotNil)

	c.Check(formatCt(40), check.Equals, "40.0")
	c.Check(formatCt(31.25), check.Equals, "31.25")
	c.Check(formatCt(0), check.Equals, "0.0")
}

func (s *labsSuite) TestLoadPanels(c *check.C) {
	c.Check(sortedKeys(s.cfg.Profiles), check.DeepEquals, []string{"respvir", "sc2"})
	c.Check(s.cfg.Profiles["respvir"].Epiweek, check.Equals, "enddate")
	c.Check(s.cfg.Profiles["sc2"].Epiweek, check.Equals, "label")
	c.Check(s.panel(c, "respvir", "DB Molecular").Cutoff, check.Equals, 40.0)
	c.Check(s.panel(c, "sc2", "DASA").Strategy, check.Equals, "passthrough")
	c.Check(s.panel(c, "respvir", "DASA").Strategy, check.Equals, "grouped-panel")

	tmpdir := c.MkDir()
	for _, trial := range []struct {
		yaml   string
		errOK  check.Checker
		errArg interface{}
	}{
		{"profiles: {x: {epiweek: weekly}}\n", check.FitsTypeOf, &FormatError{}},
		{"profiles: {x: {epiweek: label, labs: {L: {strategy: bogus}}}}\n", check.FitsTypeOf, &FormatError{}},
		{"profiles: [\n", check.NotNil, nil},
	} {
		fnm := writeFile(c, tmpdir+"/panels.yaml", trial.yaml)
		_, err := loadPanels(fnm)
		if trial.errArg != nil {
			c.Check(err, trial.errOK, trial.errArg, check.Commentf("%s", trial.yaml))
		} else {
			c.Check(err, trial.errOK, check.Commentf("%s", trial.yaml))
		}
	}
	fnm := writeFile(c, tmpdir+"/panels.yaml", "profiles: {x: {epiweek: label, columns: [a], labs: {L: {strategy: passthrough}}}}\n")
	cfg, err := loadPanels(fnm)
	c.Assert(err, check.IsNil)
	c.Check(cfg.Profiles["x"].Columns, check.DeepEquals, []string{"a"})
}

func (s *labsSuite) TestGroupedPanelCt(c *check.C) {
	t := readTSV(c, "NumeroPedido\tParametro\tResultadoLIS\tDataColeta\n"+
		"P2\tFLUARV\t\t2022-01-02\n"+
		"P2\tZZFLUA\t30.0\t2022-01-02\n"+
		"P1\tNGENERV\t2531\t2022-01-01\n"+
		"P1\tSGRV\t\t2022-01-01\n"+
		"P1\tFLUARV\t41.0\t2022-01-01\n"+
		"P1\tXYZ\t1\t2022-01-01\n")
	out, warnings, err := groupedPanel(t, s.panel(c, "respvir", "DB Molecular"))
	c.Assert(err, check.IsNil)
	c.Check(warnings, check.DeepEquals, []string{`NumeroPedido P1: unknown target "XYZ"`})
	c.Assert(out.Rows, check.HasLen, 2)
	c.Check(out.Columns[:4], check.DeepEquals, []string{"NumeroPedido", "Parametro", "ResultadoLIS", "DataColeta"})

	c.Check(cell(c, out, 0, "NumeroPedido"), check.Equals, "P1")
	c.Check(cell(c, out, 0, "NGRV"), check.Equals, "2.53")
	c.Check(cell(c, out, 0, "SGRV"), check.Equals, "")
	c.Check(cell(c, out, 0, "FLUARV"), check.Equals, "41.0")
	c.Check(cell(c, out, 0, "SC2_test_result"), check.Equals, resultDetected)
	c.Check(cell(c, out, 0, "FLUA_test_result"), check.Equals, resultNotDetected)
	c.Check(cell(c, out, 0, "FLUB_test_result"), check.Equals, resultNotTested)
	c.Check(cell(c, out, 0, "VSR_test_result"), check.Equals, resultNotTested)

	c.Check(cell(c, out, 1, "NumeroPedido"), check.Equals, "P2")
	c.Check(cell(c, out, 1, "FLUA_test_result"), check.Equals, resultNotDetected)
	c.Check(cell(c, out, 1, "SC2_test_result"), check.Equals, resultNotTested)
	c.Check(cell(c, out, 1, "NGRV"), check.Equals, "")
	c.Check(out.HasColumn("ZZFLUA"), check.Equals, false)

	_, _, err = groupedPanel(readTSV(c, "a\tb\n1\t2\n"), s.panel(c, "respvir", "DB Molecular"))
	c.Check(err, check.FitsTypeOf, &MissingColumnError{})
}

func (s *labsSuite) TestGroupedPanelFlag(c *check.C) {
	t := readTSV(c, "codigorequisicao\tcodigo\tpositivo\n"+
		"R1\tCOVID\t1\n"+
		"R1\tFLUA\t0\n"+
		"R1\tCOVID\t0\n")
	out, warnings, err := groupedPanel(t, s.panel(c, "respvir", "DASA"))
	c.Assert(err, check.IsNil)
	c.Check(warnings, check.HasLen, 0)
	c.Assert(out.Rows, check.HasLen, 1)
	c.Check(cell(c, out, 0, "COVID"), check.Equals, "1")
	c.Check(cell(c, out, 0, "SC2_test_result"), check.Equals, resultDetected)
	c.Check(cell(c, out, 0, "FLUA_test_result"), check.Equals, resultNotDetected)
	c.Check(cell(c, out, 0, "VSR_test_result"), check.Equals, resultNotTested)
}

func (s *labsSuite) TestCtPerTarget(c *check.C) {
	t := readTSV(c, "NumeroPedido\tExame\tResultadoLIS\tPaciente\n"+
		"A1\tNGENE\t2531\tX\n"+
		"A1\tSGENE\t\tX\n"+
		"A1\tMS2CI\t30.1\tX\n"+
		"A2\tORF1AB\t25.3\tY\n"+
		"A2\tFOO\t1\tY\n")
	out, warnings, err := ctPerTarget(t, s.panel(c, "sc2", "Diagnósticos do Brasil"))
	c.Assert(err, check.IsNil)
	c.Check(warnings, check.DeepEquals, []string{
		`NumeroPedido A2: unknown target "FOO"`,
		`NumeroPedido A2 has no internal control`,
	})
	c.Check(tsv(c, out), check.Equals, "NumeroPedido\tPaciente\tNGENE\tMS2\tORF1AB\n"+
		"A1\tX\t2.53\t30.1\t\n"+
		"A2\tY\t\t\t25.3\n")
}

func (s *labsSuite) TestCtSummary(c *check.C) {
	t := readTSV(c, "id\tResultado do Teste COVID\n"+
		"1\tN: 25,3 / ORF: 27,1 / S: negativo\n"+
		"2\tN: xx\n"+
		"3\tgarbage\n"+
		"4\t\n")
	out, warnings, err := ctSummary(t, s.panel(c, "sc2", "Diagnósticos do Brasil_2"))
	c.Assert(err, check.IsNil)
	c.Check(warnings, check.DeepEquals, []string{
		`row 2: invalid Ct "xx" for N`,
		`row 3: cannot parse "garbage"`,
	})
	c.Check(out.Columns, check.DeepEquals, []string{"id", "Resultado do Teste COVID", "Ct_N", "Ct_ORF1ab", "Ct_S"})
	c.Check(out.Rows[0][2:], check.DeepEquals, []string{"25.3", "27.1", "0.0"})
	c.Check(out.Rows[3][2:], check.DeepEquals, []string{"", "", ""})
	c.Check(t.Columns, check.HasLen, 2)
}

func (s *labsSuite) TestPassthrough(c *check.C) {
	t := readTSV(c, "cidade_norm\tx\nSEM CIDADE\tSEM CIDADE\nRecife\tMUDOU\n")
	out, warnings, err := passthrough(t, s.panel(c, "sc2", "DASA"))
	c.Assert(err, check.IsNil)
	c.Check(warnings, check.HasLen, 1)
	c.Check(tsv(c, out), check.Equals, "cidade_norm\tx\n\tSEM CIDADE\nRecife\tMUDOU\n")
}

func (s *labsSuite) TestWidePanel(c *check.C) {
	t := readTSV(c, "id\tVIRUS_Influenza A\tVIRUS_Influenza H3\tVIRUS_Influenza B\n"+
		"1\tNão Detectado\tDetectado\tNão Detectado\n"+
		"2\tNão Detectado\t\t\n")
	out, _, err := widePanel(t, s.panel(c, "respvir", "HLAGyn"))
	c.Assert(err, check.IsNil)
	c.Check(cell(c, out, 0, "FLUA_test_result"), check.Equals, "Detectado")
	c.Check(cell(c, out, 0, "FLUB_test_result"), check.Equals, "Não Detectado")
	c.Check(cell(c, out, 0, "SC2_test_result"), check.Equals, resultNotTested)
	c.Check(cell(c, out, 1, "FLUA_test_result"), check.Equals, "Não Detectado")
	c.Check(cell(c, out, 1, "FLUB_test_result"), check.Equals, resultNotTested)
}

func (s *labsSuite) TestGenotype(c *check.C) {
	t := readTSV(c, "GENOTIPAGEM\tIDADE\n"+
		"Omicron BA.1\t34 anos\n"+
		"Possível Omicron\t5 meses\n"+
		"Negativo\t20 anos\n"+
		"sem amostra\t\n")
	prof := s.cfg.Profiles["sc2"]
	out, warnings, err := prof.normalize("IMT-CDL", t)
	c.Assert(err, check.IsNil)
	c.Check(warnings, check.DeepEquals, []string{"dropped 2 rows without a genotype"})
	c.Check(tsv(c, out), check.Equals, "GENOTIPAGEM\tIDADE\tCt_S\tbirthdate\tlocation\tstate\ttest_result\n"+
		"Omicron BA.1\t34\t999\t\tManaus\tAM\tPositive\n"+
		"Possível Omicron\t5\t\t\tManaus\tAM\tPositive\n")
	c.Check(t.Rows[0][1], check.Equals, "34 anos")

	same, warnings, err := prof.normalize("Some Other Lab", t)
	c.Check(err, check.IsNil)
	c.Check(warnings, check.HasLen, 0)
	c.Check(same, check.Equals, t)

	_, _, err = prof.normalize("IMT-CDL", readTSV(c, "a\n1\n"))
	c.Check(err, check.ErrorMatches, `IMT-CDL: .*`)
}
