// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"math"

	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type nullcorrSuite struct{}

var _ = check.Suite(&nullcorrSuite{})

func (s *nullcorrSuite) matrices(c *check.C, rows, cols int, seed uint64) (accData, exprData []float64) {
	rng := rand.New(rand.NewSource(seed))
	accData = make([]float64, rows*cols)
	exprData = make([]float64, rows*cols)
	for i := range accData {
		accData[i] = rng.Float64()
		exprData[i] = rng.Float64()
	}
	return
}

func (s *nullcorrSuite) TestMatchedNull(c *check.C) {
	accData, exprData := s.matrices(c, 10, 4, 1)
	acc := mustCSC(c, 10, 4, accData)
	expr := mustCSC(c, 10, 4, exprData)
	draws := &ControlDraws{B: 2, Cols: []int{
		1, 2,
		0, 3,
		3, 0,
		2, 1,
	}}
	null, err := GenerateNull(acc, expr, draws, NullConfig{Strategy: NullMatched, Chunks: 1, Threads: 1})
	c.Assert(err, check.IsNil)
	c.Check(null.N, check.Equals, 4)
	c.Check(null.B, check.Equals, 2)

	// Each entry is the plain correlation of the control accessibility
	// column against the link's own expression column.
	for j := 0; j < 4; j++ {
		for d, col := range draws.Row(j) {
			accCol, err := cscSelectCols(acc, colMask(4, col))
			c.Assert(err, check.IsNil)
			exprCol, err := cscSelectCols(expr, colMask(4, j))
			c.Assert(err, check.IsNil)
			want, _, err := pearsonFull(accCol, exprCol)
			c.Assert(err, check.IsNil)
			checkNear(c, float64(null.Row(j)[d]), float64(want[0]), 1e-6)
		}
	}
}

func colMask(n, j int) []bool {
	mask := make([]bool, n)
	mask[j] = true
	return mask
}

func (s *nullcorrSuite) TestChunkingInvariance(c *check.C) {
	accData, exprData := s.matrices(c, 20, 9, 2)
	acc := mustCSC(c, 20, 9, accData)
	expr := mustCSC(c, 20, 9, exprData)
	draws := &ControlDraws{B: 3}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 9*3; i++ {
		draws.Cols = append(draws.Cols, rng.Intn(9))
	}

	one, err := GenerateNull(acc, expr, draws, NullConfig{Strategy: NullMatched, Chunks: 1, Threads: 1})
	c.Assert(err, check.IsNil)
	many, err := GenerateNull(acc, expr, draws, NullConfig{Strategy: NullMatched, Chunks: 4, Threads: 3})
	c.Assert(err, check.IsNil)
	c.Check(many.Data, check.DeepEquals, one.Data)
}

func (s *nullcorrSuite) TestPermutedNull(c *check.C) {
	accData, exprData := s.matrices(c, 15, 5, 4)
	acc := mustCSC(c, 15, 5, accData)
	expr := mustCSC(c, 15, 5, exprData)

	cfg := NullConfig{Strategy: NullPermuted, Draws: 6, Chunks: 2, Threads: 2, Seed: 7}
	null, err := GenerateNull(acc, expr, nil, cfg)
	c.Assert(err, check.IsNil)
	c.Check(null.N, check.Equals, 5)
	c.Check(null.B, check.Equals, 6)
	for _, v := range null.Data {
		c.Check(math.IsNaN(float64(v)), check.Equals, false)
		c.Check(math.Abs(float64(v)) <= 1.01, check.Equals, true)
	}

	again, err := GenerateNull(acc, expr, nil, cfg)
	c.Assert(err, check.IsNil)
	c.Check(again.Data, check.DeepEquals, null.Data)

	cfg.Seed = 8
	other, err := GenerateNull(acc, expr, nil, cfg)
	c.Assert(err, check.IsNil)
	c.Check(other.Data, check.Not(check.DeepEquals), null.Data)
}

func (s *nullcorrSuite) TestMatchedPoissonNull(c *check.C) {
	cells := 8
	accData := make([]float64, cells*2)
	exprData := make([]float64, cells*2)
	for i := 0; i < cells; i++ {
		x := float64(i) * 0.5
		accData[i*2] = x
		exprData[i*2] = math.Exp(0.1 + 0.5*x)
		// Column 1 is constant, so a fit against it is singular.
		accData[i*2+1] = 1
		exprData[i*2+1] = float64(i + 1)
	}
	acc := mustCSC(c, cells, 2, accData)
	expr := mustCSC(c, cells, 2, exprData)
	// Each link's only control is accessibility column 0, so the null
	// entry for link 0 is the same coefficient the observed fit finds.
	draws := &ControlDraws{B: 1, Cols: []int{0, 0}}

	null, err := GenerateNull(acc, expr, draws, NullConfig{
		Strategy: NullMatched,
		Stat:     StatPoisson,
		Chunks:   2,
		Threads:  2,
		OnFail:   PoissonDrop,
	})
	c.Assert(err, check.IsNil)
	c.Check(null.N, check.Equals, 2)
	c.Check(null.B, check.Equals, 1)
	checkNear(c, float64(null.Row(0)[0]), 0.5, 1e-4)

	// A singular control fit follows the failure policy.
	singular := &ControlDraws{B: 1, Cols: []int{1, 1}}
	null, err = GenerateNull(acc, expr, singular, NullConfig{
		Strategy: NullMatched,
		Stat:     StatPoisson,
		OnFail:   PoissonDrop,
	})
	c.Assert(err, check.IsNil)
	c.Check(math.IsNaN(float64(null.Row(0)[0])), check.Equals, true)

	null, err = GenerateNull(acc, expr, singular, NullConfig{
		Strategy: NullMatched,
		Stat:     StatPoisson,
		OnFail:   PoissonZeroFill,
	})
	c.Assert(err, check.IsNil)
	c.Check(null.Row(0)[0], check.Equals, float32(0))
}

func (s *nullcorrSuite) TestPermutedPoissonNull(c *check.C) {
	accData, exprData := s.matrices(c, 10, 3, 6)
	for i := range accData {
		accData[i] += 0.1
		exprData[i] += 0.1
	}
	acc := mustCSC(c, 10, 3, accData)
	expr := mustCSC(c, 10, 3, exprData)

	cfg := NullConfig{
		Strategy: NullPermuted,
		Stat:     StatPoisson,
		Draws:    2,
		Chunks:   2,
		Threads:  2,
		Seed:     3,
		OnFail:   PoissonZeroFill,
	}
	null, err := GenerateNull(acc, expr, nil, cfg)
	c.Assert(err, check.IsNil)
	c.Check(null.N, check.Equals, 3)
	c.Check(null.B, check.Equals, 2)
	for _, v := range null.Data {
		c.Check(math.IsNaN(float64(v)), check.Equals, false)
	}

	again, err := GenerateNull(acc, expr, nil, cfg)
	c.Assert(err, check.IsNil)
	c.Check(again.Data, check.DeepEquals, null.Data)
}

func (s *nullcorrSuite) TestNullValidation(c *check.C) {
	accData, exprData := s.matrices(c, 8, 3, 5)
	acc := mustCSC(c, 8, 3, accData)
	expr := mustCSC(c, 8, 3, exprData)

	_, err := GenerateNull(acc, expr, nil, NullConfig{Strategy: NullMatched})
	c.Check(err, check.ErrorMatches, `matched null requires a control index matrix`)

	_, err = GenerateNull(acc, expr, &ControlDraws{B: 1, Cols: []int{0, 1}}, NullConfig{Strategy: NullMatched})
	c.Check(err, check.ErrorMatches, `control draws cover 2 links, expression has 3`)

	_, err = GenerateNull(acc, expr, &ControlDraws{B: 1, Cols: []int{0, 1, 9}}, NullConfig{Strategy: NullMatched})
	c.Check(err, check.ErrorMatches, `control column 9 outside accessibility matrix .*`)

	_, err = GenerateNull(acc, expr, nil, NullConfig{Strategy: NullPermuted})
	c.Check(err, check.ErrorMatches, `permutation null requires a positive draw count.*`)
}

func (s *nullcorrSuite) TestNullStatsSub(c *check.C) {
	a := &NullStats{N: 1, B: 3, Data: []float32{3, 2, 1}}
	b := &NullStats{N: 1, B: 3, Data: []float32{1, 1, 1}}
	diff, err := a.Sub(b)
	c.Assert(err, check.IsNil)
	c.Check(diff.Data, check.DeepEquals, []float32{2, 1, 0})

	_, err = a.Sub(&NullStats{N: 1, B: 2, Data: []float32{1, 1}})
	c.Check(err, check.NotNil)
}

func (s *nullcorrSuite) TestParseNullStrategy(c *check.C) {
	st, err := ParseNullStrategy("matched")
	c.Check(err, check.IsNil)
	c.Check(st, check.Equals, NullMatched)
	c.Check(st.String(), check.Equals, "matched")

	st, err = ParseNullStrategy("permute")
	c.Check(err, check.IsNil)
	c.Check(st, check.Equals, NullPermuted)

	_, err = ParseNullStrategy("bogus")
	c.Check(err, check.NotNil)
}

func (s *nullcorrSuite) TestParseNullStat(c *check.C) {
	st, err := ParseNullStat("pearson")
	c.Check(err, check.IsNil)
	c.Check(st, check.Equals, StatPearson)
	c.Check(st.String(), check.Equals, "pearson")

	st, err = ParseNullStat("poisson")
	c.Check(err, check.IsNil)
	c.Check(st, check.Equals, StatPoisson)
	c.Check(st.String(), check.Equals, "poisson")

	_, err = ParseNullStat("bogus")
	c.Check(err, check.NotNil)
}
