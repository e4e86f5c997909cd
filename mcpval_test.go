// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"math"

	"gopkg.in/check.v1"
)

type mcpvalSuite struct{}

var _ = check.Suite(&mcpvalSuite{})

func (s *mcpvalSuite) TestMCPval(c *check.C) {
	// Both rows center to the same pool: |±1|, 0, |±1| each, so the
	// sorted pool is [0 0 1 1 1 1].
	null := &NullStats{N: 2, B: 3, Data: []float32{
		1, 2, 3,
		10, 20, 30,
	}}
	pvals, err := MCPval(null, []float32{4, 20})
	c.Assert(err, check.IsNil)
	c.Assert(pvals, check.HasLen, 2)
	// obs 4 centers to 2, above the whole pool.
	c.Check(pvals[0], check.Equals, 1.0/7)
	// obs 20 centers to 0, at or below everything.
	c.Check(pvals[1], check.Equals, 1.0)

	_, err = MCPval(null, []float32{1})
	c.Check(err, check.NotNil)
}

func (s *mcpvalSuite) TestMCPvalZeroSpread(c *check.C) {
	null := &NullStats{N: 2, B: 3, Data: []float32{
		5, 5, 5,
		1, 2, 3,
	}}
	pvals, err := MCPval(null, []float32{100, 4})
	c.Assert(err, check.IsNil)
	c.Check(math.IsNaN(pvals[0]), check.Equals, true)
	// The degenerate row drops out of both the pool and the
	// denominator, so row 1 ranks against its own 3 centered draws
	// exactly as if the degenerate row were absent.
	c.Check(pvals[1], check.Equals, 1.0/4)
	clean, err := MCPval(&NullStats{N: 1, B: 3, Data: []float32{1, 2, 3}}, []float32{4})
	c.Assert(err, check.IsNil)
	c.Check(pvals[1], check.Equals, clean[0])

	qvals := BenjaminiHochberg(pvals)
	c.Check(math.IsNaN(qvals[0]), check.Equals, true)
	c.Check(math.IsNaN(qvals[1]), check.Equals, false)
}

func (s *mcpvalSuite) TestInitialMCPval(c *check.C) {
	null := &NullStats{N: 2, B: 3, Data: []float32{
		0.5, -0.5, 0.25,
		0.1, 0.2, 0.3,
	}}
	pvals, err := InitialMCPval(null, []float32{1, 0})
	c.Assert(err, check.IsNil)
	c.Check(pvals[0], check.Equals, 1.0/4)
	c.Check(pvals[1], check.Equals, 1.0)
}

func (s *mcpvalSuite) TestBenjaminiHochberg(c *check.C) {
	qvals := BenjaminiHochberg([]float64{0.005, 0.01, 0.1, 0.5})
	c.Check(qvals, check.DeepEquals, []float64{0.02, 0.02, 0.1 * 4 / 3, 0.5})

	// q-values never exceed 1.
	qvals = BenjaminiHochberg([]float64{0.9, 0.95})
	c.Check(qvals, check.DeepEquals, []float64{1, 1})
}

func (s *mcpvalSuite) TestMonteCarloTest(c *check.C) {
	null := &NullStats{N: 2, B: 3, Data: []float32{
		1, 2, 3,
		10, 20, 30,
	}}
	res, err := MonteCarloTest(null, []float32{4, 20}, 0.5)
	c.Assert(err, check.IsNil)
	c.Check(res.Pval, check.DeepEquals, []float64{1.0 / 7, 1})
	c.Check(res.Qval, check.DeepEquals, []float64{2.0 / 7, 1})
	c.Check(res.Reject, check.DeepEquals, []bool{true, false})
}
