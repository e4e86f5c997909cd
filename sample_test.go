// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type sampleSuite struct{}

var _ = check.Suite(&sampleSuite{})

func (s *sampleSuite) TestQuantileBins(c *check.C) {
	bins := quantileBins([]float64{10, 40, 20, 30}, 2)
	c.Check(bins, check.DeepEquals, []int{0, 1, 0, 1})

	// Duplicates still give balanced bins, ties broken by position.
	bins = quantileBins([]float64{7, 7, 7, 7}, 2)
	c.Check(bins, check.DeepEquals, []int{0, 0, 1, 1})
}

// binDataset builds a dataset with one constant-value accessibility
// column per link, so peak bins are a function of the column constants.
// Peaks 0 and 1 both carry two links.
func binDataset(c *check.C) *Dataset {
	links := []Link{
		{PeakID: "peak0", GeneID: "geneA", Peak: 0},
		{PeakID: "peak0", GeneID: "geneB", Peak: 0},
		{PeakID: "peak1", GeneID: "geneC", Peak: 1},
		{PeakID: "peak1", GeneID: "geneD", Peak: 1},
		{PeakID: "peak2", GeneID: "geneE", Peak: 2},
		{PeakID: "peak3", GeneID: "geneF", Peak: 3},
		{PeakID: "peak4", GeneID: "geneG", Peak: 4},
		{PeakID: "peak5", GeneID: "geneH", Peak: 5},
		{PeakID: "peak6", GeneID: "geneI", Peak: 6},
		{PeakID: "peak7", GeneID: "geneJ", Peak: 7},
	}
	peaks := []PeakInfo{
		{ID: "peak0", GC: 0.30, Col: 0},
		{ID: "peak1", GC: 0.60, Col: 2},
		{ID: "peak2", GC: 0.30, Col: 4},
		{ID: "peak3", GC: 0.60, Col: 5},
		{ID: "peak4", GC: 0.30, Col: 6},
		{ID: "peak5", GC: 0.60, Col: 7},
		{ID: "peak6", GC: 0.30, Col: 8},
		{ID: "peak7", GC: 0.60, Col: 9},
	}
	cells, nlinks := 6, len(links)
	data := make([]float64, cells*nlinks)
	for i := 0; i < cells; i++ {
		for j := 0; j < nlinks; j++ {
			// Mean accessibility grows with the peak index.
			data[i*nlinks+j] = float64(links[j].Peak + 1)
		}
	}
	acc := mustCSC(c, cells, nlinks, data)
	return &Dataset{Acc: acc, Expr: acc, Links: links, Peaks: peaks}
}

func (s *sampleSuite) TestPeakBins(c *check.C) {
	ds := binDataset(c)
	bins, err := PeakBins(ds, BinConfig{MFABins: 2, GCBins: 0})
	c.Assert(err, check.IsNil)
	c.Check(bins, check.DeepEquals, []int{0, 0, 0, 0, 1, 1, 1, 1})

	bins, err = PeakBins(ds, BinConfig{MFABins: 2, GCBins: 2})
	c.Assert(err, check.IsNil)
	c.Check(bins, check.DeepEquals, []int{0, 1, 0, 1, 10, 11, 10, 11})

	// More than 10 GC bins would collide in the packed joint id.
	_, err = PeakBins(ds, BinConfig{MFABins: 2, GCBins: 11})
	c.Check(err, check.ErrorMatches, `at most 10 GC bins are supported, have 11`)
}

func (s *sampleSuite) TestSampleControls(c *check.C) {
	ds := binDataset(c)
	cfg := BinConfig{MFABins: 2, GCBins: 0}
	draws, err := SampleControls(ds, cfg, 3, rand.NewSource(1))
	c.Assert(err, check.IsNil)
	c.Check(draws.B, check.Equals, 3)
	c.Check(draws.NumLinks(), check.Equals, ds.NumLinks())

	bins, err := PeakBins(ds, cfg)
	c.Assert(err, check.IsNil)
	colPeak := map[int]int{}
	for k, p := range ds.Peaks {
		colPeak[p.Col] = k
	}
	for i, l := range ds.Links {
		row := draws.Row(i)
		seen := map[int]bool{}
		for _, col := range row {
			peer, ok := colPeak[col]
			c.Assert(ok, check.Equals, true)
			c.Check(peer, check.Not(check.Equals), l.Peak)
			c.Check(bins[peer], check.Equals, bins[l.Peak])
			c.Check(seen[peer], check.Equals, false)
			seen[peer] = true
		}
	}

	// Links sharing a peak share one draw.
	c.Check(draws.Row(0), check.DeepEquals, draws.Row(1))
	c.Check(draws.Row(2), check.DeepEquals, draws.Row(3))

	again, err := SampleControls(ds, cfg, 3, rand.NewSource(1))
	c.Assert(err, check.IsNil)
	c.Check(again.Cols, check.DeepEquals, draws.Cols)

	other, err := SampleControls(ds, cfg, 3, rand.NewSource(2))
	c.Assert(err, check.IsNil)
	c.Check(other.Cols, check.Not(check.DeepEquals), draws.Cols)
}

func (s *sampleSuite) TestInsufficientPool(c *check.C) {
	ds := binDataset(c)
	// Bins hold 4 peaks each, so at most 3 controls are available.
	_, err := SampleControls(ds, BinConfig{MFABins: 2, GCBins: 0}, 4, rand.NewSource(1))
	c.Check(err, check.ErrorMatches, `insufficient control pool: .*`)
}

func (s *sampleSuite) TestControlDrawsSelect(c *check.C) {
	draws := &ControlDraws{B: 2, Cols: []int{0, 1, 2, 3, 4, 5}}
	sel, err := draws.Select([]bool{true, false, true})
	c.Assert(err, check.IsNil)
	c.Check(sel.Cols, check.DeepEquals, []int{0, 1, 4, 5})
	c.Check(sel.NumLinks(), check.Equals, 2)

	_, err = draws.Select([]bool{true})
	c.Check(err, check.NotNil)
}
