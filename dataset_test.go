// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"bytes"
	"strings"

	"gopkg.in/check.v1"
)

type datasetSuite struct{}

var _ = check.Suite(&datasetSuite{})

func (s *datasetSuite) TestRoundTrip(c *check.C) {
	ds := &Dataset{
		Acc: mustCSC(c, 3, 2, []float64{
			1, 0,
			0, 2,
			3, 0,
		}),
		Expr: mustCSC(c, 3, 2, []float64{
			0, 4,
			5, 0,
			0, 6,
		}),
		AccRaw: mustCSC(c, 3, 2, []float64{
			2, 0,
			0, 4,
			6, 0,
		}),
		ExprRaw: mustCSC(c, 3, 2, []float64{
			0, 8,
			10, 0,
			0, 12,
		}),
		Links: []Link{
			{PeakID: "peak0", GeneID: "geneA", Peak: 0},
			{PeakID: "peak1", GeneID: "geneB", Peak: 1},
		},
		Peaks: []PeakInfo{
			{ID: "peak0", GC: 0.41, Col: 0},
			{ID: "peak1", GC: 0.52, Col: 1},
		},
		CellTypes: []string{"T", "B", "T"},
	}
	var buf bytes.Buffer
	c.Assert(WriteDataset(&buf, ds), check.IsNil)

	got, err := ReadDataset(&buf)
	c.Assert(err, check.IsNil)
	c.Check(cscToDense(got.Acc), check.DeepEquals, cscToDense(ds.Acc))
	c.Check(cscToDense(got.Expr), check.DeepEquals, cscToDense(ds.Expr))
	c.Check(cscToDense(got.AccRaw), check.DeepEquals, cscToDense(ds.AccRaw))
	c.Check(cscToDense(got.ExprRaw), check.DeepEquals, cscToDense(ds.ExprRaw))
	c.Check(got.Links, check.DeepEquals, ds.Links)
	c.Check(got.Peaks, check.DeepEquals, ds.Peaks)
	c.Check(got.CellTypes, check.DeepEquals, ds.CellTypes)
}

func (s *datasetSuite) TestRoundTripNoRawLayers(c *check.C) {
	ds := &Dataset{
		Acc:   mustCSC(c, 2, 1, []float64{1, 2}),
		Expr:  mustCSC(c, 2, 1, []float64{3, 4}),
		Links: []Link{{PeakID: "peak0", GeneID: "geneA", Peak: 0}},
		Peaks: []PeakInfo{{ID: "peak0", GC: 0.5, Col: 0}},
	}
	var buf bytes.Buffer
	c.Assert(WriteDataset(&buf, ds), check.IsNil)
	got, err := ReadDataset(&buf)
	c.Assert(err, check.IsNil)
	c.Check(got.AccRaw, check.IsNil)
	c.Check(got.ExprRaw, check.IsNil)
	acc, expr := got.rawOr()
	c.Check(cscToDense(acc), check.DeepEquals, cscToDense(ds.Acc))
	c.Check(cscToDense(expr), check.DeepEquals, cscToDense(ds.Expr))
}

func (s *datasetSuite) TestReadGarbage(c *check.C) {
	_, err := ReadDataset(strings.NewReader("not a dataset"))
	c.Check(err, check.NotNil)
}

func (s *datasetSuite) TestValidate(c *check.C) {
	base := func() *Dataset {
		return &Dataset{
			Acc:   mustCSC(c, 3, 2, make([]float64, 6)),
			Expr:  mustCSC(c, 3, 2, make([]float64, 6)),
			Links: []Link{{Peak: 0}, {Peak: 1}},
			Peaks: []PeakInfo{{Col: 0}, {Col: 1}},
		}
	}
	c.Check(base().Validate(), check.IsNil)

	ds := base()
	ds.Expr = mustCSC(c, 2, 2, make([]float64, 4))
	c.Check(ds.Validate(), check.ErrorMatches, `accessibility has 3 cells, expression has 2`)

	ds = base()
	ds.Expr = mustCSC(c, 3, 3, make([]float64, 9))
	c.Check(ds.Validate(), check.ErrorMatches, `accessibility has 2 columns, expression has 3`)

	ds = base()
	ds.Links = ds.Links[:1]
	c.Check(ds.Validate(), check.ErrorMatches, `2 matrix columns but 1 link records`)

	ds = base()
	ds.AccRaw = mustCSC(c, 3, 1, make([]float64, 3))
	c.Check(ds.Validate(), check.ErrorMatches, `raw layer shape .* does not match .*`)

	ds = base()
	ds.CellTypes = []string{"T"}
	c.Check(ds.Validate(), check.ErrorMatches, `1 cell type labels for 3 cells`)

	ds = base()
	ds.Links[1].Peak = 5
	c.Check(ds.Validate(), check.ErrorMatches, `link 1 references peak 5 of 2`)

	ds = base()
	ds.Peaks[1].Col = 9
	c.Check(ds.Validate(), check.ErrorMatches, `peak 1 references column 9 of 2`)
}

func (s *datasetSuite) TestFilterLinks(c *check.C) {
	ds := &Dataset{
		Acc: mustCSC(c, 2, 3, []float64{
			1, 2, 3,
			4, 5, 6,
		}),
		Expr: mustCSC(c, 2, 3, []float64{
			7, 8, 9,
			1, 2, 3,
		}),
		Links: []Link{
			{PeakID: "peak0", GeneID: "geneA", Peak: 0},
			{PeakID: "peak0", GeneID: "geneB", Peak: 0},
			{PeakID: "peak1", GeneID: "geneC", Peak: 1},
		},
		Peaks: []PeakInfo{
			{ID: "peak0", GC: 0.4, Col: 0},
			{ID: "peak1", GC: 0.6, Col: 2},
		},
	}
	out, err := FilterLinks(ds, []bool{false, true, true})
	c.Assert(err, check.IsNil)
	c.Check(out.NumLinks(), check.Equals, 2)
	c.Check(cscToDense(out.Acc), check.DeepEquals, []float64{2, 3, 5, 6})
	c.Check(out.Links, check.DeepEquals, []Link{
		{PeakID: "peak0", GeneID: "geneB", Peak: 0},
		{PeakID: "peak1", GeneID: "geneC", Peak: 1},
	})
	// Representative columns are rebuilt against the filtered matrices.
	c.Check(out.Peaks, check.DeepEquals, []PeakInfo{
		{ID: "peak0", GC: 0.4, Col: 0},
		{ID: "peak1", GC: 0.6, Col: 1},
	})

	_, err = FilterLinks(ds, []bool{true})
	c.Check(err, check.NotNil)
}

func (s *datasetSuite) TestLowExpMask(c *check.C) {
	acc := mustCSC(c, 4, 3, []float64{
		1, 0, 1,
		1, 0, 1,
		1, 1, 0,
		1, 0, 0,
	})
	expr := mustCSC(c, 4, 3, []float64{
		2, 2, 0,
		2, 2, 0,
		2, 2, 0,
		2, 2, 0,
	})
	// Column 0 passes everywhere; column 1 fails the accessibility
	// nonzero fraction; column 2 fails on expression.
	keep, err := LowExpMask(acc, expr, 0.3, 0)
	c.Assert(err, check.IsNil)
	c.Check(keep, check.DeepEquals, []bool{true, false, false})
}
