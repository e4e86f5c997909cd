// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"fmt"

	"github.com/james-bowman/sparse"
)

// LowExpMask flags links worth keeping: at least minPct of cells nonzero
// and absolute mean above minMean, in both layers.
func LowExpMask(acc, expr *sparse.CSC, minPct, minMean float64) ([]bool, error) {
	arows, acols := acc.Dims()
	erows, ecols := expr.Dims()
	if arows != erows || acols != ecols {
		return nil, fmt.Errorf("layer shapes disagree: %d×%d vs %d×%d", arows, acols, erows, ecols)
	}
	a := newCSCCols(acc)
	e := newCSCCols(expr)
	keep := make([]bool, acols)
	n := float64(arows)
	for j := range keep {
		ai, _ := a.col(j)
		ei, _ := e.col(j)
		am, _ := a.moments(j)
		em, _ := e.moments(j)
		if am < 0 {
			am = -am
		}
		if em < 0 {
			em = -em
		}
		keep[j] = float64(len(ai))/n > minPct && float64(len(ei))/n > minPct &&
			am > minMean && em > minMean
	}
	return keep, nil
}

// Stratum is a named cell subset plus the low-expression link mask
// computed on it. The mask is part of the stratum on purpose: the
// complement subset must reuse it, not recompute it, or the two sides'
// feature axes drift apart.
type Stratum struct {
	CellType string
	Cells    []bool
	Keep     []bool
}

func (st *Stratum) NumCells() int {
	n := 0
	for _, c := range st.Cells {
		if c {
			n++
		}
	}
	return n
}

// BuildStratum selects the cells labelled celltype and computes the
// low-expression mask over that subset's raw layers.
func BuildStratum(ds *Dataset, celltype string, minPct, minMean float64) (*Stratum, error) {
	if len(ds.CellTypes) == 0 {
		return nil, fmt.Errorf("dataset has no cell type labels")
	}
	cells := make([]bool, len(ds.CellTypes))
	n := 0
	for i, ct := range ds.CellTypes {
		if ct == celltype {
			cells[i] = true
			n++
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("no cells labelled %q", celltype)
	}
	if n == len(cells) {
		return nil, fmt.Errorf("every cell is labelled %q; the complement is empty", celltype)
	}
	accRaw, exprRaw := ds.rawOr()
	accSub, err := cscSelectRows(accRaw, cells)
	if err != nil {
		return nil, err
	}
	exprSub, err := cscSelectRows(exprRaw, cells)
	if err != nil {
		return nil, err
	}
	keep, err := LowExpMask(accSub, exprSub, minPct, minMean)
	if err != nil {
		return nil, err
	}
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	if kept == 0 {
		return nil, fmt.Errorf("no links pass the low-expression filter in %q", celltype)
	}
	return &Stratum{CellType: celltype, Cells: cells, Keep: keep}, nil
}

// DeltaConfig configures DeltaCorr.
type DeltaConfig struct {
	Alpha   float64
	MinPct  float64
	MinMean float64
	Chunks  int
	Threads int
}

// DeltaResult holds the cell-type-specific statistics for the links
// retained by the stratum's low-expression mask. All slices are aligned
// to the kept links, in original order; Keep maps them back to the full
// link axis.
type DeltaResult struct {
	CellType string
	Keep     []bool
	ObsCT    []float32
	ObsComp  []float32
	Delta    []float32
	Null     *NullStats
	Test     *TestResult
}

// strataCorr computes, on one cell subset, the observed correlation over
// the kept links and the matched null over the same links. Controls run
// against the full link column space: a control draw may point at a link
// the low-expression mask dropped, and that is fine for the null.
func strataCorr(ds *Dataset, cells, keep []bool, draws *ControlDraws, cfg DeltaConfig) ([]float32, *NullStats, error) {
	accFull, err := cscSelectRows(ds.Acc, cells)
	if err != nil {
		return nil, nil, err
	}
	exprRows, err := cscSelectRows(ds.Expr, cells)
	if err != nil {
		return nil, nil, err
	}
	exprKept, err := cscSelectCols(exprRows, keep)
	if err != nil {
		return nil, nil, err
	}
	accKept, err := cscSelectCols(accFull, keep)
	if err != nil {
		return nil, nil, err
	}
	obs, _, err := pearsonFull(accKept, exprKept)
	if err != nil {
		return nil, nil, err
	}
	drawsKept, err := draws.Select(keep)
	if err != nil {
		return nil, nil, err
	}
	null, err := GenerateNull(accFull, exprKept, drawsKept, NullConfig{
		Strategy: NullMatched,
		Chunks:   cfg.Chunks,
		Threads:  cfg.Threads,
	})
	if err != nil {
		return nil, nil, err
	}
	return obs, null, nil
}

// DeltaCorr runs the whole pipeline restricted to one cell type and to
// its complement over the same retained links, then tests
// delta = stat_celltype − stat_complement against the differenced null.
func DeltaCorr(ds *Dataset, celltype string, draws *ControlDraws, cfg DeltaConfig) (*DeltaResult, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if draws.NumLinks() != len(ds.Links) {
		return nil, fmt.Errorf("control draws cover %d links, dataset has %d", draws.NumLinks(), len(ds.Links))
	}
	st, err := BuildStratum(ds, celltype, cfg.MinPct, cfg.MinMean)
	if err != nil {
		return nil, err
	}
	comp := make([]bool, len(st.Cells))
	for i, c := range st.Cells {
		comp[i] = !c
	}

	obsCT, nullCT, err := strataCorr(ds, st.Cells, st.Keep, draws, cfg)
	if err != nil {
		return nil, err
	}
	// The complement reuses st.Keep, never its own mask.
	obsComp, nullComp, err := strataCorr(ds, comp, st.Keep, draws, cfg)
	if err != nil {
		return nil, err
	}

	delta := make([]float32, len(obsCT))
	for i := range delta {
		delta[i] = obsCT[i] - obsComp[i]
	}
	nullDelta, err := nullCT.Sub(nullComp)
	if err != nil {
		return nil, err
	}
	test, err := MonteCarloTest(nullDelta, delta, cfg.Alpha)
	if err != nil {
		return nil, err
	}
	return &DeltaResult{
		CellType: celltype,
		Keep:     st.Keep,
		ObsCT:    obsCT,
		ObsComp:  obsComp,
		Delta:    delta,
		Null:     nullDelta,
		Test:     test,
	}, nil
}
