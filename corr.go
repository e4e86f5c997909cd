// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
)

const (
	// Columns with variance at or below noVarThreshold are flagged as
	// having no usable signal.
	noVarThreshold = 1e-6
	// Variance floor applied before taking the square root, so a
	// near-degenerate column yields a finite (if meaningless) value
	// instead of dividing by zero.
	varFloor = 1e-8
)

// PearsonCorrSparse computes the columnwise Pearson correlation between
// two column-aligned sparse matrices of shape (cells × links), without
// densifying either side. If exactly one input has a single column, that
// column is correlated against every column of the other input and the
// result has the wider side's length.
//
// With varFilter set, columns where either side's variance is at or
// below noVarThreshold are removed from the result and the returned keep
// mask (true = retained) reports which input columns survive. Without
// varFilter the result covers every column and the mask is nil.
//
// Results are float32: downstream use is rank-based, and the null
// matrices built from these values are large.
func PearsonCorrSparse(matX, matY *sparse.CSC, varFilter bool) ([]float32, []bool, error) {
	corr, noVar, err := pearsonFull(matX, matY)
	if err != nil {
		return nil, nil, err
	}
	if !varFilter {
		return corr, nil, nil
	}
	keep := make([]bool, len(corr))
	out := make([]float32, 0, len(corr))
	for j, c := range corr {
		if noVar[j] {
			continue
		}
		keep[j] = true
		out = append(out, c)
	}
	return out, keep, nil
}

// pearsonFull returns one correlation per column pair plus the no-variance
// flags, with no filtering applied. Callers needing aligned output across
// several matrix pairs (the delta module) use this directly.
func pearsonFull(matX, matY *sparse.CSC) ([]float32, []bool, error) {
	xrows, xcols := matX.Dims()
	yrows, ycols := matY.Dims()
	if xrows != yrows {
		return nil, nil, fmt.Errorf("matrix rows disagree: %d vs %d cells", xrows, yrows)
	}
	if xcols != ycols && xcols != 1 && ycols != 1 {
		return nil, nil, fmt.Errorf("matrix columns disagree: %d vs %d links", xcols, ycols)
	}

	x := newCSCCols(matX)
	y := newCSCCols(matY)
	m := xcols
	if ycols > m {
		m = ycols
	}

	corr := make([]float32, m)
	noVar := make([]bool, m)
	var ymean, yvar float64
	var yind []int
	var yval []float64
	if ycols == 1 {
		ymean, yvar = y.moments(0)
		yind, yval = y.col(0)
	}
	var xmean, xvar float64
	var xind []int
	var xval []float64
	if xcols == 1 {
		xmean, xvar = x.moments(0)
		xind, xval = x.col(0)
	}
	n := float64(xrows)
	for j := 0; j < m; j++ {
		mx, vx, ix, dx := xmean, xvar, xind, xval
		if xcols != 1 {
			mx, vx = x.moments(j)
			ix, dx = x.col(j)
		}
		my, vy, iy, dy := ymean, yvar, yind, yval
		if ycols != 1 {
			my, vy = y.moments(j)
			iy, dy = y.col(j)
		}
		noVar[j] = vx <= noVarThreshold || vy <= noVarThreshold
		sx := math.Sqrt(math.Max(vx, varFloor))
		sy := math.Sqrt(math.Max(vy, varFloor))
		cov := dotSparse(ix, dx, iy, dy)/n - mx*my
		corr[j] = float32(cov / (sx * sy))
	}
	return corr, noVar, nil
}

// NoVarMask flags column pairs where either side has near-zero variance.
func NoVarMask(matX, matY *sparse.CSC) ([]bool, error) {
	_, noVar, err := pearsonFull(matX, matY)
	return noVar, err
}
