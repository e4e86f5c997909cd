// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"fmt"

	"github.com/james-bowman/sparse"
)

// cscCols is a column-slice view of a CSC matrix. All per-column work in
// this package (moments, sparse dot products, permutation shuffles) runs
// off these slices instead of mat.Matrix.At calls. Row indices within a
// column are ascending.
type cscCols struct {
	rows, cols int
	indptr     []int
	ind        []int
	data       []float64
}

func newCSCCols(m *sparse.CSC) *cscCols {
	rows, cols := m.Dims()
	c := &cscCols{
		rows:   rows,
		cols:   cols,
		indptr: make([]int, cols+1),
	}
	for j := 0; j < cols; j++ {
		m.DoColNonZero(j, func(i, _ int, v float64) {
			c.ind = append(c.ind, i)
			c.data = append(c.data, v)
		})
		c.indptr[j+1] = len(c.ind)
	}
	return c
}

func (c *cscCols) col(j int) ([]int, []float64) {
	return c.ind[c.indptr[j]:c.indptr[j+1]], c.data[c.indptr[j]:c.indptr[j+1]]
}

// moments returns the population mean and variance of column j,
// accumulated over nonzeros only (var = E[x²] − E[x]²).
func (c *cscCols) moments(j int) (mean, variance float64) {
	_, vals := c.col(j)
	var sum, sumsq float64
	for _, v := range vals {
		sum += v
		sumsq += v * v
	}
	n := float64(c.rows)
	mean = sum / n
	variance = sumsq/n - mean*mean
	return
}

func (c *cscCols) toCSC() *sparse.CSC {
	indptr := append([]int(nil), c.indptr...)
	ind := append([]int(nil), c.ind...)
	data := append([]float64(nil), c.data...)
	return sparse.NewCSC(c.rows, c.cols, indptr, ind, data)
}

// dotSparse computes Σ xᵢ·yᵢ for two columns given as sorted
// (index, value) pairs, by merge walk.
func dotSparse(xi []int, xv []float64, yi []int, yv []float64) float64 {
	var dot float64
	a, b := 0, 0
	for a < len(xi) && b < len(yi) {
		switch {
		case xi[a] < yi[b]:
			a++
		case xi[a] > yi[b]:
			b++
		default:
			dot += xv[a] * yv[b]
			a++
			b++
		}
	}
	return dot
}

// cscFromDense builds a CSC matrix from a row-major dense slab, dropping
// exact zeros.
func cscFromDense(rows, cols int, data []float64) (*sparse.CSC, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("dense data length %d does not match %d×%d", len(data), rows, cols)
	}
	indptr := make([]int, cols+1)
	var ind []int
	var vals []float64
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			if v := data[i*cols+j]; v != 0 {
				ind = append(ind, i)
				vals = append(vals, v)
			}
		}
		indptr[j+1] = len(ind)
	}
	return sparse.NewCSC(rows, cols, indptr, ind, vals), nil
}

func cscToDense(m *sparse.CSC) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, rows*cols)
	m.DoNonZero(func(i, j int, v float64) {
		out[i*cols+j] = v
	})
	return out
}

// cscSelectRows returns a new matrix with only the rows where keep is
// true, preserving order.
func cscSelectRows(m *sparse.CSC, keep []bool) (*sparse.CSC, error) {
	rows, cols := m.Dims()
	if len(keep) != rows {
		return nil, fmt.Errorf("row mask length %d does not match %d rows", len(keep), rows)
	}
	remap := make([]int, rows)
	nkeep := 0
	for i, k := range keep {
		if k {
			remap[i] = nkeep
			nkeep++
		} else {
			remap[i] = -1
		}
	}
	indptr := make([]int, cols+1)
	var ind []int
	var vals []float64
	for j := 0; j < cols; j++ {
		m.DoColNonZero(j, func(i, _ int, v float64) {
			if remap[i] >= 0 {
				ind = append(ind, remap[i])
				vals = append(vals, v)
			}
		})
		indptr[j+1] = len(ind)
	}
	return sparse.NewCSC(nkeep, cols, indptr, ind, vals), nil
}

// cscSelectCols returns a new matrix with only the columns where keep is
// true, preserving order.
func cscSelectCols(m *sparse.CSC, keep []bool) (*sparse.CSC, error) {
	rows, cols := m.Dims()
	if len(keep) != cols {
		return nil, fmt.Errorf("column mask length %d does not match %d columns", len(keep), cols)
	}
	indptr := []int{0}
	var ind []int
	var vals []float64
	for j := 0; j < cols; j++ {
		if !keep[j] {
			continue
		}
		m.DoColNonZero(j, func(i, _ int, v float64) {
			ind = append(ind, i)
			vals = append(vals, v)
		})
		indptr = append(indptr, len(ind))
	}
	return sparse.NewCSC(rows, len(indptr)-1, indptr, ind, vals), nil
}
