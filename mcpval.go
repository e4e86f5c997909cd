// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TestResult holds the per-feature outcome of a Monte Carlo test. A NaN
// p/q-value marks a feature whose null had zero spread; such features are
// never significant and are excluded from Reject, but keep their slot so
// output stays aligned with the input.
type TestResult struct {
	Pval   []float64
	Qval   []float64
	Reject []bool
}

// centerStats normalizes the null matrix and the observed vector by each
// feature's own null mean and standard deviation, then takes absolute
// values (centering first, abs second: the two-tailed test runs on the
// centered scale). Features with zero null spread get NaN.
func centerStats(null *NullStats, obs []float32) (pool, centered []float64) {
	pool = make([]float64, 0, len(null.Data))
	centered = make([]float64, null.N)
	row := make([]float64, null.B)
	for i := 0; i < null.N; i++ {
		for d, v := range null.Row(i) {
			row[d] = float64(v)
		}
		mean, std := stat.MeanStdDev(row, nil)
		if std == 0 || math.IsNaN(std) {
			centered[i] = math.NaN()
			for range row {
				pool = append(pool, math.NaN())
			}
			continue
		}
		for _, v := range row {
			pool = append(pool, math.Abs((v-mean)/std))
		}
		centered[i] = math.Abs((float64(obs[i]) - mean) / std)
	}
	return pool, centered
}

// MCPval computes the pooled two-tailed empirical p-value per feature:
// all centered null draws form one sorted global pool, and each
// feature's centered observed statistic is ranked against it by binary
// search. Pooling beats per-feature ranking on power: a feature is not
// limited to its own B draws. The +1 keeps p strictly positive.
// Zero-spread features are excluded from the pool and from the
// denominator, so their presence never deflates other features'
// p-values.
func MCPval(null *NullStats, obs []float32) ([]float64, error) {
	if null.N != len(obs) {
		return nil, fmt.Errorf("null matrix has %d features, observed vector %d", null.N, len(obs))
	}
	pool, centered := centerStats(null, obs)
	sorted := pool[:0]
	for _, v := range pool {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)
	out := make([]float64, null.N)
	for i, c := range centered {
		if math.IsNaN(c) {
			out[i] = math.NaN()
			continue
		}
		atOrAbove := len(sorted) - sort.SearchFloat64s(sorted, c)
		out[i] = float64(1+atOrAbove) / float64(1+len(sorted))
	}
	return out, nil
}

// InitialMCPval is the per-feature variant: each feature is ranked only
// against its own B draws, uncentered. Kept for comparison with the
// pooled default.
func InitialMCPval(null *NullStats, obs []float32) ([]float64, error) {
	if null.N != len(obs) {
		return nil, fmt.Errorf("null matrix has %d features, observed vector %d", null.N, len(obs))
	}
	out := make([]float64, null.N)
	for i := range out {
		o := math.Abs(float64(obs[i]))
		atOrAbove := 0
		for _, v := range null.Row(i) {
			if math.Abs(float64(v)) >= o {
				atOrAbove++
			}
		}
		out[i] = float64(1+atOrAbove) / float64(1+null.B)
	}
	return out, nil
}

// BenjaminiHochberg converts p-values to FDR q-values. NaN entries are
// left NaN and do not count toward the number of tests.
func BenjaminiHochberg(pvals []float64) []float64 {
	idx := make([]int, 0, len(pvals))
	for i, p := range pvals {
		if !math.IsNaN(p) {
			idx = append(idx, i)
		}
	}
	n := len(idx)
	sort.Slice(idx, func(a, b int) bool { return pvals[idx[a]] < pvals[idx[b]] })
	out := make([]float64, len(pvals))
	for i := range out {
		out[i] = math.NaN()
	}
	minQ := 1.0
	for i := n - 1; i >= 0; i-- {
		q := pvals[idx[i]] * float64(n) / float64(i+1)
		if q > 1 {
			q = 1
		}
		if q < minQ {
			minQ = q
		} else {
			q = minQ
		}
		out[idx[i]] = q
	}
	return out
}

// MonteCarloTest runs the pooled empirical test and BH correction,
// rejecting features with q-value below alpha.
func MonteCarloTest(null *NullStats, obs []float32, alpha float64) (*TestResult, error) {
	pvals, err := MCPval(null, obs)
	if err != nil {
		return nil, err
	}
	qvals := BenjaminiHochberg(pvals)
	reject := make([]bool, len(qvals))
	for i, q := range qvals {
		reject[i] = !math.IsNaN(q) && q < alpha
	}
	return &TestResult{Pval: pvals, Qval: qvals, Reject: reject}, nil
}
