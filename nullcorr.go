// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"github.com/kshedden/statmodel/statmodel"
	"golang.org/x/exp/rand"
)

// NullStrategy selects how the empirical null is generated. The two
// strategies encode different null hypotheses: NullMatched asks whether
// the focal pairing beats other confounder-matched peaks, NullPermuted
// asks whether it beats the same peak with cell labels shuffled.
type NullStrategy int

const (
	NullMatched NullStrategy = iota
	NullPermuted
)

func (s NullStrategy) String() string {
	switch s {
	case NullMatched:
		return "matched"
	case NullPermuted:
		return "permute"
	}
	return fmt.Sprintf("NullStrategy(%d)", int(s))
}

// ParseNullStrategy resolves a -strategy flag value.
func ParseNullStrategy(s string) (NullStrategy, error) {
	switch s {
	case "matched":
		return NullMatched, nil
	case "permute":
		return NullPermuted, nil
	}
	return 0, fmt.Errorf("unknown null strategy %q (want matched or permute)", s)
}

// NullStat selects the statistic computed per (feature, draw) pair:
// Pearson correlation or the Poisson regression coefficient.
type NullStat int

const (
	StatPearson NullStat = iota
	StatPoisson
)

func (s NullStat) String() string {
	switch s {
	case StatPearson:
		return "pearson"
	case StatPoisson:
		return "poisson"
	}
	return fmt.Sprintf("NullStat(%d)", int(s))
}

// ParseNullStat resolves a -stat flag value.
func ParseNullStat(s string) (NullStat, error) {
	switch s {
	case "pearson":
		return StatPearson, nil
	case "poisson":
		return StatPoisson, nil
	}
	return 0, fmt.Errorf("unknown null statistic %q (want pearson or poisson)", s)
}

// NullStats is the null statistic matrix: one row of B draws per feature,
// row-major.
type NullStats struct {
	N, B int
	Data []float32
}

func (s *NullStats) Row(i int) []float32 {
	return s.Data[i*s.B : (i+1)*s.B]
}

// Sub subtracts other elementwise, producing the delta null.
func (s *NullStats) Sub(other *NullStats) (*NullStats, error) {
	if s.N != other.N || s.B != other.B {
		return nil, fmt.Errorf("null shapes disagree: %d×%d vs %d×%d", s.N, s.B, other.N, other.B)
	}
	out := &NullStats{N: s.N, B: s.B, Data: make([]float32, len(s.Data))}
	for i, v := range s.Data {
		out.Data[i] = v - other.Data[i]
	}
	return out, nil
}

// NullConfig configures GenerateNull. Draws is the permutation count for
// NullPermuted; for NullMatched the draw count comes from the control
// index matrix. Seed feeds the permutation random source. Binarize and
// OnFail apply only to StatPoisson.
type NullConfig struct {
	Strategy NullStrategy
	Stat     NullStat
	Draws    int
	Chunks   int
	Threads  int
	Seed     uint64
	Binarize bool
	OnFail   PoissonFailPolicy
}

// GenerateNull produces the null statistic matrix for every expression
// column. The feature axis is partitioned into cfg.Chunks chunks
// processed independently (up to cfg.Threads at a time); each chunk
// fills a contiguous slab of the result, so concatenation order is the
// original feature order regardless of chunking.
//
// acc may have more columns than expr: control draws index acc's full
// column space (the delta module relies on this).
func GenerateNull(acc, expr *sparse.CSC, draws *ControlDraws, cfg NullConfig) (*NullStats, error) {
	arows, acols := acc.Dims()
	erows, ecols := expr.Dims()
	if arows != erows {
		return nil, fmt.Errorf("matrix rows disagree: %d vs %d cells", arows, erows)
	}
	if cfg.Chunks < 1 {
		cfg.Chunks = 1
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}

	b := cfg.Draws
	switch cfg.Strategy {
	case NullMatched:
		if draws == nil {
			return nil, fmt.Errorf("matched null requires a control index matrix")
		}
		if draws.NumLinks() != ecols {
			return nil, fmt.Errorf("control draws cover %d links, expression has %d", draws.NumLinks(), ecols)
		}
		for _, c := range draws.Cols {
			if c < 0 || c >= acols {
				return nil, fmt.Errorf("control column %d outside accessibility matrix (%d columns)", c, acols)
			}
		}
		b = draws.B
	case NullPermuted:
		if b < 1 {
			return nil, fmt.Errorf("permutation null requires a positive draw count, have %d", b)
		}
		if acols != ecols {
			return nil, fmt.Errorf("matrix columns disagree: %d vs %d links", acols, ecols)
		}
	default:
		return nil, fmt.Errorf("unknown null strategy %d", cfg.Strategy)
	}

	accCols := newCSCCols(acc)
	exprCols := newCSCCols(expr)
	var accMean, accVar []float64
	if cfg.Stat != StatPoisson {
		accMean = make([]float64, acols)
		accVar = make([]float64, acols)
		for j := 0; j < acols; j++ {
			accMean[j], accVar[j] = accCols.moments(j)
		}
	}

	out := &NullStats{N: ecols, B: b, Data: make([]float32, ecols*b)}
	t := throttle{Max: cfg.Threads}
	for ci, sp := range chunkSpans(ecols, cfg.Chunks) {
		ci, sp := ci, sp
		t.Go(func() error {
			if cfg.Strategy == NullMatched {
				if cfg.Stat == StatPoisson {
					return matchedPoissonChunk(accCols, exprCols, draws, sp, cfg, out)
				}
				return matchedChunk(accCols, exprCols, accMean, accVar, draws, sp, out)
			}
			rng := rand.New(rand.NewSource(cfg.Seed + uint64(ci)))
			if cfg.Stat == StatPoisson {
				return permutedPoissonChunk(accCols, exprCols, b, sp, rng, cfg, out)
			}
			return permutedChunk(accCols, exprCols, accMean, accVar, b, sp, rng, out)
		})
	}
	if err := t.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// matchedChunk correlates each feature's fixed expression column with the
// accessibility columns of its B control peaks.
func matchedChunk(acc, expr *cscCols, accMean, accVar []float64, draws *ControlDraws, sp span, out *NullStats) error {
	n := float64(expr.rows)
	for j := sp.start; j < sp.end; j++ {
		my, vy := expr.moments(j)
		sy := math.Sqrt(math.Max(vy, varFloor))
		yi, yv := expr.col(j)
		row := out.Row(j)
		for d, c := range draws.Row(j) {
			xi, xv := acc.col(c)
			sx := math.Sqrt(math.Max(accVar[c], varFloor))
			cov := dotSparse(xi, xv, yi, yv)/n - accMean[c]*my
			row[d] = float32(cov / (sx * sy))
		}
	}
	return nil
}

// permutedChunk correlates each feature's expression column with B
// independent cell-order shuffles of its own accessibility column. Only
// the chunk's expression columns are densified; a shuffle moves the
// accessibility nonzeros to random rows, so the dot product stays an
// O(nnz) walk.
func permutedChunk(acc, expr *cscCols, accMean, accVar []float64, b int, sp span, rng *rand.Rand, out *NullStats) error {
	n := float64(expr.rows)
	ydense := make([]float64, expr.rows)
	for j := sp.start; j < sp.end; j++ {
		my, vy := expr.moments(j)
		sy := math.Sqrt(math.Max(vy, varFloor))
		yi, yv := expr.col(j)
		for i := range ydense {
			ydense[i] = 0
		}
		for k, i := range yi {
			ydense[i] = yv[k]
		}
		xi, xv := acc.col(j)
		sx := math.Sqrt(math.Max(accVar[j], varFloor))
		row := out.Row(j)
		for d := 0; d < b; d++ {
			perm := rng.Perm(expr.rows)
			var dot float64
			for k, i := range xi {
				dot += xv[k] * ydense[perm[i]]
			}
			cov := dot/n - accMean[j]*my
			row[d] = float32(cov / (sx * sy))
		}
	}
	return nil
}

// matchedPoissonChunk fits the Poisson coefficient for each feature's
// expression column against the accessibility columns of its B control
// peaks. A failed fit follows cfg.OnFail: zero-fill writes 0, drop
// leaves NaN and the tester's zero-spread sentinel excludes the row.
func matchedPoissonChunk(acc, expr *cscCols, draws *ControlDraws, sp span, cfg NullConfig, out *NullStats) error {
	x := make([]statmodel.Dtype, acc.rows)
	y := make([]statmodel.Dtype, expr.rows)
	for j := sp.start; j < sp.end; j++ {
		for i := range y {
			y[i] = 0
		}
		yi, yv := expr.col(j)
		for k, i := range yi {
			y[i] = statmodel.Dtype(yv[k])
		}
		row := out.Row(j)
		for d, c := range draws.Row(j) {
			for i := range x {
				x[i] = 0
			}
			xi, xv := acc.col(c)
			for k, i := range xi {
				if cfg.Binarize {
					x[i] = 1
				} else {
					x[i] = statmodel.Dtype(xv[k])
				}
			}
			coeff := fitPoisson(x, y)
			if math.IsNaN(coeff) && cfg.OnFail == PoissonZeroFill {
				coeff = 0
			}
			row[d] = float32(coeff)
		}
	}
	return nil
}

// permutedPoissonChunk fits each feature's expression column against B
// independent cell-order shuffles of its own accessibility column.
func permutedPoissonChunk(acc, expr *cscCols, b int, sp span, rng *rand.Rand, cfg NullConfig, out *NullStats) error {
	x := make([]statmodel.Dtype, acc.rows)
	y := make([]statmodel.Dtype, expr.rows)
	for j := sp.start; j < sp.end; j++ {
		for i := range y {
			y[i] = 0
		}
		yi, yv := expr.col(j)
		for k, i := range yi {
			y[i] = statmodel.Dtype(yv[k])
		}
		xi, xv := acc.col(j)
		row := out.Row(j)
		for d := 0; d < b; d++ {
			perm := rng.Perm(acc.rows)
			for i := range x {
				x[i] = 0
			}
			for k, i := range xi {
				if cfg.Binarize {
					x[perm[i]] = 1
				} else {
					x[perm[i]] = statmodel.Dtype(xv[k])
				}
			}
			coeff := fitPoisson(x, y)
			if math.IsNaN(coeff) && cfg.OnFail == PoissonZeroFill {
				coeff = 0
			}
			row[d] = float32(coeff)
		}
	}
	return nil
}
