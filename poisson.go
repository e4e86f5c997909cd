// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"fmt"
	"io"
	"log"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
)

var poissonConfig = &glm.Config{
	Family:         glm.NewFamily(glm.PoissonFamily),
	FitMethod:      "IRLS",
	ConcurrentIRLS: 1000,
	Log:            log.New(io.Discard, "", 0),
}

// PoissonFailPolicy says what happens to links whose GLM fit fails.
// Either way the failure is recorded; a fit failure never silently
// changes the output length.
type PoissonFailPolicy int

const (
	// PoissonDrop leaves NaN in the coefficient slot and clears the
	// link in the Kept mask.
	PoissonDrop PoissonFailPolicy = iota
	// PoissonZeroFill writes a zero coefficient and keeps the link.
	PoissonZeroFill
)

func ParsePoissonFailPolicy(s string) (PoissonFailPolicy, error) {
	switch s {
	case "drop":
		return PoissonDrop, nil
	case "zero":
		return PoissonZeroFill, nil
	}
	return 0, fmt.Errorf("unknown fit failure policy %q (want drop or zero)", s)
}

// PoissonResult holds one fitted accessibility coefficient per link.
// Coeff always has NumLinks entries; Failed lists the links whose fit did
// not converge and Kept reflects the chosen policy.
type PoissonResult struct {
	Coeff  []float64
	Failed []int
	Kept   []bool
}

// fitPoisson fits log E[expr] = a + b·acc and returns the accessibility
// coefficient b. Non-convergence and degenerate input surface as NaN;
// the statmodel fitter panics on singular systems, so the recover here
// is part of the contract.
func fitPoisson(acc, expr []statmodel.Dtype) (coeff float64) {
	defer func() {
		if recover() != nil {
			coeff = math.NaN()
		}
	}()
	constants := make([]statmodel.Dtype, len(acc))
	for i := range constants {
		constants[i] = 1
	}
	data := [][]statmodel.Dtype{expr, constants, acc}
	names := []string{"expr", "const", "acc"}
	dataset := statmodel.NewDataset(data, names)
	model, err := glm.NewGLM(dataset, "expr", names[1:], poissonConfig)
	if err != nil {
		return math.NaN()
	}
	result := model.Fit()
	params := result.Params()
	if len(params) != 2 || math.IsInf(params[1], 0) {
		return math.NaN()
	}
	return params[1]
}

// PoissonCoeffs fits the Poisson statistic for every link on the raw
// count layers. With binarize set, accessibility is recoded to 0/1
// presence before fitting.
func PoissonCoeffs(ds *Dataset, binarize bool, policy PoissonFailPolicy) (*PoissonResult, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	accM, exprM := ds.rawOr()
	acc := newCSCCols(accM)
	expr := newCSCCols(exprM)

	res := &PoissonResult{
		Coeff: make([]float64, len(ds.Links)),
		Kept:  make([]bool, len(ds.Links)),
	}
	x := make([]statmodel.Dtype, acc.rows)
	y := make([]statmodel.Dtype, acc.rows)
	for j := range ds.Links {
		for i := range x {
			x[i] = 0
			y[i] = 0
		}
		xi, xv := acc.col(j)
		for k, i := range xi {
			if binarize {
				x[i] = 1
			} else {
				x[i] = statmodel.Dtype(xv[k])
			}
		}
		yi, yv := expr.col(j)
		for k, i := range yi {
			y[i] = statmodel.Dtype(yv[k])
		}
		c := fitPoisson(x, y)
		if math.IsNaN(c) {
			res.Failed = append(res.Failed, j)
			if policy == PoissonZeroFill {
				res.Coeff[j] = 0
				res.Kept[j] = true
			} else {
				res.Coeff[j] = math.NaN()
			}
			continue
		}
		res.Coeff[j] = c
		res.Kept[j] = true
	}
	return res, nil
}
