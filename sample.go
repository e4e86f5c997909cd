// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"fmt"
	"sort"

	"golang.org/x/exp/rand"
)

// BinConfig controls confounder stratification of peaks.
type BinConfig struct {
	MFABins int // equal-frequency bins over mean accessibility
	GCBins  int // equal-frequency bins over GC content; 0 skips GC
}

// DefaultBinConfig matches the conventional 5 accessibility bins with a
// coarse 2-way GC split.
var DefaultBinConfig = BinConfig{MFABins: 5, GCBins: 2}

// ControlDraws maps every link to B control link columns drawn from its
// peak's confounder bin. Cols is row-major, len NumLinks()×B. Links
// sharing a peak share one draw.
type ControlDraws struct {
	B    int
	Cols []int
}

func (d *ControlDraws) NumLinks() int {
	if d.B == 0 {
		return 0
	}
	return len(d.Cols) / d.B
}

// Row returns the control columns for link i.
func (d *ControlDraws) Row(i int) []int {
	return d.Cols[i*d.B : (i+1)*d.B]
}

// Select returns the draws restricted to links where keep is true,
// preserving order. Used by the delta module, whose strata drop
// low-expression links but keep the full control column space.
func (d *ControlDraws) Select(keep []bool) (*ControlDraws, error) {
	if len(keep) != d.NumLinks() {
		return nil, fmt.Errorf("keep mask length %d does not match %d links", len(keep), d.NumLinks())
	}
	out := &ControlDraws{B: d.B}
	for i, k := range keep {
		if k {
			out.Cols = append(out.Cols, d.Row(i)...)
		}
	}
	return out, nil
}

// quantileBins assigns each value an equal-frequency bin in [0,bins).
// Values are rank-transformed first, ties broken by first occurrence, so
// bin sizes differ by at most one regardless of duplicates.
func quantileBins(values []float64, bins int) []int {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })
	out := make([]int, n)
	for rank, idx := range order {
		out[idx] = rank * bins / n
	}
	return out
}

// PeakBins assigns each distinct peak a joint confounder bin id,
// mfaBin*10 + gcBin. Mean accessibility comes from each peak's
// representative column of ds.Acc, so the assignment is deterministic
// given the same matrix and GC values.
func PeakBins(ds *Dataset, cfg BinConfig) ([]int, error) {
	if cfg.MFABins < 1 {
		return nil, fmt.Errorf("need at least 1 accessibility bin, have %d", cfg.MFABins)
	}
	// The joint id packs the GC bin into the ones digit.
	if cfg.GCBins > 10 {
		return nil, fmt.Errorf("at most 10 GC bins are supported, have %d", cfg.GCBins)
	}
	if len(ds.Peaks) == 0 {
		return nil, fmt.Errorf("dataset has no peaks")
	}
	acc := newCSCCols(ds.Acc)
	mfa := make([]float64, len(ds.Peaks))
	for k, p := range ds.Peaks {
		m, _ := acc.moments(p.Col)
		mfa[k] = m
	}
	bins := quantileBins(mfa, cfg.MFABins)
	if cfg.GCBins > 0 {
		gc := make([]float64, len(ds.Peaks))
		for k, p := range ds.Peaks {
			gc[k] = p.GC
		}
		gcBins := quantileBins(gc, cfg.GCBins)
		for k := range bins {
			bins[k] = bins[k]*10 + gcBins[k]
		}
	}
	return bins, nil
}

// SampleControls draws b background peaks per distinct peak from its
// confounder bin, uniformly without replacement and never including the
// focal peak itself, then broadcasts each peak's draw to all links
// sharing it. A bin with fewer than b other members is an error: falling
// back to replacement sampling would bias the null toward repeated
// values.
func SampleControls(ds *Dataset, cfg BinConfig, b int, src rand.Source) (*ControlDraws, error) {
	if b < 1 {
		return nil, fmt.Errorf("need at least 1 control draw, have %d", b)
	}
	bins, err := PeakBins(ds, cfg)
	if err != nil {
		return nil, err
	}
	members := map[int][]int{}
	for k, bin := range bins {
		members[bin] = append(members[bin], k)
	}
	rng := rand.New(src)

	// One draw per distinct peak, reused by every link carrying it.
	peakDraws := make([][]int, len(ds.Peaks))
	pool := []int{}
	for k := range ds.Peaks {
		pool = pool[:0]
		for _, peer := range members[bins[k]] {
			if peer != k {
				pool = append(pool, peer)
			}
		}
		if len(pool) < b {
			return nil, fmt.Errorf("insufficient control pool: bin %d has %d candidates for peak %q, need %d", bins[k], len(pool), ds.Peaks[k].ID, b)
		}
		draw := make([]int, b)
		// Partial Fisher-Yates: the first b positions are a uniform
		// sample without replacement.
		for d := 0; d < b; d++ {
			r := d + rng.Intn(len(pool)-d)
			pool[d], pool[r] = pool[r], pool[d]
			draw[d] = pool[d]
		}
		peakDraws[k] = draw
	}

	out := &ControlDraws{B: b, Cols: make([]int, len(ds.Links)*b)}
	for i, l := range ds.Links {
		row := out.Cols[i*b : (i+1)*b]
		for d, peer := range peakDraws[l.Peak] {
			row[d] = ds.Peaks[peer].Col
		}
	}
	return out, nil
}
