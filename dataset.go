// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/james-bowman/sparse"
	"github.com/klauspost/pgzip"
)

// Link is one candidate peak–gene pair. Column i of the accessibility
// and expression matrices both belong to link i.
type Link struct {
	PeakID string
	GeneID string
	Peak   int // index into Dataset.Peaks
}

// PeakInfo describes one distinct peak. Col is the first link column
// carrying this peak's accessibility values; peaks linked to several
// genes appear in many columns but have one PeakInfo.
type PeakInfo struct {
	ID  string
	GC  float64 // GC content fraction, supplied by the genome collaborator
	Col int
}

// Dataset is a paired, cell-aligned view of accessibility and expression,
// one column per link. Acc/Expr are the normalized layers used for
// correlation; AccRaw/ExprRaw are raw counts used by the low-expression
// filter and the Poisson statistic. All four matrices are read-only for
// the life of the pipeline; every stage returns new derived values.
type Dataset struct {
	Acc     *sparse.CSC
	Expr    *sparse.CSC
	AccRaw  *sparse.CSC
	ExprRaw *sparse.CSC

	Links     []Link
	Peaks     []PeakInfo
	CellTypes []string
}

func (ds *Dataset) NumCells() int {
	n, _ := ds.Acc.Dims()
	return n
}

func (ds *Dataset) NumLinks() int {
	return len(ds.Links)
}

// Validate checks the structural invariants that must hold before any
// stage runs. Violations are contract errors and fatal.
func (ds *Dataset) Validate() error {
	arows, acols := ds.Acc.Dims()
	erows, ecols := ds.Expr.Dims()
	if arows != erows {
		return fmt.Errorf("accessibility has %d cells, expression has %d", arows, erows)
	}
	if acols != ecols {
		return fmt.Errorf("accessibility has %d columns, expression has %d", acols, ecols)
	}
	if acols != len(ds.Links) {
		return fmt.Errorf("%d matrix columns but %d link records", acols, len(ds.Links))
	}
	for _, m := range []*sparse.CSC{ds.AccRaw, ds.ExprRaw} {
		if m == nil {
			continue
		}
		r, c := m.Dims()
		if r != arows || c != acols {
			return fmt.Errorf("raw layer shape %d×%d does not match %d×%d", r, c, arows, acols)
		}
	}
	if len(ds.CellTypes) != 0 && len(ds.CellTypes) != arows {
		return fmt.Errorf("%d cell type labels for %d cells", len(ds.CellTypes), arows)
	}
	for i, l := range ds.Links {
		if l.Peak < 0 || l.Peak >= len(ds.Peaks) {
			return fmt.Errorf("link %d references peak %d of %d", i, l.Peak, len(ds.Peaks))
		}
	}
	for k, p := range ds.Peaks {
		if p.Col < 0 || p.Col >= acols {
			return fmt.Errorf("peak %d references column %d of %d", k, p.Col, acols)
		}
	}
	return nil
}

// gob cannot see inside sparse.CSC, so matrices travel as their raw
// compressed-column arrays.
type matrixEntry struct {
	Rows, Cols int
	Indptr     []int
	Ind        []int
	Data       []float64
}

type datasetEntry struct {
	Acc, Expr, AccRaw, ExprRaw *matrixEntry
	Links                      []Link
	Peaks                      []PeakInfo
	CellTypes                  []string
}

func toMatrixEntry(m *sparse.CSC) *matrixEntry {
	if m == nil {
		return nil
	}
	c := newCSCCols(m)
	return &matrixEntry{Rows: c.rows, Cols: c.cols, Indptr: c.indptr, Ind: c.ind, Data: c.data}
}

func (e *matrixEntry) matrix() *sparse.CSC {
	if e == nil {
		return nil
	}
	ind := e.Ind
	if ind == nil {
		ind = []int{}
	}
	data := e.Data
	if data == nil {
		data = []float64{}
	}
	return sparse.NewCSC(e.Rows, e.Cols, e.Indptr, ind, data)
}

// WriteDataset writes ds as a pgzip-compressed gob stream.
func WriteDataset(w io.Writer, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	bufw := bufio.NewWriter(w)
	zw := pgzip.NewWriter(bufw)
	err := gob.NewEncoder(zw).Encode(datasetEntry{
		Acc:       toMatrixEntry(ds.Acc),
		Expr:      toMatrixEntry(ds.Expr),
		AccRaw:    toMatrixEntry(ds.AccRaw),
		ExprRaw:   toMatrixEntry(ds.ExprRaw),
		Links:     ds.Links,
		Peaks:     ds.Peaks,
		CellTypes: ds.CellTypes,
	})
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return bufw.Flush()
}

// ReadDataset reads a dataset written by WriteDataset and validates it.
func ReadDataset(r io.Reader) (*Dataset, error) {
	zr, err := pgzip.NewReader(bufio.NewReaderSize(r, 1<<22))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	var ent datasetEntry
	if err := gob.NewDecoder(zr).Decode(&ent); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	if ent.Acc == nil || ent.Expr == nil {
		return nil, fmt.Errorf("dataset stream is missing a paired matrix")
	}
	ds := &Dataset{
		Acc:       ent.Acc.matrix(),
		Expr:      ent.Expr.matrix(),
		AccRaw:    ent.AccRaw.matrix(),
		ExprRaw:   ent.ExprRaw.matrix(),
		Links:     ent.Links,
		Peaks:     ent.Peaks,
		CellTypes: ent.CellTypes,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// rawOr returns the raw layer if present, falling back to the normalized
// layer. The Poisson statistic and the low-expression filter prefer raw
// counts.
func (ds *Dataset) rawOr() (acc, expr *sparse.CSC) {
	acc, expr = ds.AccRaw, ds.ExprRaw
	if acc == nil {
		acc = ds.Acc
	}
	if expr == nil {
		expr = ds.Expr
	}
	return
}
