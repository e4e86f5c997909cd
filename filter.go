// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/james-bowman/sparse"
	log "github.com/sirupsen/logrus"
)

// FilterLinks returns a new dataset containing only the links where keep
// is true. The input is left untouched; the peak table is rebuilt so
// representative columns point into the filtered matrices.
func FilterLinks(ds *Dataset, keep []bool) (*Dataset, error) {
	if len(keep) != len(ds.Links) {
		return nil, fmt.Errorf("keep mask length %d does not match %d links", len(keep), len(ds.Links))
	}
	sel := func(m *sparse.CSC) (*sparse.CSC, error) {
		if m == nil {
			return nil, nil
		}
		return cscSelectCols(m, keep)
	}
	acc, err := sel(ds.Acc)
	if err != nil {
		return nil, err
	}
	expr, err := sel(ds.Expr)
	if err != nil {
		return nil, err
	}
	accRaw, err := sel(ds.AccRaw)
	if err != nil {
		return nil, err
	}
	exprRaw, err := sel(ds.ExprRaw)
	if err != nil {
		return nil, err
	}

	out := &Dataset{
		Acc:       acc,
		Expr:      expr,
		AccRaw:    accRaw,
		ExprRaw:   exprRaw,
		CellTypes: ds.CellTypes,
	}
	peakIdx := map[string]int{}
	for i, l := range ds.Links {
		if !keep[i] {
			continue
		}
		k, ok := peakIdx[l.PeakID]
		if !ok {
			k = len(out.Peaks)
			peakIdx[l.PeakID] = k
			out.Peaks = append(out.Peaks, PeakInfo{
				ID:  l.PeakID,
				GC:  ds.Peaks[l.Peak].GC,
				Col: len(out.Links),
			})
		}
		out.Links = append(out.Links, Link{PeakID: l.PeakID, GeneID: l.GeneID, Peak: k})
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

type filtercmd struct {
	MinPct  float64
	MinMean float64
}

func (f *filtercmd) Flags(flags *flag.FlagSet) {
	flags.Float64Var(&f.MinPct, "min-pct", 0.05, "drop links with nonzero fraction at or below `P` in either raw layer")
	flags.Float64Var(&f.MinMean, "min-mean", 0, "drop links with absolute mean at or below `M` in either raw layer")
}

func (f *filtercmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputFilename := flags.String("i", "-", "input dataset `file`")
	outputFilename := flags.String("o", "-", "output dataset `file`")
	maskFilename := flags.String("output-mask", "", "also write the keep mask to `file` (.npy)")
	f.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	var input io.ReadCloser
	if *inputFilename == "-" {
		input = io.NopCloser(stdin)
	} else {
		input, err = os.Open(*inputFilename)
		if err != nil {
			return 1
		}
		defer input.Close()
	}
	log.Print("reading")
	ds, err := ReadDataset(input)
	if err != nil {
		return 1
	}

	log.Print("filtering")
	accRaw, exprRaw := ds.rawOr()
	keep, err := LowExpMask(accRaw, exprRaw, f.MinPct, f.MinMean)
	if err != nil {
		return 1
	}
	filtered, err := FilterLinks(ds, keep)
	if err != nil {
		return 1
	}
	log.Printf("filtering done, %d of %d links kept", filtered.NumLinks(), ds.NumLinks())

	if *maskFilename != "" {
		err = writeNpyUint8(*maskFilename, maskToUint8(keep), []int{len(keep)})
		if err != nil {
			return 1
		}
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	log.Print("writing")
	err = WriteDataset(output, filtered)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	log.Print("writing done")
	return 0
}
