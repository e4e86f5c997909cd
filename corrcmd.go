// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
)

type corrcmd struct{}

func (cmd *corrcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputFilename := flags.String("o", "corr.npy", "output correlation `file` (.npy)")
	varFilter := flags.Bool("var-filter", false, "drop links where either side has near-zero variance")
	maskFilename := flags.String("output-mask", "", "write the variance keep mask to `file` (.npy, requires -var-filter)")
	csvFilename := flags.String("output-csv", "", "also write per-link correlations to `file` (csv)")
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
	ds, err := ReadDataset(input)
	if err != nil {
		return 1
	}

	log.Printf("computing correlations for %d links", ds.NumLinks())
	corr, keep, err := PearsonCorrSparse(ds.Acc, ds.Expr, *varFilter)
	if err != nil {
		return 1
	}
	if *varFilter {
		log.Printf("%d of %d links kept", len(corr), ds.NumLinks())
	}

	err = writeNpyFloat32(*outputFilename, corr, []int{len(corr)})
	if err != nil {
		return 1
	}
	if *maskFilename != "" {
		if keep == nil {
			err = fmt.Errorf("-output-mask requires -var-filter")
			return 2
		}
		err = writeNpyUint8(*maskFilename, maskToUint8(keep), []int{len(keep)})
		if err != nil {
			return 1
		}
	}
	if *csvFilename != "" {
		err = writeCorrCSV(*csvFilename, ds, corr, keep)
		if err != nil {
			return 1
		}
	}
	log.Print("done")
	return 0
}

func writeCorrCSV(filename string, ds *Dataset, corr []float32, keep []bool) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"peak", "gene", "corr"}); err != nil {
		return err
	}
	next := 0
	for i, l := range ds.Links {
		if keep != nil && !keep[i] {
			continue
		}
		err := w.Write([]string{l.PeakID, l.GeneID, strconv.FormatFloat(float64(corr[next]), 'g', -1, 32)})
		if err != nil {
			return err
		}
		next++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
