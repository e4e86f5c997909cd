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

	log "github.com/sirupsen/logrus"
)

type deltacmd struct {
	chunkArgs
}

func (cmd *deltacmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	controlsFilename := flags.String("controls", "", "control index matrix `file` (.npy, over the full link set)")
	celltype := flags.String("celltype", "", "cell type label to test against its complement")
	alpha := flags.Float64("alpha", 0.05, "BH FDR threshold")
	minPct := flags.Float64("min-pct", 0.05, "low-expression filter: minimum nonzero fraction within the cell type")
	minMean := flags.Float64("min-mean", 0, "low-expression filter: minimum absolute mean within the cell type")
	outputDir := flags.String("output-dir", ".", "output `directory`")
	cmd.chunkArgs.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *celltype == "" || *controlsFilename == "" {
		err = fmt.Errorf("-celltype and -controls are required")
		return 2
	}
	if err = cmd.chunkArgs.Check(); err != nil {
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
	draws, err := readControls(*controlsFilename)
	if err != nil {
		return 1
	}

	log.Printf("delta test for %q over %d links", *celltype, ds.NumLinks())
	res, err := DeltaCorr(ds, *celltype, draws, DeltaConfig{
		Alpha:   *alpha,
		MinPct:  *minPct,
		MinMean: *minMean,
		Chunks:  cmd.chunks,
		Threads: cmd.threads,
	})
	if err != nil {
		return 1
	}
	nsig := 0
	for _, r := range res.Test.Reject {
		if r {
			nsig++
		}
	}
	log.Printf("%d links kept in stratum, %d significant at q < %g", len(res.Delta), nsig, *alpha)

	for _, out := range []struct {
		name  string
		write func(string) error
	}{
		{"delta_keep.npy", func(fn string) error {
			return writeNpyUint8(fn, maskToUint8(res.Keep), []int{len(res.Keep)})
		}},
		{"delta_corr.npy", func(fn string) error {
			return writeNpyFloat32(fn, res.Delta, []int{len(res.Delta)})
		}},
		{"delta_control_corr.npy", func(fn string) error {
			return writeNpyFloat32(fn, res.Null.Data, []int{res.Null.N, res.Null.B})
		}},
		{"delta_mc_pval.npy", func(fn string) error {
			return writeNpyFloat64(fn, res.Test.Pval, []int{len(res.Test.Pval)})
		}},
		{"delta_mc_qval.npy", func(fn string) error {
			return writeNpyFloat64(fn, res.Test.Qval, []int{len(res.Test.Qval)})
		}},
	} {
		if err = out.write(*outputDir + "/" + out.name); err != nil {
			return 1
		}
	}
	log.Print("done")
	return 0
}
