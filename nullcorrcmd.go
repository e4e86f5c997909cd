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
	"golang.org/x/exp/rand"
)

type nullcorrcmd struct {
	chunkArgs
}

func (cmd *nullcorrcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	controlsFilename := flags.String("controls", "", "control index matrix `file` (.npy, required for -strategy=matched)")
	strategy := flags.String("strategy", "matched", "null strategy: matched or permute")
	stat := flags.String("stat", "pearson", "null statistic: pearson or poisson")
	binarize := flags.Bool("binarize", false, "recode accessibility to 0/1 presence before fitting (poisson statistic)")
	onFail := flags.String("on-fail", "drop", "poisson fit failure policy: drop or zero")
	b := flags.Int("b", 200, "permutation draws per link (permute strategy)")
	seed := flags.Uint64("seed", 0, "random seed for permutations (0 = nondeterministic)")
	outputFilename := flags.String("o", "nullcorr.npy", "output null statistic matrix `file` (.npy, links × b)")
	cmd.chunkArgs.Flags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if err = cmd.chunkArgs.Check(); err != nil {
		return 2
	}
	strat, err := ParseNullStrategy(*strategy)
	if err != nil {
		return 2
	}
	nullStat, err := ParseNullStat(*stat)
	if err != nil {
		return 2
	}
	policy, err := ParsePoissonFailPolicy(*onFail)
	if err != nil {
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

	var draws *ControlDraws
	if strat == NullMatched {
		if *controlsFilename == "" {
			err = fmt.Errorf("-strategy=matched requires -controls")
			return 2
		}
		draws, err = readControls(*controlsFilename)
		if err != nil {
			return 1
		}
	}
	if *seed == 0 {
		*seed = rand.Uint64()
		log.Printf("seed %d", *seed)
	}

	acc, expr := ds.Acc, ds.Expr
	if nullStat == StatPoisson {
		// The poisson statistic fits on raw counts, like the observed
		// coefficients.
		acc, expr = ds.rawOr()
	}
	log.Printf("generating %s %s null for %d links in %d chunks", strat, nullStat, ds.NumLinks(), cmd.chunks)
	null, err := GenerateNull(acc, expr, draws, NullConfig{
		Strategy: strat,
		Stat:     nullStat,
		Draws:    *b,
		Chunks:   cmd.chunks,
		Threads:  cmd.threads,
		Seed:     *seed,
		Binarize: *binarize,
		OnFail:   policy,
	})
	if err != nil {
		return 1
	}

	err = writeNpyFloat32(*outputFilename, null.Data, []int{null.N, null.B})
	if err != nil {
		return 1
	}
	log.Print("done")
	return 0
}

func readControls(filename string) (*ControlDraws, error) {
	data, shape, err := readNpyInt32(filename)
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("%s: want a 2-D control index matrix, have shape %v", filename, shape)
	}
	draws := &ControlDraws{B: shape[1], Cols: make([]int, len(data))}
	for i, v := range data {
		draws.Cols[i] = int(v)
	}
	return draws, nil
}
