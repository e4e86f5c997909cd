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

type controlscmd struct{}

func (cmd *controlscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputFilename := flags.String("o", "controls.npy", "output control index matrix `file` (.npy, links × b)")
	b := flags.Int("b", 200, "control draws per link")
	mfaBins := flags.Int("mfa-bins", DefaultBinConfig.MFABins, "mean accessibility bins")
	gcBins := flags.Int("gc-bins", DefaultBinConfig.GCBins, "GC content bins (0 = skip GC)")
	seed := flags.Uint64("seed", 0, "random seed (0 = nondeterministic)")
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

	if *seed == 0 {
		*seed = rand.Uint64()
		log.Printf("seed %d", *seed)
	}
	log.Printf("sampling %d controls per link, %d links, %d distinct peaks", *b, ds.NumLinks(), len(ds.Peaks))
	draws, err := SampleControls(ds, BinConfig{MFABins: *mfaBins, GCBins: *gcBins}, *b, rand.NewSource(*seed))
	if err != nil {
		return 1
	}

	out := make([]int32, len(draws.Cols))
	for i, c := range draws.Cols {
		out[i] = int32(c)
	}
	err = writeNpyInt32(*outputFilename, out, []int{draws.NumLinks(), draws.B})
	if err != nil {
		return 1
	}
	log.Print("done")
	return 0
}
