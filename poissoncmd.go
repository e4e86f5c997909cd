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

type poissoncmd struct{}

func (cmd *poissoncmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputFilename := flags.String("o", "poisson.npy", "output coefficient `file` (.npy)")
	binarize := flags.Bool("binarize", false, "recode accessibility to 0/1 presence before fitting")
	onFail := flags.String("on-fail", "drop", "fit failure policy: drop or zero")
	failedFilename := flags.String("output-failed", "", "write failed link indices to `file` (csv)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
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

	log.Printf("fitting Poisson coefficients for %d links", ds.NumLinks())
	res, err := PoissonCoeffs(ds, *binarize, policy)
	if err != nil {
		return 1
	}
	if len(res.Failed) > 0 {
		log.Printf("%d of %d fits failed (policy %s)", len(res.Failed), ds.NumLinks(), *onFail)
	}

	err = writeNpyFloat64(*outputFilename, res.Coeff, []int{len(res.Coeff)})
	if err != nil {
		return 1
	}
	if *failedFilename != "" {
		err = writeFailedCSV(*failedFilename, ds, res.Failed)
		if err != nil {
			return 1
		}
	}
	log.Print("done")
	return 0
}

func writeFailedCSV(filename string, ds *Dataset, failed []int) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"link", "peak", "gene"}); err != nil {
		return err
	}
	for _, i := range failed {
		err := w.Write([]string{strconv.Itoa(i), ds.Links[i].PeakID, ds.Links[i].GeneID})
		if err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
