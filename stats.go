// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	log "github.com/sirupsen/logrus"
)

type statscmd struct{}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputFilename := flags.String("o", "-", "output `file`")
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
	bufw := bufio.NewWriter(output)
	err = doStats(ds, bufw)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

func doStats(ds *Dataset, output io.Writer) error {
	var ret struct {
		Cells          int
		Links          int
		Peaks          int
		AccNonzero     int
		ExprNonzero    int
		AccSparsity    float64
		ExprSparsity   float64
		HasRawLayers   bool
		CellTypeCounts map[string]int `json:",omitempty"`
	}
	ret.Cells = ds.NumCells()
	ret.Links = ds.NumLinks()
	ret.Peaks = len(ds.Peaks)
	ret.AccNonzero = ds.Acc.NNZ()
	ret.ExprNonzero = ds.Expr.NNZ()
	if total := ret.Cells * ret.Links; total > 0 {
		ret.AccSparsity = 1 - float64(ret.AccNonzero)/float64(total)
		ret.ExprSparsity = 1 - float64(ret.ExprNonzero)/float64(total)
	}
	ret.HasRawLayers = ds.AccRaw != nil && ds.ExprRaw != nil
	if len(ds.CellTypes) > 0 {
		ret.CellTypeCounts = map[string]int{}
		for _, ct := range ds.CellTypes {
			ret.CellTypeCounts[ct]++
		}
	}
	return json.NewEncoder(output).Encode(ret)
}
