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

	log "github.com/sirupsen/logrus"
)

type mcpvalcmd struct{}

func (cmd *mcpvalcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	obsFilename := flags.String("obs", "", "observed statistic vector `file` (.npy)")
	nullFilename := flags.String("null", "", "null statistic matrix `file` (.npy, links × b)")
	alpha := flags.Float64("alpha", 0.05, "BH FDR threshold")
	initial := flags.Bool("initial", false, "rank against each link's own draws instead of the pooled null")
	pvalFilename := flags.String("output-pval", "mc_pval.npy", "output p-value `file` (.npy)")
	qvalFilename := flags.String("output-qval", "mc_qval.npy", "output q-value `file` (.npy)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *obsFilename == "" || *nullFilename == "" {
		err = fmt.Errorf("-obs and -null are required")
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	obs, obsShape, err := readNpyFloat32(*obsFilename)
	if err != nil {
		return 1
	}
	if len(obsShape) != 1 {
		err = fmt.Errorf("%s: want a 1-D observed vector, have shape %v", *obsFilename, obsShape)
		return 1
	}
	nullData, nullShape, err := readNpyFloat32(*nullFilename)
	if err != nil {
		return 1
	}
	if len(nullShape) != 2 {
		err = fmt.Errorf("%s: want a 2-D null matrix, have shape %v", *nullFilename, nullShape)
		return 1
	}
	null := &NullStats{N: nullShape[0], B: nullShape[1], Data: nullData}

	var pvals []float64
	if *initial {
		pvals, err = InitialMCPval(null, obs)
	} else {
		pvals, err = MCPval(null, obs)
	}
	if err != nil {
		return 1
	}
	qvals := BenjaminiHochberg(pvals)
	nsig := 0
	for _, q := range qvals {
		if q < *alpha {
			nsig++
		}
	}
	log.Printf("%d of %d links significant at q < %g", nsig, len(qvals), *alpha)

	err = writeNpyFloat64(*pvalFilename, pvals, []int{len(pvals)})
	if err != nil {
		return 1
	}
	err = writeNpyFloat64(*qvalFilename, qvals, []int{len(qvals)})
	if err != nil {
		return 1
	}
	return 0
}
