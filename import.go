// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"

	"github.com/james-bowman/sparse"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// importer assembles a dataset from the ingestion collaborator's output:
// dense .npy matrices already row-aligned by cell and column-aligned by
// link, a link table, and per-peak GC content. Pairing peaks to genes is
// the collaborator's job; import only checks and packs.
type importer struct{}

func (cmd *importer) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	accFilename := flags.String("acc", "", "accessibility matrix `file` (.npy, cells × links)")
	exprFilename := flags.String("expr", "", "expression matrix `file` (.npy, cells × links)")
	accRawFilename := flags.String("acc-raw", "", "raw accessibility counts `file` (.npy, optional)")
	exprRawFilename := flags.String("expr-raw", "", "raw expression counts `file` (.npy, optional)")
	linksFilename := flags.String("links", "", "link table `file` (tsv: peak_id, gene_id)")
	peaksFilename := flags.String("peaks", "", "peak table `file` (tsv: peak_id, gc_fraction)")
	celltypesFilename := flags.String("celltypes", "", "cell type labels `file` (one per line, optional)")
	outputFilename := flags.String("o", "-", "output dataset `file`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *accFilename == "" || *exprFilename == "" || *linksFilename == "" || *peaksFilename == "" {
		err = fmt.Errorf("-acc, -expr, -links, and -peaks are required")
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	log.Print("reading matrices")
	acc, err := readNpyCSC(*accFilename)
	if err != nil {
		return 1
	}
	expr, err := readNpyCSC(*exprFilename)
	if err != nil {
		return 1
	}
	var accRaw, exprRaw *sparse.CSC
	if *accRawFilename != "" {
		accRaw, err = readNpyCSC(*accRawFilename)
		if err != nil {
			return 1
		}
	}
	if *exprRawFilename != "" {
		exprRaw, err = readNpyCSC(*exprRawFilename)
		if err != nil {
			return 1
		}
	}

	log.Print("reading tables")
	gc, err := readPeakTable(*peaksFilename)
	if err != nil {
		return 1
	}
	links, peaks, err := readLinkTable(*linksFilename, gc)
	if err != nil {
		return 1
	}
	var celltypes []string
	if *celltypesFilename != "" {
		celltypes, err = readLines(*celltypesFilename)
		if err != nil {
			return 1
		}
	}

	ds := &Dataset{
		Acc:       acc,
		Expr:      expr,
		AccRaw:    accRaw,
		ExprRaw:   exprRaw,
		Links:     links,
		Peaks:     peaks,
		CellTypes: celltypes,
	}
	if err = ds.Validate(); err != nil {
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
	log.Printf("writing dataset: %d cells, %d links, %d peaks", ds.NumCells(), ds.NumLinks(), len(ds.Peaks))
	err = WriteDataset(output, ds)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	log.Print("done")
	return 0
}

func readNpyCSC(filename string) (*sparse.CSC, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	npy, err := gonpy.NewReader(bufio.NewReaderSize(f, 1<<22))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if len(npy.Shape) != 2 {
		return nil, fmt.Errorf("%s: want a 2-D matrix, have shape %v", filename, npy.Shape)
	}
	rows, cols := npy.Shape[0], npy.Shape[1]
	data, err := npy.GetFloat64()
	if err != nil {
		var f32 []float32
		f32, err = npy.GetFloat32()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		data = make([]float64, len(f32))
		for i, v := range f32 {
			data[i] = float64(v)
		}
	}
	return cscFromDense(rows, cols, data)
}

func readPeakTable(filename string) (map[string]float64, error) {
	lines, err := readLines(filename)
	if err != nil {
		return nil, err
	}
	gc := map[string]float64{}
	for ln, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s line %d: want 2 fields, have %d", filename, ln+1, len(fields))
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, ln+1, err)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%s line %d: GC fraction %g outside [0,1]", filename, ln+1, v)
		}
		gc[fields[0]] = v
	}
	return gc, nil
}

func readLinkTable(filename string, gc map[string]float64) ([]Link, []PeakInfo, error) {
	lines, err := readLines(filename)
	if err != nil {
		return nil, nil, err
	}
	var links []Link
	var peaks []PeakInfo
	peakIdx := map[string]int{}
	for ln, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("%s line %d: want 2 fields, have %d", filename, ln+1, len(fields))
		}
		peakID, geneID := fields[0], fields[1]
		k, ok := peakIdx[peakID]
		if !ok {
			frac, ok := gc[peakID]
			if !ok {
				return nil, nil, fmt.Errorf("%s line %d: peak %q missing from peak table", filename, ln+1, peakID)
			}
			k = len(peaks)
			peakIdx[peakID] = k
			// The first link column carrying this peak is its
			// representative column.
			peaks = append(peaks, PeakInfo{ID: peakID, GC: frac, Col: len(links)})
		}
		links = append(links, Link{PeakID: peakID, GeneID: geneID, Peak: k})
	}
	return links, peaks, nil
}

func readLines(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
