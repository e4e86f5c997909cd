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

	"github.com/james-bowman/sparse"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputDir := flags.String("output-dir", ".", "output `directory`")
	raw := flags.Bool("raw", false, "export the raw count layers instead of the normalized layers")
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

	acc, expr := ds.Acc, ds.Expr
	if *raw {
		acc, expr = ds.rawOr()
	}
	for _, m := range []struct {
		name string
		mtx  *sparse.CSC
	}{
		{"acc.npy", acc},
		{"expr.npy", expr},
	} {
		rows, cols := m.mtx.Dims()
		log.Printf("writing %s: %d rows, %d cols", m.name, rows, cols)
		err = writeNpyFloat64(*outputDir+"/"+m.name, cscToDense(m.mtx), []int{rows, cols})
		if err != nil {
			return 1
		}
	}
	log.Print("done")
	return 0
}

func writeNpyFloat64(filename string, data []float64, shape []int) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = shape
	if err = npw.WriteFloat64(data); err != nil {
		return err
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeNpyFloat32(filename string, data []float32, shape []int) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = shape
	if err = npw.WriteFloat32(data); err != nil {
		return err
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeNpyInt32(filename string, data []int32, shape []int) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = shape
	if err = npw.WriteInt32(data); err != nil {
		return err
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeNpyUint8(filename string, data []uint8, shape []int) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = shape
	if err = npw.WriteUint8(data); err != nil {
		return err
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func maskToUint8(mask []bool) []uint8 {
	out := make([]uint8, len(mask))
	for i, m := range mask {
		if m {
			out[i] = 1
		}
	}
	return out
}

func readNpyFloat32(filename string) ([]float32, []int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	npy, err := gonpy.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	data, err := npy.GetFloat32()
	if err != nil {
		var f64 []float64
		f64, err = npy.GetFloat64()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", filename, err)
		}
		data = make([]float32, len(f64))
		for i, v := range f64 {
			data[i] = float32(v)
		}
	}
	return data, npy.Shape, nil
}

func readNpyInt32(filename string) ([]int32, []int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	npy, err := gonpy.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	data, err := npy.GetInt32()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	return data, npy.Shape, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
