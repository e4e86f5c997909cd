// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

type cmdHandler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

var handlers = map[string]cmdHandler{
	"import":       &importer{},
	"stats":        &statscmd{},
	"filter":       &filtercmd{},
	"corr":         &corrcmd{},
	"controls":     &controlscmd{},
	"nullcorr":     &nullcorrcmd{},
	"poisson":      &poissoncmd{},
	"mcpval":       &mcpvalcmd{},
	"delta":        &deltacmd{},
	"export-numpy": &exportNumpy{},
}

func usage(prog string, stderr io.Writer) int {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(stderr, "usage: %s <command> [options]\n\ncommands:\n", prog)
	for _, name := range names {
		fmt.Fprintf(stderr, "  %s\n", name)
	}
	return 2
}

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	if len(os.Args) < 2 {
		os.Exit(usage(os.Args[0], os.Stderr))
	}
	h, ok := handlers[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: unrecognized command %q\n", os.Args[0], os.Args[1])
		os.Exit(usage(os.Args[0], os.Stderr))
	}
	os.Exit(h.RunCommand(os.Args[0]+" "+os.Args[1], os.Args[2:], os.Stdin, os.Stdout, os.Stderr))
}
