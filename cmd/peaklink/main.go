// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/peaklab/peaklink"
)

func main() {
	peaklink.Main()
}
