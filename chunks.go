// Copyright (C) The Peaklink Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peaklink

import (
	"flag"
	"fmt"
	"runtime"
)

// chunkArgs carries the chunk-count/thread flags shared by the commands
// that fan the feature axis out over workers.
type chunkArgs struct {
	chunks  int
	threads int
}

func (c *chunkArgs) Flags(flags *flag.FlagSet) {
	flags.IntVar(&c.chunks, "chunks", 16, "partition the feature axis into `N` chunks")
	flags.IntVar(&c.threads, "threads", runtime.GOMAXPROCS(0), "process up to `N` chunks concurrently")
}

func (c *chunkArgs) Check() error {
	if c.chunks < 1 || c.threads < 1 {
		return fmt.Errorf("chunks (%d) and threads (%d) must be positive", c.chunks, c.threads)
	}
	return nil
}

type span struct{ start, end int }

// chunkSpans splits [0,n) into at most chunks contiguous spans of
// near-equal size, in order. Fixed count, not fixed size: the per-chunk
// dense scratch stays proportional to n/chunks.
func chunkSpans(n, chunks int) []span {
	if chunks > n {
		chunks = n
	}
	if chunks < 1 {
		chunks = 1
	}
	spans := make([]span, 0, chunks)
	size := (n + chunks - 1) / chunks
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, span{start, end})
	}
	return spans
}
