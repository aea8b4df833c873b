// Package mono provides a monotonic clock reference for interval
// bookkeeping (log flush intervals, monitor quiescence, retry timers).
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// epoch anchors NanoTime() at process start so callers can keep working
// with plain int64 deltas the way the original runtime.nanotime-based
// implementation did, without reaching for the runtime linkname trick.
var epoch = time.Now()

// NanoTime returns nanoseconds elapsed since process start. Only ever
// compare two NanoTime() values against each other.
func NanoTime() int64 { return time.Since(epoch).Nanoseconds() }

// Since is a convenience wrapper returning a time.Duration from a prior
// NanoTime() reading.
func Since(start int64) time.Duration { return time.Duration(NanoTime() - start) }
