// Package fname contains filename constants and well-known subdirectory
// names used across the pipeline.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package fname

const (
	// StackDir is the scratch subdirectory holding parent stack items
	// (local_root/stack), created only when frames > 1.
	StackDir = "stack"

	// ProcessingIndex is the completion-indicator file read by the
	// `processing` state's on-enter handler: <webroot>/<project>/index.html.
	ProcessingIndex = "index.html"

	// OrigSuffix replaces local_original's extension during confirming, once
	// the original scratch copy is retired in favor of the uncompressed
	// re-expansion used for the hash comparison.
	OrigSuffix = ".orig"
)

const (
	// DefaultConfigName is the conventional pipeline config file name.
	// config.Load takes explicit paths and does not consult it;
	// config.DefaultPath spells out "<project>-cryoempipe.json" itself.
	DefaultConfigName = "cryoempipe.json"
)
