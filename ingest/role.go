// Package ingest implements the per-file workflow item: the role map
// that tracks a micrograph through scratch/stack/compress/export, the
// on_enter_<state> handlers that drive it, and the stacking rendez-vous
// that gathers N frames into one parent item.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ingest

// Role names one slot in an Item's path map. Every role but Unstacked
// holds at most one path, set exactly once per Item lifetime (LocalOriginal
// is the one exception: it is renamed to .orig during confirming, and the
// map entry is updated atomically with the rename).
type Role string

const (
	Original          Role = "original"
	LocalOriginal     Role = "local_original"
	LocalConverted    Role = "local_converted"
	LocalStack        Role = "local_stack"
	LocalCompressed   Role = "local_compressed"
	LocalUncompressed Role = "local_uncompressed"
	StorageFinal      Role = "storage_final"
)
