// Package debug provides no-op assertion hooks. No build variant enables
// them; they are kept as a seam for local development.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

// Assert is a no-op in production builds; it exists so call sites read
// naturally and can be backed by a real assertion in a future
// debug-tagged build without touching callers.
func Assert(_ bool, _ ...any) {}

