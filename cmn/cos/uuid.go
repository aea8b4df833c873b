// Package cos - short, collision-resistant opaque IDs.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"sync"
	"time"

	"github.com/teris-io/shortid"
)

const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

func initSID() {
	sid = shortid.MustNew(1 /*worker*/, uuidABC, uint64(time.Now().UnixNano()))
}

// GenRunID returns a new short opaque identifier on every call (never
// parsed back). config.DefaultPath uses it as a fallback project name.
func GenRunID() string {
	sidOnce.Do(initSID)
	return sid.MustGenerate()
}
