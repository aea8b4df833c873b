// Package monitor implements the lazy, restartable source of
// "newly-appeared" staging-directory paths.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package monitor

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/karrick/godirwalk"

	"github.com/matthutchison/cryoempipe/cmn/mono"
)

// Monitor is a sorted, duplicate-suppressing source of paths matching a
// glob pattern under a root directory. Each Pull reports only paths not
// previously reported. A pull issued once the directory has been quiet
// for longer than Walltime reports done=true instead of a path list -
// the end-of-stream signal that terminates the ingest loop.
type Monitor struct {
	Root      string        // directory to scan
	Pattern   string        // glob pattern, matched against the basename
	Recursive bool
	Walltime  time.Duration // 0 means "end immediately unless just-changed"

	mu       sync.Mutex
	old      map[string]struct{} // matched set as of the previous pull
	baseTime int64               // mono.NanoTime() of last non-empty pull
}

// New constructs a Monitor anchored at "now".
func New(root, pattern string, recursive bool, walltime time.Duration) *Monitor {
	return &Monitor{
		Root:      root,
		Pattern:   pattern,
		Recursive: recursive,
		Walltime:  walltime,
		old:       make(map[string]struct{}),
		baseTime:  mono.NanoTime(),
	}
}

// Pull returns the sorted set of paths that have appeared since the last
// call, or done=true if the monitor has been quiet past its walltime.
//
// A path is "new" iff it is absent from the previous pull's matched set -
// not from the all-time history. A path that disappears and reappears is
// therefore reported again; the
// set is replaced, not accumulated, each pull.
func (m *Monitor) Pull() (paths []string, done bool, err error) {
	m.mu.Lock()
	expired := mono.Since(m.baseTime) > m.Walltime
	m.mu.Unlock()
	if expired {
		return nil, true, nil
	}
	matched, err := m.scan()
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]struct{}, len(matched))
	fresh := make([]string, 0, len(matched))
	for _, p := range matched {
		next[p] = struct{}{}
		if _, ok := m.old[p]; !ok {
			fresh = append(fresh, p)
		}
	}
	m.old = next
	sort.Strings(fresh)
	if len(fresh) > 0 {
		m.baseTime = mono.NanoTime()
	}
	return fresh, false, nil
}

// scan walks Root (recursively, if configured) collecting paths whose
// basename matches Pattern. godirwalk is used instead of filepath.Walk
// for constant-memory traversal of the staging tree, which in production
// is an NFS mount that can hold tens of thousands of micrographs.
func (m *Monitor) scan() ([]string, error) {
	var matched []string
	if !m.Recursive {
		entries, err := godirwalk.ReadDirents(m.Root, nil)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			full := filepath.Join(m.Root, e.Name())
			if ok, _ := filepath.Match(m.Pattern, e.Name()); ok {
				matched = append(matched, full)
			}
		}
		return matched, nil
	}

	err := godirwalk.Walk(m.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match(m.Pattern, filepath.Base(path)); ok {
				matched = append(matched, path)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}
