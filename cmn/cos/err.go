// Package cos provides common low-level types and utilities shared by
// every package in the pipeline.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/matthutchison/cryoempipe/cmn/debug"
	"github.com/matthutchison/cryoempipe/cmn/nlog"
)

type (
	// ErrTransitionDenied is returned when a trigger fires from a state
	// not present in its allowed-source set. Per spec, this is logged at
	// info and dropped - it must never crash the process.
	ErrTransitionDenied struct {
		Trigger string
		From    string
	}

	// ErrVerificationMismatch covers size or hash disagreement while
	// confirming an exported artifact. Non-terminal: the caller re-probes.
	ErrVerificationMismatch struct {
		What string
	}

	// ErrDestinationExists is returned by SafeCopy when the destination
	// path is already occupied.
	ErrDestinationExists struct {
		Path string
	}

	// Errs is a bounded, de-duplicated multi-error accumulator: Add
	// keeps up to maxErrs distinct errors, and Error reports the first
	// plus a count of the rest.
	Errs struct {
		errs []error
		mu   sync.Mutex
	}
)

const maxErrs = 8

func (e *ErrTransitionDenied) Error() string {
	return fmt.Sprintf("transition %q denied from state %q", e.Trigger, e.From)
}

func (e *ErrVerificationMismatch) Error() string { return "verification mismatch: " + e.What }

func (e *ErrDestinationExists) Error() string { return e.Path + ": destination exists" }

// ExitStatusError wraps a non-zero external-command exit code as an
// error, for callers that only care that the command failed, not why.
type ExitStatusError int

func (e ExitStatusError) Error() string {
	return fmt.Sprintf("command exited %d", int(e))
}

func IsErrTransitionDenied(err error) bool {
	var e *ErrTransitionDenied
	return errors.As(err, &e)
}

func IsErrVerificationMismatch(err error) bool {
	var e *ErrVerificationMismatch
	return errors.As(err, &e)
}

func IsErrDestinationExists(err error) bool {
	var e *ErrDestinationExists
	return errors.As(err, &e)
}

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *Errs) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return ""
	}
	if len(e.errs) == 1 {
		return e.errs[0].Error()
	}
	return fmt.Sprintf("%v (and %d more error(s))", e.errs[0], len(e.errs)-1)
}

// fatal: unhandled exception in a handler - propagate and crash the
// process. The operator is expected to restart the daemon.

const fatalPrefix = "FATAL ERROR: "

func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.Errorf("%s", msg)
		nlog.Flush()
	}
	exit(msg)
}

func ExitLog(a ...any) {
	msg := fatalPrefix + fmt.Sprint(a...)
	if flag.Parsed() {
		nlog.Errorf("%s", msg)
		nlog.Flush()
	}
	exit(msg)
}

func exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
