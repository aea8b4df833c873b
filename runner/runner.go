// Package runner executes the external commands the pipeline depends on
// (cp, shasum, lbzip2, newstack, globus, the analysis CLI) and exposes a
// couple of derived operations built on top of them.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package runner

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/matthutchison/cryoempipe/cmn/nlog"
)

// notFoundExitCode is returned in place of a Go error when the target
// binary itself could not be started (missing, not executable). Per
// this must surface as a non-zero exit code / stderr, never as a
// pipeline-fatal error - 127 matches the POSIX shell convention for
// "command not found".
const notFoundExitCode = 127

// RunAndWait launches argv, waits for it to exit, and returns its exit
// code. argv is executed literally - no shell interpretation.
func RunAndWait(ctx context.Context, argv []string) (exitCode int, err error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	runErr := cmd.Run()
	exitCode, err = classify(runErr)
	logResult(argv, exitCode, err)
	return exitCode, err
}

// RunAndCapture launches argv and returns everything written to stdout
// and stderr, regardless of exit status.
func RunAndCapture(ctx context.Context, argv []string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var outBuf, errBuf bytes.Buffer

	outPipe, perr := cmd.StdoutPipe()
	if perr != nil {
		return nil, nil, errors.Wrap(perr, "stdout pipe")
	}
	errPipe, perr := cmd.StderrPipe()
	if perr != nil {
		return nil, nil, errors.Wrap(perr, "stderr pipe")
	}

	if err = cmd.Start(); err != nil {
		logResult(argv, notFoundExitCode, nil)
		return nil, []byte(err.Error()), nil
	}

	var g errgroup.Group
	g.Go(func() error { _, e := outBuf.ReadFrom(outPipe); return e })
	g.Go(func() error { _, e := errBuf.ReadFrom(errPipe); return e })
	if gerr := g.Wait(); gerr != nil {
		return nil, nil, errors.Wrap(gerr, "draining command output")
	}

	waitErr := cmd.Wait()
	exitCode, err := classify(waitErr)
	logResult(argv, exitCode, err)
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// classify turns cmd.Run()/cmd.Wait()'s error into (exitCode, err) per
// the contract above: a launch failure becomes a synthetic non-zero exit
// code, never a returned error.
func classify(runErr error) (int, error) {
	if runErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	// binary not found, permission denied, etc.
	return notFoundExitCode, nil
}

func logResult(argv []string, exitCode int, err error) {
	if err != nil {
		nlog.Warningf("command failed to start %v: %v", argv, err)
		return
	}
	if exitCode != 0 {
		nlog.Warningf("command exited %d: %v", exitCode, argv)
		return
	}
	nlog.Debugf("command completed: %v", argv)
}
