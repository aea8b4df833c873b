// Package nlog is the pipeline daemon's logger: leveled, buffered,
// periodically flushed to a file, with a stderr fallback before flags are
// parsed or when -logtostderr is set.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/matthutchison/cryoempipe/cmn/mono"
)

type severity int

const (
	sevDebug severity = iota
	sevInfo
	sevWarn
	sevErr
)

func (s severity) String() string {
	switch s {
	case sevDebug:
		return "DEBUG"
	case sevInfo:
		return "INFO"
	case sevWarn:
		return "WARNING"
	default:
		return "ERROR"
	}
}

const flushInterval = 5 * time.Second

var (
	mu           sync.Mutex
	buf          []string
	file         *os.File
	last         int64
	toStderr     bool
	alsoToStderr bool
	verbose      bool
)

// InitFlags registers the standard logtostderr/alsologtostderr/verbose
// flag set.
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
	flset.BoolVar(&verbose, "v", false, "log debug-level messages")
}

// SetPre opens (creating if necessary) the log file <dir>/<title>.log that
// subsequent writes are buffered into.
func SetPre(dir, title string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, title+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	mu.Lock()
	file = f
	mu.Unlock()
	return nil
}

func log(sev severity, format string, args ...any) {
	msg := fmt.Sprintf("%s %s %s\n", time.Now().Format("2006-01-02T15:04:05.000Z07:00"), sev, fmt.Sprintf(format, args...))
	switch {
	case !flag.Parsed(), toStderr:
		os.Stderr.WriteString(msg)
		return
	case alsoToStderr || sev >= sevWarn:
		os.Stderr.WriteString(msg)
	}
	mu.Lock()
	buf = append(buf, msg)
	due := mono.Since(last) > flushInterval
	mu.Unlock()
	if due || sev >= sevWarn {
		Flush()
	}
}

func Debugf(format string, args ...any) {
	if verbose {
		log(sevDebug, format, args...)
	}
}
func Infof(format string, args ...any)    { log(sevInfo, format, args...) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }
func Errorf(format string, args ...any)   { log(sevErr, format, args...) }

// Flush drains the in-memory buffer to the open log file, if any.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	last = mono.NanoTime()
	if file == nil || len(buf) == 0 {
		return
	}
	for _, line := range buf {
		file.WriteString(line)
	}
	buf = buf[:0]
	file.Sync()
}
