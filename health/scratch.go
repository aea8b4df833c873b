// Package health polls host-level I/O counters and logs them - the
// pipeline never gates admission on host health - the ingest loop does
// no load-shedding - this is purely an observability aid for an
// operator watching the scratch filesystem during a large acquisition.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package health

import (
	"time"

	"github.com/lufia/iostat"

	"github.com/matthutchison/cryoempipe/cmn/nlog"
)

// ScratchMonitor periodically samples disk I/O counters and logs
// throughput for the device backing local_root, at debug level normally
// and at warning once a configured byte/sec threshold is exceeded.
type ScratchMonitor struct {
	Device             string        // disk device name backing local_root, as reported by iostat
	Interval           time.Duration
	WarnBytesPerSecond float64

	stop chan struct{}
}

// NewScratchMonitor constructs a monitor for device, sampled every
// interval, warning once throughput crosses warnBytesPerSecond.
func NewScratchMonitor(device string, interval time.Duration, warnBytesPerSecond float64) *ScratchMonitor {
	return &ScratchMonitor{
		Device:             device,
		Interval:           interval,
		WarnBytesPerSecond: warnBytesPerSecond,
		stop:               make(chan struct{}),
	}
}

// Run samples on Interval until Stop is called. Intended to run on its
// own goroutine - it never touches the scheduler or the registry, so it
// has no serialization requirement with the rest of the pipeline.
func (m *ScratchMonitor) Run() {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	var prev *iostat.DriveStats
	var prevAt time.Time
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			cur, err := m.sample()
			if err != nil {
				nlog.Warningf("health: reading iostat for %s: %v", m.Device, err)
				continue
			}
			if prev != nil {
				m.report(prev, cur, now.Sub(prevAt))
			}
			prev, prevAt = cur, now
		}
	}
}

// Stop ends the sampling loop.
func (m *ScratchMonitor) Stop() { close(m.stop) }

func (m *ScratchMonitor) sample() (*iostat.DriveStats, error) {
	drives, err := iostat.ReadDriveStats()
	if err != nil {
		return nil, err
	}
	for _, d := range drives {
		if d.Name == m.Device {
			return d, nil
		}
	}
	return nil, errUnknownDevice(m.Device)
}

func (m *ScratchMonitor) report(prev, cur *iostat.DriveStats, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	deltaBytes := float64((cur.BytesRead + cur.BytesWritten) - (prev.BytesRead + prev.BytesWritten))
	rate := rateBytesPerSecond(deltaBytes, elapsed)
	if rate >= m.WarnBytesPerSecond {
		nlog.Warningf("health: %s sustained %.0f bytes/sec (threshold %.0f)", m.Device, rate, m.WarnBytesPerSecond)
		return
	}
	nlog.Debugf("health: %s at %.0f bytes/sec", m.Device, rate)
}

// rateBytesPerSecond is split out as a pure function for testability.
func rateBytesPerSecond(deltaBytes float64, elapsed time.Duration) float64 {
	return deltaBytes / elapsed.Seconds()
}

type errUnknownDevice string

func (e errUnknownDevice) Error() string { return "unknown device: " + string(e) }
