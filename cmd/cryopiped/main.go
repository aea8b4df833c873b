// Package cryopiped is the cryo-EM acquisition-station ingestion daemon.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/matthutchison/cryoempipe/cmn/cos"
	"github.com/matthutchison/cryoempipe/cmn/nlog"
	"github.com/matthutchison/cryoempipe/config"
	"github.com/matthutchison/cryoempipe/health"
	"github.com/matthutchison/cryoempipe/pipeline"
	"github.com/matthutchison/cryoempipe/stats"
)

// defaultMonitorWalltime matches FilePatternMonitor's walltime default in
// the source this was ported from: 12 hours of staging-directory
// inactivity before the ingest loop treats the run as finished.
const defaultMonitorWalltime = 12 * time.Hour

var (
	configPath string
	logDir     string
	metricAddr string

	scratchDevice          string
	scratchInterval        time.Duration
	scratchWarnBytesPerSec float64
)

func init() {
	flag.StringVar(&configPath, "config", "", "path to the project's JSON configuration file")
	flag.StringVar(&logDir, "logdir", "/var/log/cryopiped", "directory for the daemon's log file")
	flag.StringVar(&metricAddr, "metrics", ":9420", "address to serve /metrics and /status on; empty disables")
	flag.StringVar(&scratchDevice, "scratch-device", "", "disk device backing local_root to sample via iostat; empty disables scratch health monitoring")
	flag.DurationVar(&scratchInterval, "scratch-interval", 30*time.Second, "sampling interval for scratch disk health monitoring")
	flag.Float64Var(&scratchWarnBytesPerSec, "scratch-warn-bytes-per-sec", 5e7, "throughput, in bytes/sec, above which scratch health monitoring logs a warning")
	nlog.InitFlags(flag.CommandLine)
}

func main() {
	installSignalHandler()
	flag.Parse()

	if configPath == "" {
		cos.ExitLogf("missing -config: path to the project's JSON configuration file")
	}
	conf := config.New()
	if err := conf.Load(configPath); err != nil {
		cos.ExitLogf("failed to load configuration from %q: %v", configPath, err)
	}
	if !conf.ValidateAll() {
		cos.ExitLogf("configuration at %q failed validation, see warnings above", configPath)
	}

	projectName := conf.Options["project_name"].(string)
	if err := nlog.SetPre(logDir, projectName); err != nil {
		cos.ExitLogf("failed to set up logging in %q: %v", logDir, err)
	}

	metrics := stats.New()
	if metricAddr != "" {
		srv := stats.NewServer(metrics)
		go func() {
			if err := srv.ListenAndServe(metricAddr); err != nil {
				nlog.Errorf("metrics server exited: %v", err)
			}
		}()
	}
	if scratchDevice != "" {
		mon := health.NewScratchMonitor(scratchDevice, scratchInterval, scratchWarnBytesPerSec)
		go mon.Run()
	}

	proj := buildProject(conf, projectName, metrics)
	nlog.Infof("%s: starting ingestion", projectName)
	if err := proj.Start(); err != nil {
		cos.ExitLogf("%s: fatal: %v", projectName, err)
	}
}

func buildProject(conf *config.Config, projectName string, metrics *stats.Registry) *pipeline.Project {
	frames := 1
	if f, ok := conf.Options["frames"].(float64); ok && f > 0 {
		frames = int(f)
	}
	scipionConfigPath, _ := conf.Options["scipion_config_path"].(string)
	sourceRoot, _ := conf.Options["source_root"].(string)
	sourcePattern, _ := conf.Options["source_pattern"].(string)

	paths := pipeline.Paths{
		SourceRoot:        sourceRoot,
		LocalRoot:         conf.Options["local_root"].(string),
		StorageRoot:       conf.Options["storage_root"].(string),
		ScipionConfigPath: scipionConfigPath,
	}
	if globusRoot, _ := conf.Options["globus_root"].(string); globusRoot != "" {
		paths.GlobusRoot = filepath.Join(globusRoot, projectName)
	}
	walltime := defaultMonitorWalltime
	if w, ok := conf.Options["source_idle_timeout_seconds"].(float64); ok && w > 0 {
		walltime = time.Duration(w) * time.Second
	}
	return pipeline.New(projectName, paths, frames, sourcePattern, true, walltime, metrics)
}

func installSignalHandler() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		nlog.Infof("received %v, flushing logs and exiting", sig)
		nlog.Flush()
		time.Sleep(100 * time.Millisecond)
		os.Exit(0)
	}()
}
