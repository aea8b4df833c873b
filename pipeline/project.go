// Package pipeline owns the scheduler, monitor, registry, and path
// roots for one project run and drives the ingest loop and the periodic
// transfer loop.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matthutchison/cryoempipe/cmn/cos"
	"github.com/matthutchison/cryoempipe/cmn/fname"
	"github.com/matthutchison/cryoempipe/cmn/nlog"
	"github.com/matthutchison/cryoempipe/ingest"
	"github.com/matthutchison/cryoempipe/monitor"
	"github.com/matthutchison/cryoempipe/runner"
	"github.com/matthutchison/cryoempipe/sched"
	"github.com/matthutchison/cryoempipe/stats"
	"github.com/matthutchison/cryoempipe/xact"
)

const (
	// defaultGlobusRoot is the remote-sync destination prefix, matching
	// the original project's GLOBUS_ROOT constant.
	defaultGlobusRoot = "/mnt/NCEF-CryoEM/"

	atcEndpoint  = "67dace28-311f-11e8-b8f8-0ac6873fc732"
	moabEndpoint = "dabdccc3-6d04-11e5-ba46-22000b92c6ec"

	defaultMinImportInterval = 45 * time.Second
	transferPreWait          = 1800 * time.Second
	scipionBootstrapDelay    = 60 * time.Second
	betweenPullsDelay        = 2 * time.Second
	statsRefreshInterval     = 30 * time.Second

	// webRoot is the completion-index base directory written by the
	// downstream analysis tool.
	webRoot = "/var/www/scipion"
)

// Paths holds every root directory a Project needs.
type Paths struct {
	SourceRoot        string // acquisition station staging directory, watched by the monitor
	LocalRoot         string // scratch import/convert/stack/compress root
	StorageRoot       string // durable export destination
	GlobusRoot        string
	ScipionConfigPath string // empty means "no scipion bootstrap"
}

// Project is the per-run supervisor: one Monitor, one Scheduler, one
// Registry, and the root paths every Item's handlers read from.
type Project struct {
	Name       string
	Paths      Paths
	frameCount int

	monitor  *monitor.Monitor
	sched    *sched.Scheduler
	registry *ingest.Registry
	metrics  *stats.Registry

	minImportInterval time.Duration
}

// New constructs a Project. pattern/recursive/walltime configure the
// file-pattern monitor watching paths.SourceRoot; frames < 1 is treated
// as 1.
func New(name string, paths Paths, frames int, pattern string, recursive bool, walltime time.Duration, metrics *stats.Registry) *Project {
	if frames < 1 {
		frames = 1
	}
	if paths.GlobusRoot == "" {
		paths.GlobusRoot = filepath.Join(defaultGlobusRoot, name)
	}
	return &Project{
		Name:       name,
		Paths:      paths,
		frameCount: frames,
		monitor:    monitor.New(paths.SourceRoot, pattern, recursive, walltime),
		sched:      sched.New(),
		registry:   ingest.NewRegistry(),
		metrics:    metrics,
	}
}

// --- ingest.Host ---

func (p *Project) LocalRoot() string   { return p.Paths.LocalRoot }
func (p *Project) StorageRoot() string { return p.Paths.StorageRoot }
func (p *Project) Frames() int         { return p.frameCount }
func (p *Project) Registry() *ingest.Registry { return p.registry }

func (p *Project) Submit(work func() error, done func(error)) { p.sched.Submit(work, done) }
func (p *Project) ScheduleAfter(fn func(), delay time.Duration) { p.sched.ScheduleAfter(fn, delay) }

// IncRetry records one retry re-entry for state, if a metrics registry
// was configured for this run.
func (p *Project) IncRetry(state xact.State) {
	if p.metrics != nil {
		p.metrics.IncRetry(state)
	}
}

// RunAndWait, Copy and HashCompare implement ingest.Runner by
// delegating to the runner package's real subprocess helpers. Routing
// these three through the ingest.Host interface (rather than having
// ingest call runner directly) is what lets ingest tests substitute a
// fake without touching cp/lbzip2/newstack/shasum.
func (p *Project) RunAndWait(ctx context.Context, argv []string) (int, error) {
	return runner.RunAndWait(ctx, argv)
}

func (p *Project) Copy(ctx context.Context, src, dest string) error {
	return runner.SafeCopy(ctx, src, dest)
}

func (p *Project) HashCompare(ctx context.Context, a, b string) (bool, error) {
	return runner.HashCompare(ctx, a, b)
}

// ProcessingDone implements ingest.Host: a micrograph is "done" iff the
// downstream analysis tool's index.html exists and mentions its
// basename stem.
func (p *Project) ProcessingDone(stem string) (bool, error) {
	path := filepath.Join(webRoot, p.Name, fname.ProcessingIndex)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return stem != "" && strings.Contains(string(content), stem), nil
}

// Start bootstraps directories, launches the transfer loop and the
// one-shot scipion bootstrap, and enters the ingest loop - blocking the
// caller, exactly as Project.start blocks in the source this was ported
// from. It returns only if directory bootstrap fails: a failed monitor
// pull is logged and retried, and a clean end-of-stream exits the process
// directly.
func (p *Project) Start() error {
	if err := p.ensureDirectories(); err != nil {
		return err
	}
	p.minImportInterval = defaultMinImportInterval / time.Duration(p.frameCount)

	p.transferLoop()
	p.sched.ScheduleAfter(p.startScipion, scipionBootstrapDelay)
	if p.metrics != nil {
		p.scheduleStatsRefresh()
	}

	return p.sched.RunUntilComplete(func() error {
		p.ingestLoop()
		return nil
	})
}

func (p *Project) ensureDirectories() error {
	if err := cos.CreateDir(p.Paths.LocalRoot); err != nil {
		return err
	}
	if err := cos.CreateDir(p.Paths.StorageRoot); err != nil {
		return err
	}
	if p.frameCount > 1 {
		if err := cos.CreateDir(filepath.Join(p.Paths.LocalRoot, fname.StackDir)); err != nil {
			return err
		}
	}
	return nil
}

// ingestLoop repeatedly pulls the monitor, admitting one Item per new
// path at minImportInterval spacing, and sleeping betweenPullsDelay
// between pulls. Item admission is posted onto the scheduler's loop so
// its first Fire is serialized with every other completion.
func (p *Project) ingestLoop() {
	for {
		paths, done, err := p.monitor.Pull()
		if err != nil {
			nlog.Warningf("monitor pull failed: %v", err)
			time.Sleep(betweenPullsDelay)
			continue
		}
		if done {
			nlog.Infof("%s: end of stream, exiting", p.Name)
			os.Exit(0)
		}
		for _, path := range paths {
			path := path
			p.sched.Post(func() {
				it := ingest.New(path, p, p.registry)
				p.registry.Register(it)
				it.Fire(xact.Initialize)
			})
			time.Sleep(p.minImportInterval)
		}
		time.Sleep(betweenPullsDelay)
	}
}

func (p *Project) scheduleStatsRefresh() {
	var tick func()
	tick = func() {
		for state, n := range p.registry.Snapshot() {
			p.metrics.SetItemsInState(state, n)
		}
		p.sched.ScheduleAfter(tick, statsRefreshInterval)
	}
	p.sched.ScheduleAfter(tick, statsRefreshInterval)
}
