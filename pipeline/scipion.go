package pipeline

import (
	"context"

	"github.com/matthutchison/cryoempipe/cmn/cos"
	"github.com/matthutchison/cryoempipe/cmn/nlog"
	"github.com/matthutchison/cryoempipe/runner"
)

// startScipion bootstraps the downstream analysis project once, 60s
// after Start. A project with no ScipionConfigPath configured has no
// downstream tool to bootstrap.
func (p *Project) startScipion() {
	if p.Paths.ScipionConfigPath == "" {
		nlog.Infof("%s: no scipion config path, skipping bootstrap", p.Name)
		return
	}
	p.sched.Submit(
		func() error {
			argv := runner.ProjectCreateArgv(p.Name, p.Paths.ScipionConfigPath)
			exitCode, err := runner.RunAndWait(context.Background(), argv)
			if err != nil {
				return err
			}
			if exitCode != 0 {
				return cos.ExitStatusError(exitCode)
			}
			return nil
		},
		func(err error) {
			if err != nil {
				p.observeScipion("create_failed")
				nlog.Warningf("%s: scipion project create failed: %v", p.Name, err)
				return
			}
			p.observeScipion("created")
			p.scheduleProject()
		},
	)
}

func (p *Project) scheduleProject() {
	p.sched.Submit(
		func() error {
			argv := runner.ProjectScheduleArgv(p.Name)
			exitCode, err := runner.RunAndWait(context.Background(), argv)
			if err != nil {
				return err
			}
			if exitCode != 0 {
				return cos.ExitStatusError(exitCode)
			}
			return nil
		},
		func(err error) {
			if err != nil {
				p.observeScipion("schedule_failed")
				nlog.Warningf("%s: scipion project schedule failed: %v", p.Name, err)
				return
			}
			p.observeScipion("scheduled")
			nlog.Infof("%s: scipion project scheduled", p.Name)
		},
	)
}

func (p *Project) observeScipion(outcome string) {
	if p.metrics != nil {
		p.metrics.ObserveScipionBootstrap(outcome)
	}
}
