package pipeline

import (
	"context"
	"time"

	"github.com/matthutchison/cryoempipe/cmn/cos"
	"github.com/matthutchison/cryoempipe/cmn/nlog"
	"github.com/matthutchison/cryoempipe/runner"
)

// transferLoop schedules a globus transfer run after a fixed wait, then
// reschedules itself from the completion callback regardless of outcome -
// the remote sync is best-effort and self-restarting for the lifetime of
// the process, matching _transfer_loop/_schedule_globus_transfer in the
// source this was ported from.
func (p *Project) transferLoop() {
	p.sched.ScheduleAfter(p.runTransfer, transferPreWait)
}

func (p *Project) runTransfer() {
	start := time.Now()
	argv := runner.TransferArgv(atcEndpoint, p.Name, moabEndpoint, p.Paths.GlobusRoot)
	p.sched.Submit(
		func() error {
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
			if p.metrics != nil {
				p.metrics.ObserveTransfer(err == nil, time.Since(start).Seconds())
			}
			if err != nil {
				nlog.Warningf("%s: globus transfer failed: %v", p.Name, err)
			} else {
				nlog.Infof("%s: globus transfer complete", p.Name)
			}
			p.transferLoop()
		},
	)
}
