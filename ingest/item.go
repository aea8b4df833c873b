package ingest

import (
	"context"
	"time"

	"github.com/matthutchison/cryoempipe/xact"
)

// Scheduler is the subset of sched.Scheduler an Item needs: submit
// deferred command work and schedule delayed re-entry. Declared locally
// so ingest does not import sched (sched has no reason to know about
// Items, and this keeps the dependency one-directional).
type Scheduler interface {
	Submit(work func() error, done func(error))
	ScheduleAfter(fn func(), delay time.Duration)
}

// Runner is the subset of runner package operations an Item needs,
// routed through Host rather than called directly so a test double can
// substitute a deterministic fake instead of shelling out to cp/
// lbzip2/newstack/shasum.
type Runner interface {
	RunAndWait(ctx context.Context, argv []string) (int, error)
	Copy(ctx context.Context, src, dest string) error
	HashCompare(ctx context.Context, a, b string) (bool, error)
}

// Host is what an Item needs from its owning project: path roots, the
// frame count, the scheduler, the command runner, the shared registry,
// where to probe for downstream-analysis completion, and where to
// report a retry re-entry for metrics.
type Host interface {
	Scheduler
	Runner
	LocalRoot() string
	StorageRoot() string
	Frames() int
	Registry() *Registry
	ProcessingDone(basenameStem string) (bool, error)
	IncRetry(state xact.State)
}

// Item is one file's (or one stack's) journey through the state machine.
// All mutation happens from the scheduler's single loop goroutine, so
// Item carries no internal locking - the same single-threaded-cooperative
// guarantee the Python original relied on.
type Item struct {
	host     Host
	registry *Registry
	machine  *xact.Machine
	paths    map[Role]string

	isParent  bool
	unstacked []*Item // parent-only: arrival-ordered children
}

// New constructs a child Item for a freshly observed source path, in
// xact.Initial. Call Fire(xact.Initialize) to begin its journey.
func New(original string, host Host, registry *Registry) *Item {
	it := &Item{
		host:     host,
		registry: registry,
		paths:    map[Role]string{Original: original},
	}
	it.machine = xact.New(original, xact.Initial, it)
	return it
}

// newParent constructs a parent stack Item directly in xact.Stacking,
// bypassing Initial - see Registry.LookupOrCreateParent.
func newParent(key string, host Host, registry *Registry) *Item {
	it := &Item{
		host:     host,
		registry: registry,
		paths:    map[Role]string{Original: key},
		isParent: true,
	}
	it.machine = xact.New(key, xact.Stacking, it)
	return it
}

// Fire forwards to the underlying state machine. A transition-denied
// error is the machine's concern to log; Item does not re-log it.
func (it *Item) Fire(trigger xact.Trigger) error { return it.machine.Fire(trigger) }

// State reports the Item's current state.
func (it *Item) State() xact.State { return it.machine.State() }

// Path returns the path currently held under role, or "" if unset.
func (it *Item) Path(role Role) string { return it.paths[role] }

// Unstacked returns the arrival-ordered children of a parent stack item.
// Empty for a non-parent Item.
func (it *Item) Unstacked() []*Item { return it.unstacked }

// IsParent reports whether this Item is a parent stack item.
func (it *Item) IsParent() bool { return it.isParent }

// OnEnter dispatches to the per-state handler. It implements
// xact.EnterHandler.
func (it *Item) OnEnter(state xact.State) {
	switch state {
	case xact.Creating:
		it.onEnterCreating()
	case xact.Importing:
		it.onEnterImporting()
	case xact.Converting:
		it.onEnterConverting()
	case xact.Stacking:
		it.onEnterStacking()
	case xact.Compressing:
		it.onEnterCompressing()
	case xact.Exporting:
		it.onEnterExporting()
	case xact.Processing:
		it.onEnterProcessing()
	case xact.Confirming:
		it.onEnterConfirming()
	case xact.Cleaning:
		it.onEnterCleaning()
	case xact.Finished:
		it.onEnterFinished()
	}
}
