package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/matthutchison/cryoempipe/cmn/fname"
	"github.com/matthutchison/cryoempipe/ingest"
	"github.com/matthutchison/cryoempipe/runner"
	"github.com/matthutchison/cryoempipe/xact"
)

// fakeHost runs Submit synchronously (no goroutine, no real scheduler) so
// specs can assert on state immediately after each transition. ScheduleAfter
// calls are recorded rather than executed, so a spec can choose to invoke
// a retry manually or leave it pending. runAndWait/copy/hashCompare default
// to the real runner package (so the real-binary-backed specs below are
// unaffected) but a spec may overwrite them with a deterministic fake to
// drive a retry or failure path without shelling out.
type fakeHost struct {
	localRoot, storageRoot string
	frames                 int
	reg                    *ingest.Registry
	processingDone         bool

	scheduled []func()
	retries   []xact.State

	runAndWait  func(argv []string) (int, error)
	copy        func(src, dest string) error
	hashCompare func(a, b string) (bool, error)
}

func newFakeHost(dir string, frames int) *fakeHost {
	return &fakeHost{
		localRoot:   filepath.Join(dir, "local"),
		storageRoot: filepath.Join(dir, "storage"),
		frames:      frames,
		reg:         ingest.NewRegistry(),
		runAndWait: func(argv []string) (int, error) {
			return runner.RunAndWait(context.Background(), argv)
		},
		copy: func(src, dest string) error {
			return runner.SafeCopy(context.Background(), src, dest)
		},
		hashCompare: func(a, b string) (bool, error) {
			return runner.HashCompare(context.Background(), a, b)
		},
	}
}

func (h *fakeHost) Submit(work func() error, done func(error)) {
	err := work()
	if done != nil {
		done(err)
	}
}

func (h *fakeHost) ScheduleAfter(fn func(), _ time.Duration) {
	h.scheduled = append(h.scheduled, fn)
}

func (h *fakeHost) LocalRoot() string           { return h.localRoot }
func (h *fakeHost) StorageRoot() string          { return h.storageRoot }
func (h *fakeHost) Frames() int                  { return h.frames }
func (h *fakeHost) Registry() *ingest.Registry    { return h.reg }
func (h *fakeHost) ProcessingDone(string) (bool, error) {
	return h.processingDone, nil
}

func (h *fakeHost) IncRetry(state xact.State) { h.retries = append(h.retries, state) }

func (h *fakeHost) RunAndWait(_ context.Context, argv []string) (int, error) { return h.runAndWait(argv) }
func (h *fakeHost) Copy(_ context.Context, src, dest string) error    { return h.copy(src, dest) }
func (h *fakeHost) HashCompare(_ context.Context, a, b string) (bool, error) {
	return h.hashCompare(a, b)
}

var errDestBlocked = errors.New("destination exists")

// fakeCopy stands in for runner.SafeCopy without shelling out to cp: a
// pre-existing destination fails exactly like SafeCopy's own
// ErrDestinationExists case, otherwise it copies the file's bytes
// in-process.
func fakeCopy(src, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return errDestBlocked
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// fakeCompressRunner stands in for the real lbzip2/newstack invocations:
// a compress call (target path does not end in .bz2) writes a ".bz2"
// companion file; a decompress call (target already ends in .bz2)
// writes the plaintext file the ".bz2" suffix was stripped from.
func fakeCompressRunner(argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, nil
	}
	target := argv[len(argv)-1]
	if strings.HasSuffix(target, ".bz2") {
		return 0, os.WriteFile(strings.TrimSuffix(target, ".bz2"), []byte("plaintext"), 0o644)
	}
	return 0, os.WriteFile(target+".bz2", []byte("compressed"), 0o644)
}

func writeStaleFile(path string) {
	Expect(os.WriteFile(path, []byte("data"), 0o644)).To(Succeed())
	old := time.Now().Add(-1 * time.Minute)
	Expect(os.Chtimes(path, old, old)).To(Succeed())
}

func TestIngestItem(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ingest item")
}

var _ = Describe("Item on_enter_creating", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "ingest-creating-")
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() { os.RemoveAll(dir) })

	It("reschedules itself for a freshly-written file instead of importing", func() {
		original := filepath.Join(dir, "fresh.mrc")
		Expect(os.WriteFile(original, []byte("x"), 0o644)).To(Succeed())

		host := newFakeHost(dir, 1)
		it := ingest.New(original, host, host.Registry())
		Expect(it.Fire(xact.Initialize)).To(Succeed())

		Expect(it.State()).To(Equal(xact.Creating))
		Expect(host.scheduled).To(HaveLen(1))
	})

	It("imports once the file has been quiet past the window", func() {
		if testing.Short() {
			Skip("requires the real cp, lbzip2 binaries")
		}
		original := filepath.Join(dir, "stale.mrc")
		writeStaleFile(original)
		Expect(os.MkdirAll(filepath.Join(dir, "local"), 0o755)).To(Succeed())

		host := newFakeHost(dir, 1)
		Expect(os.MkdirAll(host.StorageRoot(), 0o755)).To(Succeed())
		it := ingest.New(original, host, host.Registry())
		Expect(it.Fire(xact.Initialize)).To(Succeed())

		Expect(it.State()).NotTo(Equal(xact.Creating))
		Expect(it.Path(ingest.LocalOriginal)).NotTo(BeEmpty())
	})
})

var _ = Describe("single-frame happy path", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "ingest-happy-")
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() { os.RemoveAll(dir) })

	It("advances a non-stacked, non-dm4 micrograph from creating to finished", func() {
		if testing.Short() {
			Skip("requires the real cp, lbzip2 binaries")
		}
		original := filepath.Join(dir, "mic.mrc")
		writeStaleFile(original)

		host := newFakeHost(dir, 1)
		Expect(os.MkdirAll(host.LocalRoot(), 0o755)).To(Succeed())
		Expect(os.MkdirAll(host.StorageRoot(), 0o755)).To(Succeed())

		it := ingest.New(original, host, host.Registry())
		Expect(it.Fire(xact.Initialize)).To(Succeed())

		// The cascade runs synchronously up to processing, where it must
		// wait for the (fake, always-false-until-set) downstream-analysis
		// completion probe.
		Expect(it.State()).To(Equal(xact.Processing))
		Expect(host.scheduled).To(HaveLen(1))

		host.processingDone = true
		host.scheduled[0]()

		Expect(it.State()).To(Equal(xact.Finished))
		_, statErr := os.Stat(it.Path(ingest.LocalStack))
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})
})

var _ = Describe("stacking rendez-vous", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "ingest-stack-")
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() { os.RemoveAll(dir) })

	It("holds the parent in stacking until all frames have arrived, in order", func() {
		if testing.Short() {
			Skip("requires the real cp binary")
		}
		host := newFakeHost(dir, 3)
		Expect(os.MkdirAll(host.LocalRoot(), 0o755)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(host.LocalRoot(), fname.StackDir), 0o755)).To(Succeed())

		names := []string{"movie01.mrc", "movie02.mrc", "movie03.mrc"}
		var children []*ingest.Item
		for _, name := range names {
			original := filepath.Join(dir, name)
			writeStaleFile(original)
			it := ingest.New(original, host, host.Registry())
			Expect(it.Fire(xact.Initialize)).To(Succeed())
			children = append(children, it)
		}

		key := filepath.Join(host.LocalRoot(), fname.StackDir, "movie.mrc")
		parent, ok := host.Registry().Lookup(key)
		Expect(ok).To(BeTrue())
		Expect(parent.IsParent()).To(BeTrue())
		Expect(parent.Unstacked()).To(HaveLen(3))
		for i, child := range parent.Unstacked() {
			Expect(child.Path(ingest.Original)).To(Equal(children[i].Path(ingest.Original)))
		}
	})
})

var _ = Describe("dm4 conversion", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "ingest-dm4-")
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() { os.RemoveAll(dir) })

	It("runs format-convert but stacks the pre-conversion original, not the converted mrc", func() {
		original := filepath.Join(dir, "grid01_0001.dm4")
		writeStaleFile(original)

		host := newFakeHost(dir, 1)
		Expect(os.MkdirAll(host.LocalRoot(), 0o755)).To(Succeed())
		Expect(os.MkdirAll(host.StorageRoot(), 0o755)).To(Succeed())
		host.copy = fakeCopy
		host.runAndWait = func(argv []string) (int, error) {
			if len(argv) > 0 && argv[0] == "newstack" {
				return 0, os.WriteFile(argv[len(argv)-1], []byte("converted"), 0o644)
			}
			return fakeCompressRunner(argv)
		}

		it := ingest.New(original, host, host.Registry())
		Expect(it.Fire(xact.Initialize)).To(Succeed())

		Expect(it.State()).To(Equal(xact.Processing))
		Expect(it.Path(ingest.LocalConverted)).To(HaveSuffix(".mrc"))
		Expect(it.Path(ingest.LocalStack)).To(Equal(it.Path(ingest.LocalOriginal)))
		Expect(it.Path(ingest.LocalStack)).NotTo(Equal(it.Path(ingest.LocalConverted)))
	})
})

var _ = Describe("transfer verification", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "ingest-confirm-")
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() { os.RemoveAll(dir) })

	It("stalls in confirming on a hash mismatch and never fires clean", func() {
		original := filepath.Join(dir, "mic.mrc")
		writeStaleFile(original)

		host := newFakeHost(dir, 1)
		Expect(os.MkdirAll(host.LocalRoot(), 0o755)).To(Succeed())
		Expect(os.MkdirAll(host.StorageRoot(), 0o755)).To(Succeed())
		host.copy = fakeCopy
		host.runAndWait = fakeCompressRunner
		host.hashCompare = func(string, string) (bool, error) { return false, nil }

		it := ingest.New(original, host, host.Registry())
		Expect(it.Fire(xact.Initialize)).To(Succeed())

		Expect(it.State()).To(Equal(xact.Processing))
		Expect(host.scheduled).To(HaveLen(1))

		host.processingDone = true
		host.scheduled[0]()

		Expect(it.State()).To(Equal(xact.Confirming))
	})
})

var _ = Describe("export retry", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "ingest-export-retry-")
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() { os.RemoveAll(dir) })

	It("stays in exporting across one failed export, then proceeds once the block clears", func() {
		original := filepath.Join(dir, "mic.mrc")
		writeStaleFile(original)

		host := newFakeHost(dir, 1)
		Expect(os.MkdirAll(host.LocalRoot(), 0o755)).To(Succeed())
		Expect(os.MkdirAll(host.StorageRoot(), 0o755)).To(Succeed())
		host.copy = fakeCopy
		host.runAndWait = fakeCompressRunner

		blocked := filepath.Join(host.StorageRoot(), "mic.mrc.bz2")
		Expect(os.WriteFile(blocked, []byte("stale"), 0o644)).To(Succeed())

		it := ingest.New(original, host, host.Registry())
		Expect(it.Fire(xact.Initialize)).To(Succeed())

		Expect(it.State()).To(Equal(xact.Exporting))
		Expect(host.scheduled).To(HaveLen(1))
		Expect(host.retries).To(ContainElement(xact.Exporting))

		Expect(os.Remove(blocked)).To(Succeed())
		host.scheduled[0]()

		Expect(it.State()).To(Equal(xact.Processing))
	})
})
