package monitor_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/matthutchison/cryoempipe/monitor"
)

var _ = Describe("Monitor", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "monitor-test-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("reports an empty pull on an empty directory", func() {
		m := monitor.New(dir, "*.mrc", false, time.Second)
		paths, done, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeFalse())
		Expect(paths).To(BeEmpty())
	})

	It("reports newly appeared files sorted lexicographically", func() {
		m := monitor.New(dir, "*.mrc", false, time.Minute)
		writeFile(dir, "b.mrc")
		writeFile(dir, "a.mrc")
		paths, done, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeFalse())
		Expect(paths).To(HaveLen(2))
		Expect(filepath.Base(paths[0])).To(Equal("a.mrc"))
		Expect(filepath.Base(paths[1])).To(Equal("b.mrc"))
	})

	It("never reports the same continuously-present path twice", func() {
		m := monitor.New(dir, "*.mrc", false, time.Minute)
		writeFile(dir, "a.mrc")
		first, _, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(HaveLen(1))

		second, _, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(BeEmpty())
	})

	It("re-reports a path that disappears and reappears", func() {
		m := monitor.New(dir, "*.mrc", false, time.Minute)
		writeFile(dir, "a.mrc")
		_, _, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Remove(filepath.Join(dir, "a.mrc"))).To(Succeed())
		gone, _, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(gone).To(BeEmpty())

		writeFile(dir, "a.mrc")
		again, _, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(HaveLen(1))
	})

	It("raises end-of-stream once the walltime has elapsed with no activity", func() {
		m := monitor.New(dir, "*.mrc", false, 0)
		time.Sleep(5 * time.Millisecond)
		_, done, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeTrue())
	})

	It("resets base_time on a non-empty pull, postponing end-of-stream", func() {
		m := monitor.New(dir, "*.mrc", false, 200*time.Millisecond)
		time.Sleep(120 * time.Millisecond)
		writeFile(dir, "a.mrc")
		_, done, err := m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeFalse())

		// Past the walltime measured from construction, but not from the
		// non-empty pull above.
		time.Sleep(120 * time.Millisecond)
		_, done, err = m.Pull()
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(BeFalse())
	})
})

func writeFile(dir, name string) {
	Expect(os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)).To(Succeed())
}
