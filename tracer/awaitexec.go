package tracer

import (
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/aclements/nrgprof/errtag"
)

// awaitExec waits for the real target executable: for wrapper scripts
// (shell wrappers, launchers) that exec the real target indirectly,
// traps can't be installed until the target image is actually mapped
// in. It single-steps syscalls via PTRACE_SYSCALL
// (options already set PTRACE_O_TRACESYSGOOD so a syscall stop is
// distinguishable from a signal stop), inspecting each execve entry's
// pathname argument until one matches t.awaitPath, then returns with
// the tracee freshly re-execed and stopped.
func (t *Tracer) awaitExec() error {
	for {
		if err := t.do(func() error { return ptraceSyscall(t.tid) }); err != nil {
			return err
		}
		var status unix.WaitStatus
		if err := t.do(func() error {
			s, err := wait4(t.tid)
			status = s
			return err
		}); err != nil {
			return err
		}
		if status.Exited() || status.Signaled() {
			return errtag.New(errtag.Trace, "tracer: tracee exited before awaited exec")
		}
		if !isSyscallStop(status) {
			// Some other stop (e.g. a clone event precedes exec in
			// some wrapper shells); just keep resuming past it.
			continue
		}

		var regs *syscall.PtraceRegs
		if err := t.do(func() error {
			r, err := getRegs(t.tid)
			regs = r
			return err
		}); err != nil {
			return err
		}

		if syscallNum(regs) != unix.SYS_EXECVE {
			continue
		}

		var path string
		if err := t.do(func() error {
			p, err := readCString(t.tid, syscallArg1(regs))
			path = p
			return err
		}); err != nil {
			return err
		}

		if path == t.awaitPath || filepath.Base(path) == t.awaitPath ||
			strings.HasSuffix(path, "/"+t.awaitPath) {
			// Resume once more to let the matched execve actually
			// take effect, landing on the SIGTRAP stop the kernel
			// delivers after a successful execve when
			// PTRACE_O_TRACEEXEC is not set.
			if err := t.do(func() error { return ptraceCont(t.tid, 0) }); err != nil {
				return err
			}
			var final unix.WaitStatus
			if err := t.do(func() error {
				s, err := wait4(t.tid)
				final = s
				return err
			}); err != nil {
				return err
			}
			if !final.Stopped() {
				return errtag.New(errtag.Trace, "tracer: tracee did not stop after awaited exec")
			}
			return nil
		}
	}
}
