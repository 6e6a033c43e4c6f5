package tracer

import (
	"golang.org/x/sys/unix"
)

// Run is one tracee thread's event loop: issue PTRACE_CONT, waitpid
// for that exact thread, dispatch on status.
// Run returns once the tracee thread exits or an unrecoverable trace
// error occurs; either way the final state is available via Err.
// Clone/fork/vfork stops spawn a child Tracer in its own goroutine and
// keep this loop running for the parent thread.
func (t *Tracer) Run() {
	defer t.tree.unregister(t)
	defer t.close()
	defer close(t.done)

	resumeSig := 0
	for {
		if err := t.do(func() error { return ptraceCont(t.tid, resumeSig) }); err != nil {
			t.err = err
			return
		}
		resumeSig = 0

		var status unix.WaitStatus
		if err := t.do(func() error {
			s, err := wait4(t.tid)
			status = s
			return err
		}); err != nil {
			t.err = err
			return
		}

		switch {
		case status.Exited(), status.Signaled():
			t.exitStatus = status
			return

		case status.Stopped():
			stopSig := status.StopSignal()
			switch {
			case stopSig == unix.SIGTRAP && isCloneEvent(status):
				newTid, err := t.readEventMsg()
				if err != nil {
					t.err = err
					return
				}
				child := t.childOf(int(newTid))
				go child.Run()

			case stopSig == unix.SIGTRAP && isExitEvent(status):
				// PTRACE_O_TRACEEXIT fired; the real exit status
				// follows on the next wait4, so just resume.

			case stopSig == unix.SIGTRAP:
				if err := t.handleBreakpoint(); err != nil {
					t.err = err
					return
				}

			case stopSig == unix.SIGSTOP:
				// Inflicted by a sibling's stop-the-world barrier
				// (see barrier.go); block until it releases, then
				// resume with no signal.
				t.barrier.Lock()
				t.barrier.Unlock()

			default:
				// Re-inject any other signal on the next CONT rather
				// than swallowing it.
				resumeSig = int(stopSig)
			}
		}
	}
}

// Err returns the error that ended Run, or nil if the tracee thread
// simply exited.
func (t *Tracer) Err() error { return t.err }

// ExitStatus reports the root tracee's own process exit status:
// (code, true) if it exited normally, (128+signal, false) if it was
// killed by a signal, or (0, false) if Run ended some other way (a
// trace error, or before the tracee ever exited).
func (t *Tracer) ExitStatus() (code int, exited bool) {
	switch {
	case t.exitStatus.Exited():
		return t.exitStatus.ExitStatus(), true
	case t.exitStatus.Signaled():
		return 128 + int(t.exitStatus.Signal()), false
	default:
		return 0, false
	}
}

// Wait blocks until Run has returned for this Tracer.
func (t *Tracer) Wait() { <-t.done }

func isCloneEvent(status unix.WaitStatus) bool {
	switch status.TrapCause() {
	case unix.PTRACE_EVENT_CLONE, unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK:
		return true
	default:
		return false
	}
}

func isExitEvent(status unix.WaitStatus) bool {
	return status.TrapCause() == unix.PTRACE_EVENT_EXIT
}

func (t *Tracer) readEventMsg() (uint64, error) {
	var msg uint64
	err := t.do(func() error {
		m, err := ptraceGetEventMsg(t.tid)
		msg = m
		return err
	})
	return msg, err
}
