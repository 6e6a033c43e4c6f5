//go:build linux

package tracer

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/aclements/nrgprof/errtag"
)

// wordSize is sizeof(long) on both target architectures: PTRACE_PEEKTEXT
// and PTRACE_POKETEXT always transfer one machine word regardless of
// the trap instruction's own width.
const wordSize = 8

// ptraceErr tags a failed ptrace/wait4 syscall as a Trace-category
// error, per errtag.Trace's doc comment ("a failed ptrace syscall, a
// surprising waitpid result").
func ptraceErr(op string, err error) error {
	return errtag.Wrap(errtag.Trace, fmt.Sprintf("tracer: %s", op), err)
}

// peekWord reads one word at addr in tid's address space.
func peekWord(tid int, addr uint64) (uint64, error) {
	var buf [wordSize]byte
	n, err := syscall.PtracePeekText(tid, uintptr(addr), buf[:])
	if err != nil {
		return 0, ptraceErr("PEEKTEXT", err)
	}
	if n != wordSize {
		return 0, ptraceErr("PEEKTEXT", fmt.Errorf("short read: %d bytes", n))
	}
	return hostEndian.Uint64(buf[:]), nil
}

// pokeWord writes one word at addr in tid's address space.
func pokeWord(tid int, addr uint64, word uint64) error {
	var buf [wordSize]byte
	hostEndian.PutUint64(buf[:], word)
	n, err := syscall.PtracePokeText(tid, uintptr(addr), buf[:])
	if err != nil {
		return ptraceErr("POKETEXT", err)
	}
	if n != wordSize {
		return ptraceErr("POKETEXT", fmt.Errorf("short write: %d bytes", n))
	}
	return nil
}

func getRegs(tid int) (*syscall.PtraceRegs, error) {
	var regs syscall.PtraceRegs
	if err := syscall.PtraceGetRegs(tid, &regs); err != nil {
		return nil, ptraceErr("GETREGS", err)
	}
	return &regs, nil
}

func setRegs(tid int, regs *syscall.PtraceRegs) error {
	if err := syscall.PtraceSetRegs(tid, regs); err != nil {
		return ptraceErr("SETREGS", err)
	}
	return nil
}

func ptraceCont(tid int, sig int) error {
	if err := syscall.PtraceCont(tid, sig); err != nil {
		return ptraceErr("CONT", err)
	}
	return nil
}

func ptraceSingleStep(tid int) error {
	if err := syscall.PtraceSingleStep(tid); err != nil {
		return ptraceErr("SINGLESTEP", err)
	}
	return nil
}

// ptraceSyscall resumes tid until the next syscall-entry or
// syscall-exit stop, distinguished from a signal stop by PTRACE_O_
// TRACESYSGOOD setting bit 0x80 in the reported stop signal (see
// isSyscallStop).
func ptraceSyscall(tid int) error {
	if err := syscall.PtraceSyscall(tid, 0); err != nil {
		return ptraceErr("SYSCALL", err)
	}
	return nil
}

// isSyscallStop reports whether status is a syscall-entry/exit stop
// rather than an ordinary signal-delivery stop, per PTRACE_O_TRACESYSGOOD's
// documented SIGTRAP|0x80 marking.
func isSyscallStop(status unix.WaitStatus) bool {
	return status.Stopped() && status.StopSignal()&0x80 != 0 &&
		status.StopSignal()&^0x80 == unix.SIGTRAP
}

// ptraceSetOptions installs the option set the attach phase requires:
// trace clone/fork/vfork, trace exit, distinguish syscall stops from
// signal stops, and exit-kill. Grounded on
// other_examples/94130369_IreliaTable-gvisor__pkg-sentry-platform-systrap-subprocess.go.go's
// PTRACE_O_TRACESYSGOOD|PTRACE_O_TRACEEXIT|PTRACE_O_EXITKILL set, with
// TRACECLONE/TRACEFORK/TRACEVFORK added since this tracer follows the
// tracee's own clone calls directly rather than pre-creating stub
// threads the way gvisor does.
func ptraceSetOptions(tid int) error {
	opts := unix.PTRACE_O_TRACECLONE | unix.PTRACE_O_TRACEFORK |
		unix.PTRACE_O_TRACEVFORK | unix.PTRACE_O_TRACEEXIT |
		unix.PTRACE_O_TRACESYSGOOD | unix.PTRACE_O_EXITKILL
	if err := syscall.PtraceSetOptions(tid, opts); err != nil {
		return ptraceErr("SETOPTIONS", err)
	}
	return nil
}

func ptraceGetEventMsg(tid int) (uint64, error) {
	msg, err := syscall.PtraceGetEventMsg(tid)
	if err != nil {
		return 0, ptraceErr("GETEVENTMSG", err)
	}
	return msg, nil
}

// wait4 waits for tid specifically (WALL so thread and process exits
// are both reported), grounded on
// other_examples/94130369_IreliaTable-gvisor__...subprocess.go.go's
// thread.wait using unix.Wait4 with unix.WALL.
func wait4(tid int) (unix.WaitStatus, error) {
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(tid, &status, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, ptraceErr("wait4", err)
		}
		return status, nil
	}
}

// tgkillStop sends SIGSTOP to tid within tgid, used by the stop-the-
// world barrier to pause sibling tracer threads, grounded on
// subprocess.go's unix.Tgkill usage for the same purpose.
func tgkillStop(tgid, tid int) error {
	if err := unix.Tgkill(tgid, tid, unix.SIGSTOP); err != nil {
		return ptraceErr("tgkill", err)
	}
	return nil
}
