package tracer

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/aclements/nrgprof/errtag"
	"github.com/aclements/nrgprof/trap"
)

// handleBreakpoint is the breakpoint handler: the global barrier is
// acquired, every sibling tracee thread is stopped, the trap at the
// rewound IP is resolved to a start or end trap and acted on, the
// original instruction is restored, the tracee is single-stepped past
// it, the trap byte is reinstalled, and the barrier is released. A
// start trap whose section set AllowConcurrency skips the
// barrier/stopSiblings step entirely.
//
// Every ptrace syscall below runs through t.do so it executes on the
// OS thread that attached t.tid, per tracer.go's ownerLoop.
func (t *Tracer) handleBreakpoint() error {
	var regs *syscall.PtraceRegs
	if err := t.do(func() error {
		r, err := getRegs(t.tid)
		regs = r
		return err
	}); err != nil {
		return err
	}
	ip := pc(regs) - t.arch.rewind

	skipBarrier := false
	if st, ok := t.registry.LookupStart(trap.StartAddr(ip)); ok {
		skipBarrier = st.AllowConcurrency
	}

	if !skipBarrier {
		t.barrier.Lock()
		defer t.barrier.Unlock()
		if err := t.stopSiblings(); err != nil {
			return err
		}
	}

	saved, err := t.dispatchTrap(ip)
	if err != nil {
		return err
	}

	if err := t.do(func() error { return restoreTrap(t.tid, ip, saved) }); err != nil {
		return err
	}

	setPC(regs, ip)
	if err := t.do(func() error { return setRegs(t.tid, regs) }); err != nil {
		return err
	}
	if err := t.do(func() error { return ptraceSingleStep(t.tid) }); err != nil {
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
	if !status.Stopped() || status.StopSignal() != unix.SIGTRAP {
		return errtag.New(errtag.Trace, "tracer: single-step over trap did not land as expected")
	}

	return t.do(func() error {
		_, err := installTrap(t.tid, ip, t.arch)
		return err
	})
}

// dispatchTrap resolves the trap at ip, runs its start or end action,
// and returns the saved word to restore.
func (t *Tracer) dispatchTrap(ip uint64) ([]byte, error) {
	if st, ok := t.registry.LookupStart(trap.StartAddr(ip)); ok {
		if err := t.handleStart(st); err != nil {
			return nil, err
		}
		return st.SavedWord, nil
	}
	if et, ok := t.registry.EndTrapAt(trap.EndAddr(ip)); ok {
		if err := t.handleEnd(et); err != nil {
			return nil, err
		}
		return et.SavedWord, nil
	}
	return nil, errtag.New(errtag.Trace, "tracer: no trap registered at stopped IP")
}

func (t *Tracer) handleStart(st *trap.StartTrap) error {
	s := st.Factory(st.Reader)
	if err := s.Start(); err != nil {
		return errtag.Wrap(errtag.Trace, "tracer: starting region sampler", err)
	}
	if !st.Claim(s) {
		return errtag.New(errtag.Trace, "tracer: start trap fired while already claimed")
	}
	return nil
}

func (t *Tracer) handleEnd(et *trap.EndTrap) error {
	st, ok := t.registry.LookupStart(et.StartAddr)
	if !ok {
		return errtag.New(errtag.Trace, "tracer: end trap references an unregistered start")
	}
	s := st.Sampler()
	if s == nil {
		return errtag.New(errtag.Trace, "tracer: end trap fired with no claimed sampler")
	}
	readings, err := s.Stop()
	t.hooks.OnExecution(st.Context, et.Context, readings, err)
	st.Release()
	return nil
}
