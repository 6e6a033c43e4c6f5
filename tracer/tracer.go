// Package tracer is the ptrace-based tracing engine: one goroutine per
// tracee thread, each pinned to its own locked OS thread (ptrace ties
// a tracee to the specific kernel thread that attached it), driving
// PTRACE_CONT/waitpid and dispatching on the resulting stop.
//
// Grounded on two pack sources for the actual ptrace choreography:
// other_examples/18514cdb_golang-debug__program-server-server.go.go
// (trace-me-then-exec via os.StartProcess/exec.Cmd's
// SysProcAttr{Ptrace: true}, the fc/ec command-channel pattern that
// keeps every ptrace syscall for a tracee on the one OS thread that
// attached it, breakpoint install/restore via peek/poke) and
// other_examples/94130369_IreliaTable-gvisor__pkg-sentry-platform-systrap-subprocess.go.go
// (runtime.LockOSThread, raw golang.org/x/sys/unix syscall sequences,
// PTRACE_SETOPTIONS flags, Wait4 with WALL, Tgkill). Per-thread tree
// bookkeeping is adapted from perfsession.Session/PIDInfo (see
// tree.go).
package tracer

import (
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/aclements/nrgprof/dbginfo"
	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
	"github.com/aclements/nrgprof/trap"
)

// Hooks is how the orchestrator learns about completed region
// executions without tracer importing the output package directly —
// the same narrow-callback shape golang-debug's RPC server uses to
// keep ptrace plumbing separate from presentation.
type Hooks interface {
	// OnExecution is called once a region's end trap has taken its
	// final reading, with the (start, end) context pair every
	// execution record carries.
	OnExecution(start, end trap.Context, readings []energy.Reading, err error)
}

// Tracer drives one tracee thread's ptrace stop/continue cycle. The
// root Tracer owns the tracee process's main thread; clone/fork/vfork
// stops spawn a child Tracer bound to the new thread.
type Tracer struct {
	tid  int // this tracer's tracee thread id
	tgid int // the tracee process's thread-group id (constant across all Tracers in a tree)

	tree     *Tree
	registry *trap.Registry
	idx      *dbginfo.Index
	hooks    Hooks
	barrier  *sync.Mutex
	arch     breakpointInstr
	loadAddr uint64

	parent *Tracer

	// fc/ec pin every ptrace syscall this Tracer issues to the one
	// locked OS thread that attached tid, per the golang-debug
	// ptraceRun(fc, ec) pattern.
	fc chan func() error
	ec chan error

	// awaitPath, when non-empty, means traps are not yet installed:
	// the event loop single-steps syscalls looking for an execve of
	// this path.
	awaitPath string

	done chan struct{}
	err  error

	// exitStatus is the root tracer's raw wait status once its tracee
	// thread has exited or been signaled, which ExitStatus translates
	// for Orchestrator.ExitCode.
	exitStatus unix.WaitStatus
}

func newTracerThread() *Tracer {
	t := &Tracer{
		fc:   make(chan func() error),
		ec:   make(chan error),
		done: make(chan struct{}),
	}
	go t.ownerLoop()
	return t
}

// ownerLoop is the locked OS thread that owns every ptrace call for
// this Tracer's tid, for its entire life.
func (t *Tracer) ownerLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for f := range t.fc {
		t.ec <- f()
	}
}

// do runs f on t's owning OS thread and returns its result.
func (t *Tracer) do(f func() error) error {
	t.fc <- f
	return <-t.ec
}

// close stops t's owner goroutine. Called once the event loop
// returns, whether normally (tracee exited) or on error.
func (t *Tracer) close() {
	close(t.fc)
}

// childOf spawns a new Tracer for a clone/fork/vfork-created tid,
// sharing this Tracer's tree, registry, debug info, hooks, barrier,
// and architecture — everything that is fixed for the life of one
// profiling run — and continues the parent thread's own loop.
func (t *Tracer) childOf(tid int) *Tracer {
	child := newTracerThread()
	child.tid = tid
	child.tgid = t.tgid
	child.tree = t.tree
	child.registry = t.registry
	child.idx = t.idx
	child.hooks = t.hooks
	child.barrier = t.barrier
	child.arch = t.arch
	child.loadAddr = t.loadAddr
	child.parent = t
	t.tree.register(child)
	return child
}

// LaunchOptions configures attaching a fresh tracee.
type LaunchOptions struct {
	Path string
	Args []string
	// AwaitExec, if set, is the basename or path the engine waits to
	// see execve'd before installing traps — for wrapper scripts that
	// exec the real target indirectly.
	AwaitExec string
}

// Launch starts path as a traced child ("trace-me then exec"),
// advances it past the initial SIGTRAP stop, installs ptrace options,
// optionally awaits the real executable, and resolves the runtime
// load address. The returned Tracer has not yet installed any traps
// or entered its event loop; call InstallTraps then Run.
func Launch(opts LaunchOptions, idx *dbginfo.Index, registry *trap.Registry, hooks Hooks) (*Tracer, error) {
	t := newTracerThread()
	t.registry = registry
	t.idx = idx
	t.hooks = hooks
	t.barrier = new(sync.Mutex)
	t.arch = archFor(idx.Machine())
	t.awaitPath = opts.AwaitExec

	var cmd *exec.Cmd
	err := t.do(func() error {
		cmd = exec.Command(opts.Path, opts.Args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:    true,
			Pdeathsig: syscall.SIGKILL,
		}
		return cmd.Start()
	})
	if err != nil {
		return nil, errtag.Wrap(errtag.Trace, "tracer: launching tracee", err)
	}

	t.tid = cmd.Process.Pid
	t.tgid = t.tid
	t.tree = newTree(t.tgid)
	t.tree.register(t)

	if err := t.do(func() error {
		status, err := wait4(t.tid)
		if err != nil {
			return err
		}
		if !status.Stopped() || status.StopSignal() != unix.SIGTRAP {
			return errtag.New(errtag.Trace, "tracer: unexpected initial stop status")
		}
		return ptraceSetOptions(t.tid)
	}); err != nil {
		return nil, err
	}

	if t.awaitPath != "" {
		if err := t.awaitExec(); err != nil {
			return nil, err
		}
	}

	loadAddr, err := resolveLoadAddr(t.tid, idx.PIE)
	if err != nil {
		return nil, err
	}
	t.loadAddr = loadAddr

	return t, nil
}

// LoadAddr returns the runtime load address discovered at attach
// time: zero for a fixed (ET_EXEC) binary, the base of the first
// mapped region for a PIE. Every trap address the orchestrator
// registers is idx-relative address + LoadAddr.
func (t *Tracer) LoadAddr() uint64 { return t.loadAddr }

// InstallTraps installs every trap currently registered in t's
// registry, saving the original word each carried so the breakpoint
// handler can restore it. It must run before Run is called.
func (t *Tracer) InstallTraps() error {
	return t.do(func() error {
		for _, addr := range t.registry.StartAddrs() {
			st, _ := t.registry.LookupStart(addr)
			orig, err := installTrap(t.tid, uint64(addr), t.arch)
			if err != nil {
				return err
			}
			st.SavedWord = orig
		}
		for _, addr := range t.registry.EndAddrs() {
			et, ok := t.registry.EndTrapAt(addr)
			if !ok {
				continue
			}
			orig, err := installTrap(t.tid, uint64(addr), t.arch)
			if err != nil {
				return err
			}
			et.SavedWord = orig
		}
		return nil
	})
}
