package tracer

import "sync"

// Tree is the shared per-tracee-thread bookkeeping every Tracer in
// one profiling run registers into, grounded on
// perfsession.Session/PIDInfo's map[pid]*PIDInfo shape (kept,
// repurposed from "per-pid perf.data post-processing state" to
// "per-tid live tracer state"; PIDInfo.fork's copy-on-clone becomes
// Tracer.childOf in tracer.go).
//
// The stop-the-world barrier needs to find every tracer in the process
// besides the one handling a breakpoint, by walking the tracer tree
// (parent, siblings, descendants). Since the tree is connected, that
// walk and "every tracer currently registered, except self" produce
// the same set; Tree keeps a flat map for exactly that reason rather
// than a parent/children adjacency a breakpoint handler would have to
// recurse across.
type Tree struct {
	mu      sync.Mutex
	tracers map[int]*Tracer // keyed by tid
	tgid    int             // thread-group id, constant for the process's life
}

func newTree(tgid int) *Tree {
	return &Tree{tracers: make(map[int]*Tracer), tgid: tgid}
}

// register adds t to the tree. Called once per Tracer, right after
// its tid is known (either the initial exec'd process or a freshly
// spawned clone child).
func (tr *Tree) register(t *Tracer) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.tracers[t.tid] = t
}

// unregister removes t once its event loop returns (the tracee thread
// exited or was reaped), so a later stop-the-world pass doesn't try
// to signal a dead tid.
func (tr *Tree) unregister(t *Tracer) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.tracers, t.tid)
}

// others returns every registered tracer except self, the set the
// stop-the-world barrier needs to pause before running a breakpoint
// handler.
func (tr *Tree) others(self *Tracer) []*Tracer {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]*Tracer, 0, len(tr.tracers))
	for tid, t := range tr.tracers {
		if tid == self.tid {
			continue
		}
		out = append(out, t)
	}
	return out
}
