package tracer

// stopSiblings is the stop-the-world step: it walks the tracer tree
// (parent, siblings, descendants) and sends each a tgkill(SIGSTOP),
// except itself. See tree.go for why a flat registry scan produces
// the same set as a literal tree walk.
//
// Releasing siblings needs no corresponding tgkill: once a sibling's
// blocked barrier.Lock() (see loop.go's SIGSTOP case) returns, its
// event loop simply issues its own PTRACE_CONT on the next iteration,
// which resumes a ptrace-stopped thread regardless of what signal
// produced the stop.
func (t *Tracer) stopSiblings() error {
	for _, other := range t.tree.others(t) {
		if err := tgkillStop(other.tgid, other.tid); err != nil {
			return err
		}
	}
	return nil
}
