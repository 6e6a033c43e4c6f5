package tracer

import (
	"fmt"
	"os"

	"github.com/google/pprof/profile"

	"github.com/aclements/nrgprof/errtag"
)

// resolveLoadAddr resolves the runtime load address: a fixed
// (ET_EXEC) binary loads at address zero, while a PIE's symbol and
// DWARF addresses are offsets from wherever the kernel happened to
// map it, discoverable as the base of its first mapped range in
// /proc/<tid>/maps.
//
// Grounded on
// other_examples/ab30ed60_marselester-diy-parca-agent__cmd-profiler3-main.go.go,
// which opens /proc/<pid>/maps and hands it to
// google/pprof/profile.ParseProcMaps rather than hand-rolling the
// text format.
func resolveLoadAddr(tid int, pie bool) (uint64, error) {
	if !pie {
		return 0, nil
	}

	path := fmt.Sprintf("/proc/%d/maps", tid)
	f, err := os.Open(path)
	if err != nil {
		return 0, errtag.Wrap(errtag.Read, "tracer: opening "+path, err)
	}
	defer f.Close()

	mappings, err := profile.ParseProcMaps(f)
	if err != nil {
		return 0, errtag.Wrap(errtag.Read, "tracer: parsing "+path, err)
	}
	if len(mappings) == 0 {
		return 0, errtag.New(errtag.Read, "tracer: "+path+" has no mapped regions")
	}
	return mappings[0].Start, nil
}
