package tracer

import "debug/elf"

// breakpointInstr is the architecture-specific trap instruction and
// its rewind amount: 0xCC on x86 (PC advances one byte past the trap),
// a 4-byte trap instruction on ppc64 (PC does not advance past it).
// Grounded on arch.Architecture's BreakpointInstr/BreakpointSize in
// other_examples/18514cdb_golang-debug__program-server-server.go.go,
// generalized from the single hardcoded x86 case to the two
// architectures nrgprof actually targets.
type breakpointInstr struct {
	instr  []byte
	rewind uint64
}

var archX86_64 = breakpointInstr{
	instr:  []byte{0xCC},
	rewind: 1,
}

// archPPC64 uses the PowerPC "trap unconditionally" word (tw 31,0,0,
// 0x7fe00008), laid out in little-endian byte order for ppc64le; it
// does not advance the PC past itself on trap.
var archPPC64 = breakpointInstr{
	instr:  []byte{0x08, 0x00, 0xe0, 0x7f},
	rewind: 0,
}

func archFor(machine elf.Machine) breakpointInstr {
	switch machine {
	case elf.EM_X86_64:
		return archX86_64
	case elf.EM_PPC64:
		return archPPC64
	default:
		return archX86_64
	}
}
