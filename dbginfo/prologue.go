package dbginfo

// PrologueEnd returns the lowest address within fn's concrete ranges
// that the line table marks PrologueEnd, generalizing
// cmd/prologuer/main.go's prologueEndPCs/fillRanges from "what
// fraction of samples land in the prologue" into "the first statement
// address at or after a function's prologue end" — the address a
// function-named region actually traps on, skipping the stack-check
// and frame-setup instructions GCC/Clang emit before the first real
// statement.
func (cu *CompileUnit) PrologueEnd(fn *Function) (uint64, bool) {
	if fn.Concrete == nil {
		return 0, false
	}
	var best uint64
	found := false
	for _, rng := range fn.Concrete.Ranges {
		for _, l := range cu.Lines {
			if !l.PrologueEnd || !rng.contains(l.Address) {
				continue
			}
			if !found || l.Address < best {
				best = l.Address
				found = true
			}
		}
	}
	return best, found
}

// EntryAddr returns the address at which execution should be trapped
// for a function-named region: the prologue-end address when the line
// table supplies one, else the raw entry PC.
func (cu *CompileUnit) EntryAddr(fn *Function) uint64 {
	if addr, ok := cu.PrologueEnd(fn); ok {
		return addr
	}
	if fn.Concrete != nil {
		return fn.Concrete.EntryPC
	}
	return 0
}

// ReturnAddr approximates the end trap address for a whole-function
// region: the highest-address statement the line table records within
// fn's concrete ranges, standing in for "the last instruction before
// the function returns" without disassembling for actual `ret`/`blr`
// instructions. A function with several return paths traps only the
// one the compiler placed last in program order; multi-exit functions
// are better profiled as named sub-line regions.
func (cu *CompileUnit) ReturnAddr(fn *Function) (uint64, bool) {
	if fn.Concrete == nil {
		return 0, false
	}
	var best uint64
	found := false
	for _, rng := range fn.Concrete.Ranges {
		for _, l := range cu.Lines {
			if l.EndSequence || !l.IsStmt || !rng.contains(l.Address) {
				continue
			}
			if !found || l.Address > best {
				best = l.Address
				found = true
			}
		}
	}
	return best, found
}
