// Package dbginfo parses a target ELF binary and its DWARF debug
// information once, then answers two kinds of query: "address for
// this source position / function" and "context for this address".
// It is grounded on perfsession/symbolize.go:newSymbolicExtra,
// generalized from "nearest function/line for an IP" into the full
// query surface an energy profiler needs to turn user-specified
// regions into trap addresses.
package dbginfo

import (
	"debug/elf"
	"fmt"

	"github.com/aclements/nrgprof/errtag"
)

// Index is the parsed ELF+DWARF for one target binary. It is built
// once and is safe for concurrent read-only queries thereafter.
type Index struct {
	Entry uint64 // virtual address of the ELF entry point
	PIE   bool   // true for ET_DYN (position-independent executable)

	// Symbols is every STT_FUNC symbol, sorted by (Name, Address).
	Symbols []FunctionSymbol

	// CUs is every compilation unit, in DWARF encounter order.
	CUs []*CompileUnit

	machine elf.Machine
}

// Open parses filename's ELF header, symbol table, and DWARF data.
// The ELF file is closed before Open returns; the Index owns no open
// file descriptors.
func Open(filename string) (*Index, error) {
	f, err := elf.Open(filename)
	if err != nil {
		return nil, errtag.Wrapf(errtag.Setup, err, "dbginfo: opening %s", filename)
	}
	defer f.Close()

	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return nil, errtag.New(errtag.Setup, fmt.Sprintf("dbginfo: %s is not ET_EXEC or ET_DYN (got %s)", filename, f.Type))
	}

	idx := &Index{
		Entry:   f.Entry,
		PIE:     f.Type == elf.ET_DYN,
		machine: f.Machine,
	}

	syms, err := loadFunctionSymbols(f)
	if err != nil {
		return nil, err
	}
	idx.Symbols = syms

	if f.Section(".debug_info") == nil {
		return nil, errtag.New(errtag.Setup, fmt.Sprintf("dbginfo: %s has no DWARF info", filename))
	}
	dwarff, err := f.DWARF()
	if err != nil {
		return nil, errtag.Wrapf(errtag.Setup, err, "dbginfo: loading DWARF from %s", filename)
	}
	cus, err := loadCompileUnits(dwarff)
	if err != nil {
		return nil, err
	}
	idx.CUs = cus

	return idx, nil
}

// LocalEntry returns sym's local entry point for this binary's
// architecture — see FunctionSymbol.LocalEntry. Region resolution in
// orchestrate does not call it: function-named regions trap at
// CompileUnit.EntryAddr.
func (idx *Index) LocalEntry(sym FunctionSymbol) uint64 {
	return sym.LocalEntry(idx.machine)
}

// Machine returns the target binary's ELF machine type, letting
// callers outside dbginfo (the tracer's breakpoint-instruction
// selection) branch on architecture without re-parsing the ELF
// header themselves.
func (idx *Index) Machine() elf.Machine { return idx.machine }

// Range is a half-open virtual-address interval [Low, High).
type Range struct {
	Low, High uint64
}

func (r Range) contains(addr uint64) bool { return r.Low <= addr && addr < r.High }

// rangesFromDwarf converts the [2]uint64 pairs debug/dwarf.Ranges
// returns into Range values.
func rangesFromDwarf(raw [][2]uint64) []Range {
	out := make([]Range, len(raw))
	for i, r := range raw {
		out[i] = Range{r[0], r[1]}
	}
	return out
}
